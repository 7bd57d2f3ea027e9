/*
audit.go - Scheduled balance audit

PURPOSE:
  Periodically recomputes every member's balance from their ledger rows
  and reports members whose stored balance has drifted.

USAGE:
  scheduler, err := jobs.NewAuditScheduler(store, "@every 1h")
  scheduler.Start(ctx)
  // ... later
  scheduler.Stop()

SEE ALSO:
  - ledger/ledger.go: Audit
  - api/handlers.go: RunAudit, the on-demand endpoint
*/
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"github.com/warp/loyalty-engine/ledger"
	"github.com/warp/loyalty-engine/metrics"
)

// AuditReport is the outcome of one audit run.
type AuditReport struct {
	RunID      uuid.UUID      `json:"runId"`
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Checked    int            `json:"checked"`
	Drift      []ledger.Drift `json:"drift"`
}

// Clean reports whether no member drifted.
func (r *AuditReport) Clean() bool {
	return len(r.Drift) == 0
}

type AuditScheduler struct {
	store    ledger.Store
	schedule string
	cron     *cron.Cron

	mu   sync.Mutex
	last *AuditReport
}

// NewAuditScheduler validates schedule (standard cron or @every syntax).
func NewAuditScheduler(store ledger.Store, schedule string) (*AuditScheduler, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid audit schedule %q: %w", schedule, err)
	}
	return &AuditScheduler{
		store:    store,
		schedule: schedule,
		cron:     cron.New(cron.WithLocation(time.UTC)),
	}, nil
}

// Start registers the audit job and starts the cron runner.
func (s *AuditScheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			log.WithError(err).Error("[AUDIT] run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule audit: %w", err)
	}
	s.cron.Start()
	log.WithField("schedule", s.schedule).Info("[AUDIT] scheduler started")
	return nil
}

// Stop waits for a running audit to finish.
func (s *AuditScheduler) Stop() {
	done := s.cron.Stop()
	<-done.Done()
	log.Info("[AUDIT] scheduler stopped")
}

// RunOnce audits every member now.
func (s *AuditScheduler) RunOnce(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{RunID: uuid.New(), StartedAt: time.Now().UTC()}
	entry := log.WithField("run_id", report.RunID)

	checked, drift, err := ledger.Audit(ctx, s.store)
	metrics.RecordAudit(len(drift), err)
	if err != nil {
		return nil, fmt.Errorf("audit run %s: %w", report.RunID, err)
	}
	report.Checked = checked
	report.Drift = drift
	report.FinishedAt = time.Now().UTC()

	for _, d := range drift {
		entry.WithFields(log.Fields{
			"utorid":   d.Utorid,
			"stored":   d.Stored,
			"expected": d.Expected,
		}).Warn("[AUDIT] balance drift")
	}
	entry.WithFields(log.Fields{
		"checked": checked,
		"drift":   len(drift),
	}).Info("[AUDIT] completed")

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, nil
}

// Last returns the most recent report, or nil before the first run.
func (s *AuditScheduler) Last() *AuditReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
