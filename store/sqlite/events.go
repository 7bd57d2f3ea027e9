package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/loyalty-engine/ledger"
)

// =============================================================================
// EVENT OPERATIONS
// =============================================================================

type eventRow struct {
	ID          int64         `db:"id"`
	Name        string        `db:"name"`
	Description string        `db:"description"`
	Location    string        `db:"location"`
	StartTime   string        `db:"start_time"`
	EndTime     string        `db:"end_time"`
	Capacity    sql.NullInt64 `db:"capacity"`
	Points      int64         `db:"points"`
	Published   bool          `db:"published"`
	CreatedByID int64         `db:"created_by_id"`
}

type awardRow struct {
	ID          int64  `db:"id"`
	EventID     int64  `db:"event_id"`
	AttendeeID  int64  `db:"attendee_id"`
	AwardedByID int64  `db:"awarded_by_id"`
	Points      int64  `db:"points"`
	CreatedAt   string `db:"created_at"`
}

func (ts *txStore) InsertEvent(ctx context.Context, e *ledger.Event) error {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO events (name, description, location, start_time, end_time, capacity, points, published, created_by_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Name, e.Description, e.Location, formatTime(e.StartTime), formatTime(e.EndTime),
		nullInt(e.Capacity), e.Points, e.Published, e.CreatedByID)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	for _, o := range e.Organizers {
		if err := ts.AddOrganizer(ctx, id, o.UserID); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) EventByID(ctx context.Context, id int64) (*ledger.Event, error) {
	var row eventRow
	err := ts.tx.GetContext(ctx, &row, `
		SELECT id, name, description, location, start_time, end_time, capacity, points, published, created_by_id
		FROM events WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NewNotFound("event", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load event: %w", err)
	}

	e := &ledger.Event{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Location:    row.Location,
		StartTime:   parseTime(row.StartTime),
		EndTime:     parseTime(row.EndTime),
		Capacity:    intPtr(row.Capacity),
		Points:      row.Points,
		Published:   row.Published,
		CreatedByID: row.CreatedByID,
		Organizers:  []ledger.Organizer{},
		Guests:      []ledger.Guest{},
	}

	err = ts.tx.SelectContext(ctx, &e.Organizers, `
		SELECT u.id AS userid, u.utorid, u.name
		FROM event_organizers o JOIN users u ON u.id = o.user_id
		WHERE o.event_id = ? ORDER BY u.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load organizers: %w", err)
	}

	err = ts.tx.SelectContext(ctx, &e.Guests, `
		SELECT u.id AS userid, u.utorid, u.name, r.status, r.attended
		FROM event_rsvps r JOIN users u ON u.id = r.user_id
		WHERE r.event_id = ? ORDER BY u.id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load guests: %w", err)
	}

	var awards []awardRow
	err = ts.tx.SelectContext(ctx, &awards, `
		SELECT id, event_id, attendee_id, awarded_by_id, points, created_at
		FROM event_point_awards WHERE event_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load awards: %w", err)
	}
	for _, a := range awards {
		e.Awards = append(e.Awards, ledger.EventPointAward{
			ID:          a.ID,
			EventID:     a.EventID,
			AttendeeID:  a.AttendeeID,
			AwardedByID: a.AwardedByID,
			Points:      a.Points,
			CreatedAt:   parseTime(a.CreatedAt),
		})
	}
	return e, nil
}

func (ts *txStore) UpdateEventPoints(ctx context.Context, eventID, points int64) error {
	res, err := ts.tx.ExecContext(ctx, `UPDATE events SET points = ? WHERE id = ?`, points, eventID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return rowsAffected(res, "event", eventID)
}

func (ts *txStore) SetEventPublished(ctx context.Context, eventID int64, published bool) error {
	res, err := ts.tx.ExecContext(ctx, `UPDATE events SET published = ? WHERE id = ?`, published, eventID)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return rowsAffected(res, "event", eventID)
}

func (ts *txStore) AddOrganizer(ctx context.Context, eventID, userID int64) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO event_organizers (event_id, user_id) VALUES (?, ?)`, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to add organizer: %w", err)
	}
	return nil
}

func (ts *txStore) AddGuest(ctx context.Context, eventID, userID int64) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO event_rsvps (event_id, user_id, status, attended) VALUES (?, ?, ?, 0)`,
		eventID, userID, string(ledger.RSVPed))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: user %d is already a guest", ledger.ErrConflict, userID)
		}
		return fmt.Errorf("failed to add guest: %w", err)
	}
	return nil
}

func (ts *txStore) RemoveGuest(ctx context.Context, eventID, userID int64) error {
	res, err := ts.tx.ExecContext(ctx, `DELETE FROM event_rsvps WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove guest: %w", err)
	}
	return rowsAffected(res, "guest", userID)
}

func (ts *txStore) MarkAttended(ctx context.Context, eventID, userID int64) error {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE event_rsvps SET attended = 1 WHERE event_id = ? AND user_id = ?`, eventID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark attendance: %w", err)
	}
	return rowsAffected(res, "guest", userID)
}

func (ts *txStore) InsertAward(ctx context.Context, a *ledger.EventPointAward) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO event_point_awards (event_id, attendee_id, awarded_by_id, points, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.EventID, a.AttendeeID, a.AwardedByID, a.Points, formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert award: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (ts *txStore) SumAwards(ctx context.Context, eventID int64) (int64, error) {
	var total int64
	err := ts.tx.GetContext(ctx, &total,
		`SELECT COALESCE(SUM(points), 0) FROM event_point_awards WHERE event_id = ?`, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum awards: %w", err)
	}
	return total, nil
}
