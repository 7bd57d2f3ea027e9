package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-engine/ledger"
)

// =============================================================================
// PROMOTION OPERATIONS
// =============================================================================

type promotionRow struct {
	ID          int64               `db:"id"`
	Name        string              `db:"name"`
	Description string              `db:"description"`
	Kind        string              `db:"kind"`
	StartTime   string              `db:"start_time"`
	EndTime     string              `db:"end_time"`
	MinSpending decimal.NullDecimal `db:"min_spending"`
	Rate        decimal.NullDecimal `db:"rate"`
	Points      int64               `db:"points"`
}

const promotionColumns = `id, name, description, kind, start_time, end_time, min_spending, rate, points`

func (r promotionRow) toPromotion() ledger.Promotion {
	return ledger.Promotion{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Kind:        ledger.PromotionKind(r.Kind),
		StartTime:   parseTime(r.StartTime),
		EndTime:     parseTime(r.EndTime),
		MinSpending: r.MinSpending,
		Rate:        r.Rate,
		Points:      r.Points,
	}
}

func (ts *txStore) InsertPromotion(ctx context.Context, p *ledger.Promotion) error {
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO promotions (name, description, kind, start_time, end_time, min_spending, rate, points)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Name, p.Description, string(p.Kind), formatTime(p.StartTime), formatTime(p.EndTime),
		p.MinSpending, p.Rate, p.Points)
	if err != nil {
		return fmt.Errorf("failed to insert promotion: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func (ts *txStore) PromotionByID(ctx context.Context, id int64) (*ledger.Promotion, error) {
	var row promotionRow
	err := ts.tx.GetContext(ctx, &row, `SELECT `+promotionColumns+` FROM promotions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NewNotFound("promotion", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load promotion: %w", err)
	}
	p := row.toPromotion()
	return &p, nil
}

func (ts *txStore) UpdatePromotion(ctx context.Context, p *ledger.Promotion) error {
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE promotions
		SET name = ?, description = ?, kind = ?, start_time = ?, end_time = ?,
			min_spending = ?, rate = ?, points = ?
		WHERE id = ?
	`, p.Name, p.Description, string(p.Kind), formatTime(p.StartTime), formatTime(p.EndTime),
		p.MinSpending, p.Rate, p.Points, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update promotion: %w", err)
	}
	return rowsAffected(res, "promotion", p.ID)
}

func (ts *txStore) DeletePromotion(ctx context.Context, id int64) error {
	res, err := ts.tx.ExecContext(ctx, `DELETE FROM promotions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete promotion: %w", err)
	}
	return rowsAffected(res, "promotion", id)
}

func (ts *txStore) PromotionsActiveAt(ctx context.Context, at time.Time) ([]ledger.Promotion, error) {
	var rows []promotionRow
	if err := ts.tx.SelectContext(ctx, &rows, `SELECT `+promotionColumns+` FROM promotions ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list promotions: %w", err)
	}
	// Windows are compared as time.Time, not as stored text.
	var active []ledger.Promotion
	for _, r := range rows {
		if p := r.toPromotion(); p.ActiveAt(at) {
			active = append(active, p)
		}
	}
	return active, nil
}
