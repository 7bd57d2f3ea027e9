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
// USER OPERATIONS
// =============================================================================

type userRow struct {
	ID           int64  `db:"id"`
	Utorid       string `db:"utorid"`
	Name         string `db:"name"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
	Role         string `db:"role"`
	Points       int64  `db:"points"`
	Verified     bool   `db:"verified"`
	Suspicious   bool   `db:"suspicious"`
	CreatedAt    string `db:"created_at"`
}

func (r userRow) toUser() *ledger.User {
	return &ledger.User{
		ID:           r.ID,
		Utorid:       r.Utorid,
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         ledger.Role(r.Role),
		Points:       r.Points,
		Verified:     r.Verified,
		Suspicious:   r.Suspicious,
		CreatedAt:    parseTime(r.CreatedAt),
	}
}

const userColumns = `id, utorid, name, email, password_hash, role, points, verified, suspicious, created_at`

func (ts *txStore) CreateUser(ctx context.Context, u *ledger.User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO users (utorid, name, email, password_hash, role, points, verified, suspicious, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, u.Utorid, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Points, u.Verified, u.Suspicious, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: utorid %s already exists", ledger.ErrConflict, u.Utorid)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

func (ts *txStore) UserByUtorid(ctx context.Context, utorid string) (*ledger.User, error) {
	var row userRow
	err := ts.tx.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE utorid = ?`, utorid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NewNotFound("user", utorid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return row.toUser(), nil
}

func (ts *txStore) UserByID(ctx context.Context, id int64) (*ledger.User, error) {
	var row userRow
	err := ts.tx.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NewNotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return row.toUser(), nil
}

func (ts *txStore) ListUsers(ctx context.Context) ([]ledger.User, error) {
	var rows []userRow
	if err := ts.tx.SelectContext(ctx, &rows, `SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]ledger.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, *r.toUser())
	}
	return users, nil
}

func (ts *txStore) UpdateUserFlags(ctx context.Context, utorid string, verified, suspicious bool) error {
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE users SET verified = ?, suspicious = ? WHERE utorid = ?`, verified, suspicious, utorid)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return rowsAffected(res, "user", utorid)
}

func (ts *txStore) UpdateUserRole(ctx context.Context, utorid string, role ledger.Role) error {
	res, err := ts.tx.ExecContext(ctx, `UPDATE users SET role = ? WHERE utorid = ?`, string(role), utorid)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return rowsAffected(res, "user", utorid)
}

// =============================================================================
// BALANCE MUTATIONS
// =============================================================================

func (ts *txStore) AddPoints(ctx context.Context, utorid string, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("%w: negative increment %d", ledger.ErrInvalidAmount, delta)
	}
	res, err := ts.tx.ExecContext(ctx, `UPDATE users SET points = points + ? WHERE utorid = ?`, delta, utorid)
	if err != nil {
		return fmt.Errorf("failed to credit points: %w", err)
	}
	return rowsAffected(res, "user", utorid)
}

func (ts *txStore) SubtractPoints(ctx context.Context, utorid string, amount int64) (bool, error) {
	if amount < 0 {
		return false, fmt.Errorf("%w: negative decrement %d", ledger.ErrInvalidAmount, amount)
	}
	res, err := ts.tx.ExecContext(ctx,
		`UPDATE users SET points = points - ? WHERE utorid = ? AND points >= ?`, amount, utorid, amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit points: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	// Distinguish a missing user from a short balance.
	if _, err := ts.UserByUtorid(ctx, utorid); err != nil {
		return false, err
	}
	return false, nil
}
