package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-engine/ledger"
)

// =============================================================================
// TRANSACTION OPERATIONS
// =============================================================================

type transactionRow struct {
	ID          int64               `db:"id"`
	Kind        string              `db:"kind"`
	Owner       string              `db:"owner"`
	Amount      int64               `db:"amount"`
	Spent       decimal.NullDecimal `db:"spent"`
	RelatedID   sql.NullInt64       `db:"related_id"`
	Sender      string              `db:"sender"`
	Recipient   string              `db:"recipient"`
	EventID     sql.NullInt64       `db:"event_id"`
	Suspicious  bool                `db:"suspicious"`
	ProcessedBy sql.NullString      `db:"processed_by"`
	ProcessedAt sql.NullString      `db:"processed_at"`
	Remark      string              `db:"remark"`
	CreatedBy   string              `db:"created_by"`
	CreatedAt   string              `db:"created_at"`
}

const transactionColumns = `id, kind, owner, amount, spent, related_id, sender, recipient, event_id,
	suspicious, processed_by, processed_at, remark, created_by, created_at`

func (r transactionRow) toTransaction() ledger.Transaction {
	t := ledger.Transaction{
		ID:           r.ID,
		Kind:         ledger.Kind(r.Kind),
		Owner:        r.Owner,
		Amount:       r.Amount,
		PromotionIDs: ledger.PromotionSet{},
		RelatedID:    intPtr(r.RelatedID),
		Sender:       r.Sender,
		Recipient:    r.Recipient,
		EventID:      intPtr(r.EventID),
		Suspicious:   r.Suspicious,
		Remark:       r.Remark,
		CreatedBy:    r.CreatedBy,
		CreatedAt:    parseTime(r.CreatedAt),
	}
	if r.Spent.Valid {
		t.Spent = r.Spent.Decimal
	}
	if t.Kind == ledger.KindRedemption {
		red := ledger.Redemption{Status: ledger.RedemptionRequested, Requested: r.Amount}
		if r.ProcessedAt.Valid {
			at := parseTime(r.ProcessedAt.String)
			red.Status = ledger.RedemptionProcessed
			red.Requested = -r.Amount
			red.ProcessedBy = r.ProcessedBy.String
			red.ProcessedAt = &at
		}
		t.Redemption = &red
	}
	return t
}

func (ts *txStore) InsertTransaction(ctx context.Context, t *ledger.Transaction) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: unknown transaction kind %q", ledger.ErrInvalidInput, t.Kind)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	var spent decimal.NullDecimal
	if t.Kind == ledger.KindPurchase {
		spent = decimal.NewNullDecimal(t.Spent)
	}
	processedBy, processedAt := redemptionColumns(t)

	res, err := ts.tx.ExecContext(ctx, `
		INSERT INTO transactions (kind, owner, amount, spent, related_id, sender, recipient, event_id,
			suspicious, processed_by, processed_at, remark, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, string(t.Kind), t.Owner, t.Amount, spent, nullInt(t.RelatedID), t.Sender, t.Recipient,
		nullInt(t.EventID), t.Suspicious, processedBy, processedAt, t.Remark, t.CreatedBy,
		formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = id

	t.PromotionIDs = ledger.NewPromotionSet(t.PromotionIDs...)
	for _, pid := range t.PromotionIDs {
		if _, err := ts.tx.ExecContext(ctx,
			`INSERT INTO transaction_promotions (transaction_id, promotion_id) VALUES (?, ?)`, id, pid); err != nil {
			return fmt.Errorf("failed to link promotion %d: %w", pid, err)
		}
	}
	return nil
}

func redemptionColumns(t *ledger.Transaction) (sql.NullString, sql.NullString) {
	if t.Redemption == nil || !t.Redemption.Processed() {
		return sql.NullString{}, sql.NullString{}
	}
	by := sql.NullString{String: t.Redemption.ProcessedBy, Valid: true}
	at := sql.NullString{}
	if t.Redemption.ProcessedAt != nil {
		at = sql.NullString{String: formatTime(*t.Redemption.ProcessedAt), Valid: true}
	}
	return by, at
}

func (ts *txStore) TransactionByID(ctx context.Context, id int64) (*ledger.Transaction, error) {
	var row transactionRow
	err := ts.tx.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.NewNotFound("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	txs, err := ts.withPromotions(ctx, []transactionRow{row})
	if err != nil {
		return nil, err
	}
	return &txs[0], nil
}

func (ts *txStore) UpdateTransactionState(ctx context.Context, t *ledger.Transaction) error {
	processedBy, processedAt := redemptionColumns(t)
	res, err := ts.tx.ExecContext(ctx, `
		UPDATE transactions
		SET suspicious = ?, amount = ?, related_id = ?, processed_by = ?, processed_at = ?
		WHERE id = ?
	`, t.Suspicious, t.Amount, nullInt(t.RelatedID), processedBy, processedAt, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	return rowsAffected(res, "transaction", t.ID)
}

func (ts *txStore) TransactionsByOwner(ctx context.Context, utorid string) ([]ledger.Transaction, error) {
	var rows []transactionRow
	err := ts.tx.SelectContext(ctx, &rows,
		`SELECT `+transactionColumns+` FROM transactions WHERE owner = ? ORDER BY id`, utorid)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}
	return ts.withPromotions(ctx, rows)
}

func (ts *txStore) UsedPromotions(ctx context.Context, utorid string) (ledger.PromotionSet, error) {
	var ids []int64
	err := ts.tx.SelectContext(ctx, &ids, `
		SELECT DISTINCT tp.promotion_id
		FROM transaction_promotions tp
		JOIN transactions t ON t.id = tp.transaction_id
		WHERE t.owner = ? AND t.kind = ?
	`, utorid, string(ledger.KindPurchase))
	if err != nil {
		return nil, fmt.Errorf("failed to load used promotions: %w", err)
	}
	return ledger.NewPromotionSet(ids...), nil
}

func (ts *txStore) ListTransactions(ctx context.Context, f ledger.TransactionFilter) ([]ledger.Transaction, int, error) {
	where, args := transactionWhere(f)

	var total int
	if err := ts.tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM transactions t`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	var rows []transactionRow
	query := `SELECT ` + transactionColumns + ` FROM transactions t` + where + ` ORDER BY t.id LIMIT ? OFFSET ?`
	pageArgs := append(args, f.Limit, (f.Page-1)*f.Limit)
	if err := ts.tx.SelectContext(ctx, &rows, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	txs, err := ts.withPromotions(ctx, rows)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func transactionWhere(f ledger.TransactionFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, a ...any) {
		clauses = append(clauses, clause)
		args = append(args, a...)
	}

	if f.Owner != "" {
		add(`t.owner = ?`, f.Owner)
	}
	if f.Name != "" {
		pattern := "%" + f.Name + "%"
		add(`t.owner IN (SELECT utorid FROM users WHERE utorid LIKE ? OR name LIKE ?)`, pattern, pattern)
	}
	if f.CreatedBy != "" {
		add(`t.created_by = ?`, f.CreatedBy)
	}
	if f.Kind != "" {
		add(`t.kind = ?`, string(f.Kind))
	}
	if f.Suspicious != nil {
		add(`t.suspicious = ?`, *f.Suspicious)
	}
	if f.PromotionID > 0 {
		add(`t.id IN (SELECT transaction_id FROM transaction_promotions WHERE promotion_id = ?)`, f.PromotionID)
	}
	if f.RelatedID != nil {
		add(`t.related_id = ?`, *f.RelatedID)
	}
	if f.Amount != nil {
		op := ">="
		if f.Operator == "lte" {
			op = "<="
		}
		add(`t.amount `+op+` ?`, *f.Amount)
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// withPromotions converts rows and attaches their applied promotion ids.
func (ts *txStore) withPromotions(ctx context.Context, rows []transactionRow) ([]ledger.Transaction, error) {
	txs := make([]ledger.Transaction, 0, len(rows))
	index := make(map[int64]int, len(rows))
	var purchaseIDs []int64
	for i, r := range rows {
		txs = append(txs, r.toTransaction())
		index[r.ID] = i
		if r.Kind == string(ledger.KindPurchase) {
			purchaseIDs = append(purchaseIDs, r.ID)
		}
	}
	if len(purchaseIDs) == 0 {
		return txs, nil
	}

	query, args, err := sqlx.In(
		`SELECT transaction_id, promotion_id FROM transaction_promotions WHERE transaction_id IN (?)`, purchaseIDs)
	if err != nil {
		return nil, err
	}
	var links []struct {
		TransactionID int64 `db:"transaction_id"`
		PromotionID   int64 `db:"promotion_id"`
	}
	if err := ts.tx.SelectContext(ctx, &links, ts.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load applied promotions: %w", err)
	}
	for _, l := range links {
		i := index[l.TransactionID]
		txs[i].PromotionIDs = append(txs[i].PromotionIDs, l.PromotionID)
	}
	for i := range txs {
		txs[i].PromotionIDs = ledger.NewPromotionSet(txs[i].PromotionIDs...)
	}
	return txs, nil
}
