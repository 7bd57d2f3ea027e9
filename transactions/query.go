package transactions

import (
	"context"

	"github.com/warp/loyalty-engine/ledger"
)

// Page is one page of a filtered listing.
type Page struct {
	Count   int                  `json:"count"`
	Results []ledger.Transaction `json:"results"`
}

// Get returns any row. Only actors who can view all transactions may call it.
func (s *Service) Get(ctx context.Context, actor ledger.Actor, id int64) (*ledger.Transaction, error) {
	if err := actor.Require(ledger.CapViewAllTransactions); err != nil {
		return nil, err
	}
	var row *ledger.Transaction
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		var err error
		row, err = tx.TransactionByID(ctx, id)
		return err
	})
	return row, err
}

// List returns a page of all rows matching f.
func (s *Service) List(ctx context.Context, actor ledger.Actor, f ledger.TransactionFilter) (*Page, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	if err := actor.Require(ledger.CapViewAllTransactions); err != nil {
		return nil, err
	}
	return s.list(ctx, f)
}

// ListOwn returns a page of the actor's own rows matching f.
func (s *Service) ListOwn(ctx context.Context, actor ledger.Actor, f ledger.TransactionFilter) (*Page, error) {
	f.Owner = actor.Utorid
	f.Name = ""
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f ledger.TransactionFilter) (*Page, error) {
	page := &Page{Results: []ledger.Transaction{}}
	err := s.store.WithTx(ctx, func(tx ledger.Tx) error {
		rows, total, err := tx.ListTransactions(ctx, f)
		if err != nil {
			return err
		}
		page.Count = total
		page.Results = append(page.Results, rows...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
