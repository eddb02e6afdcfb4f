package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/ppiankov/claimwatch/internal/ledger"
	"github.com/ppiankov/claimwatch/internal/model"
)

func ledgerTail(tx *gorm.DB) (*model.LedgerEntry, error) {
	var tail model.LedgerEntry
	err := tx.Order("sequence DESC").Limit(1).Take(&tail).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger tail: %w", err)
	}
	return &tail, nil
}

// LedgerTail returns the newest entry, or nil for an empty ledger
func (s *Store) LedgerTail(ctx context.Context) (*model.LedgerEntry, error) {
	return ledgerTail(s.db.WithContext(ctx))
}

// LedgerEntries returns the chain in sequence order.
// A non-positive limit returns the full chain.
func (s *Store) LedgerEntries(ctx context.Context, limit int) ([]model.LedgerEntry, error) {
	q := s.db.WithContext(ctx).Order("sequence ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entries []model.LedgerEntry
	if err := q.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// VerifyLedger walks the chain from genesis and cross-checks every payload
// against the debunk it records. Tampering is returned as a
// *ledger.IntegrityError; any other error is a read failure.
func (s *Store) VerifyLedger(ctx context.Context) (ledger.Report, error) {
	entries, err := s.LedgerEntries(ctx, 0)
	if err != nil {
		return ledger.Report{}, err
	}

	if err := ledger.Verify(entries); err != nil {
		return ledger.NewReport(entries, err), err
	}

	var debunks []model.Debunk
	if err := s.db.WithContext(ctx).Find(&debunks).Error; err != nil {
		return ledger.Report{}, fmt.Errorf("load debunks: %w", err)
	}
	byID := make(map[uint]*model.Debunk, len(debunks))
	for i := range debunks {
		byID[debunks[i].ID] = &debunks[i]
	}

	for _, e := range entries {
		d, ok := byID[e.DebunkID]
		if !ok {
			ierr := &ledger.IntegrityError{Sequence: e.Sequence, Reason: fmt.Sprintf("debunk %d is missing", e.DebunkID)}
			return ledger.NewReport(entries, ierr), ierr
		}
		if string(ledger.CanonicalJSON(ledger.Content(d))) != e.Payload {
			ierr := &ledger.IntegrityError{Sequence: e.Sequence, Reason: fmt.Sprintf("debunk %d differs from recorded payload", d.ID)}
			return ledger.NewReport(entries, ierr), ierr
		}
		delete(byID, e.DebunkID)
	}

	for id := range byID {
		ierr := &ledger.IntegrityError{Sequence: uint64(len(entries)) + 1, Reason: fmt.Sprintf("debunk %d has no ledger entry", id)}
		return ledger.NewReport(entries, ierr), ierr
	}

	return ledger.NewReport(entries, nil), nil
}
