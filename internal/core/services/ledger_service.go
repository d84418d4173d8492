package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/hashchain"
	"github.com/google/uuid"
)

const eventLedgerAppend = "ledger_append"

// ledgerService maintains the one-way-account ledger of each period.
type ledgerService struct {
	BaseService
	store portsrepo.RepositoryProvider
}

func NewLedgerService(base BaseService, store portsrepo.RepositoryProvider) *ledgerService {
	return &ledgerService{BaseService: base, store: store}
}

func (s *ledgerService) Snapshot(ctx context.Context, key domain.PeriodKey) (*domain.LedgerSnapshot, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	last, err := s.store.Reader.Ledger.LastEntry(ctx, key)
	if err != nil {
		s.LogError(ctx, err, "Failed to read ledger tail", slog.String("period", key.String()))
		return nil, apperrors.From(err)
	}
	return snapshotOf(key, last), nil
}

func snapshotOf(key domain.PeriodKey, last *domain.LedgerEntry) *domain.LedgerSnapshot {
	snap := &domain.LedgerSnapshot{PeriodKey: key}
	if last != nil {
		snap.BalanceCents = last.BalanceAfterCents
		snap.HashTail = last.HashThis
		snap.Seq = last.Seq
	}
	return snap
}

func (s *ledgerService) Entries(ctx context.Context, key domain.PeriodKey) ([]domain.LedgerEntry, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	entries, err := s.store.Reader.Ledger.ListEntries(ctx, key)
	if err != nil {
		return nil, apperrors.From(err)
	}
	if entries == nil {
		return []domain.LedgerEntry{}, nil
	}
	return entries, nil
}

func (s *ledgerService) CreditsForPeriod(ctx context.Context, key domain.PeriodKey) (int64, error) {
	if err := key.Validate(); err != nil {
		return 0, err
	}
	sum, err := s.store.Reader.Ledger.SumCredits(ctx, key)
	if err != nil {
		return 0, apperrors.From(err)
	}
	return sum, nil
}

// Verify recomputes the hash chain, the sequence and the running balance.
func (s *ledgerService) Verify(ctx context.Context, key domain.PeriodKey) (*domain.ChainReport, error) {
	entries, err := s.Entries(ctx, key)
	if err != nil {
		return nil, err
	}
	report, err := verifyLedger(entries)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		s.GetLogger(ctx).Warn("Ledger chain verification failed",
			slog.String("period", key.String()),
			slog.String("reason", report.Reason))
	}
	return report, nil
}

func verifyLedger(entries []domain.LedgerEntry) (*domain.ChainReport, error) {
	records := make([]hashchain.Record, len(entries))
	var balance int64
	for i, e := range entries {
		if e.Seq != int64(i+1) {
			return brokenAt(len(entries), int(e.Seq), fmt.Sprintf("seq %d found at position %d", e.Seq, i+1)), nil
		}
		balance += e.AmountCents
		if e.BalanceAfterCents != balance {
			return brokenAt(len(entries), int(e.Seq), fmt.Sprintf("balance_after_cents %d, running sum %d", e.BalanceAfterCents, balance)), nil
		}
		body, err := canonical.Marshal(e.HashPayload())
		if err != nil {
			return nil, err
		}
		records[i] = hashchain.Record{Payload: body, HashPrev: e.HashPrev, HashThis: e.HashThis}
	}
	tail, err := hashchain.Verify(records)
	if err != nil {
		var brk *hashchain.BreakError
		if errors.As(err, &brk) {
			return brokenAt(len(entries), int(entries[brk.Index].Seq), brk.Reason), nil
		}
		return nil, err
	}
	return &domain.ChainReport{Valid: true, Length: len(entries), Tail: tail}, nil
}

func brokenAt(length, at int, reason string) *domain.ChainReport {
	return &domain.ChainReport{Valid: false, Length: length, BrokeAt: &at, Reason: reason}
}

func (s *ledgerService) Append(ctx context.Context, req dto.LedgerAppendRequest) (*domain.LedgerEntry, error) {
	key := req.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}

	var entry *domain.LedgerEntry
	err := s.store.Transactor.WithinTx(ctx, func(ctx context.Context, repos portsrepo.Repositories) error {
		var err error
		entry, _, err = s.append(ctx, repos, key, req.AmountCents, req.BankReceiptHash, req.Actor)
		return err
	})
	s.Metrics.LedgerAppend(req.AmountCents, err)
	if err != nil {
		s.LogError(ctx, err, "Ledger append failed",
			slog.String("period", key.String()), slog.Int64("amount_cents", req.AmountCents))
		return nil, apperrors.From(err)
	}
	return entry, nil
}

// append adds one entry inside an open transaction. A receipt that was already
// recorded returns the existing entry and created=false.
func (s *ledgerService) append(ctx context.Context, repos portsrepo.Repositories, key domain.PeriodKey, amount int64, receipt, actor string) (entry *domain.LedgerEntry, created bool, err error) {
	if amount == 0 {
		return nil, false, apperrors.New(apperrors.CodeInvalidPayload, "amount_cents must be non-zero")
	}
	if err := s.lockPeriod(ctx, repos, key); err != nil {
		return nil, false, err
	}

	if receipt != "" {
		existing, err := repos.Ledger.FindByReceipt(ctx, key, receipt)
		if err == nil {
			return existing, false, nil
		}
		if !isNotFound(err) {
			return nil, false, err
		}
	}

	last, err := repos.Ledger.LastEntry(ctx, key)
	if err != nil {
		return nil, false, err
	}
	prev := snapshotOf(key, last)
	balance := prev.BalanceCents + amount
	if balance < 0 {
		return nil, false, apperrors.Newf(apperrors.CodeLedgerUnderflow,
			"balance %d cannot absorb %d", prev.BalanceCents, amount)
	}

	e := domain.LedgerEntry{
		EntryID:           uuid.NewString(),
		PeriodKey:         key,
		Seq:               prev.Seq + 1,
		AmountCents:       amount,
		BalanceAfterCents: balance,
		BankReceiptHash:   receipt,
		HashPrev:          prev.HashTail,
		CreatedAt:         s.Now(),
	}
	body, err := canonical.Marshal(e.HashPayload())
	if err != nil {
		return nil, false, err
	}
	if e.HashThis, err = hashchain.LinkHex(e.HashPrev, body); err != nil {
		return nil, false, apperrors.Wrap(apperrors.CodeInternal, "ledger hash chain is corrupt", err)
	}
	if err := repos.Ledger.InsertEntry(ctx, e); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			return nil, false, apperrors.Wrap(apperrors.CodeLedgerConflict, "concurrent ledger append", err)
		}
		return nil, false, err
	}

	period, err := repos.Periods.FindPeriod(ctx, key)
	switch {
	case err == nil:
		if amount > 0 {
			period.CreditedCents += amount
		}
		period.RunningBalanceHash = e.HashThis
		if err := repos.Periods.SavePeriod(ctx, *period); err != nil {
			return nil, false, err
		}
	case !isNotFound(err):
		return nil, false, err
	}

	_, err = s.appendAudit(ctx, repos, domain.AuditEvent{
		Scope:     domain.ScopeLedger,
		ABN:       key.ABN,
		TaxType:   key.TaxType,
		PeriodID:  key.PeriodID,
		EventKind: eventLedgerAppend,
		Actor:     actor,
		CreatedAt: e.CreatedAt,
	}, map[string]any{
		"entry_id":            e.EntryID,
		"seq":                 e.Seq,
		"amount_cents":        e.AmountCents,
		"balance_after_cents": e.BalanceAfterCents,
		"bank_receipt_hash":   e.BankReceiptHash,
		"hash_this":           e.HashThis,
		"actor":               actor,
	})
	if err != nil {
		return nil, false, err
	}
	return &e, true, nil
}
