// Package memory is an in-process implementation of the persistence ports.
// Transactions are serialised and applied copy-on-write, so a failed
// transaction leaves no trace.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
)

type state struct {
	periods     map[string]domain.Period
	ledger      map[string][]domain.LedgerEntry
	audit       []domain.AuditEvent
	nextAuditID int64
	recon       map[string][]domain.ReconResult
	rpt         map[string][]domain.RPTRecord
}

func newState() *state {
	return &state{
		periods: map[string]domain.Period{},
		ledger:  map[string][]domain.LedgerEntry{},
		recon:   map[string][]domain.ReconResult{},
		rpt:     map[string][]domain.RPTRecord{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.periods {
		out.periods[k] = v
	}
	for k, v := range s.ledger {
		out.ledger[k] = append([]domain.LedgerEntry(nil), v...)
	}
	out.audit = append([]domain.AuditEvent(nil), s.audit...)
	out.nextAuditID = s.nextAuditID
	for k, v := range s.recon {
		out.recon[k] = append([]domain.ReconResult(nil), v...)
	}
	for k, v := range s.rpt {
		out.rpt[k] = append([]domain.RPTRecord(nil), v...)
	}
	return out
}

// Store holds all state in memory.
type Store struct {
	mu sync.RWMutex
	st *state

	idemMu sync.Mutex
	idem   map[string]domain.IdempotencyRecord

	jtiMu sync.Mutex
	jti   map[string]time.Time

	remitMu    sync.Mutex
	remitLocks map[string]chan struct{}
}

func NewStore() *Store {
	return &Store{
		st:         newState(),
		idem:       map[string]domain.IdempotencyRecord{},
		jti:        map[string]time.Time{},
		remitLocks: map[string]chan struct{}{},
	}
}

// Provider exposes the store through the persistence ports.
func (s *Store) Provider() portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		Transactor:  s,
		Reader:      s.bind(s.readView, s.writeView),
		Idempotency: (*idempotencyRepo)(s),
		JTI:         (*jtiRegistry)(s),
		RemitLocker: s,
		Close:       func() {},
	}
}

var (
	_ portsrepo.Transactor  = (*Store)(nil)
	_ portsrepo.RemitLocker  = (*Store)(nil)
	_ portsrepo.RemitSession = (*remitSession)(nil)
)

func (s *Store) readView() (*state, func()) {
	s.mu.RLock()
	return s.st, s.mu.RUnlock
}

func (s *Store) writeView() (*state, func()) {
	s.mu.Lock()
	return s.st, s.mu.Unlock
}

func (s *Store) bind(read, write func() (*state, func())) portsrepo.Repositories {
	r := &repos{read: read, write: write}
	return portsrepo.Repositories{
		Periods: r,
		Ledger:  r,
		Audit:   r,
		Recon:   r,
		RPT:     r,
		Locks:   r,
	}
}

// WithinTx runs fn against a private copy of the state and publishes the copy
// when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repos portsrepo.Repositories) error) error {
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	view := func() (*state, func()) { return work, func() {} }
	if err := fn(ctx, s.bind(view, view)); err != nil {
		return err
	}
	if err := ctxErr(ctx); err != nil {
		return err
	}
	s.st = work
	return nil
}

// AcquireRemitLock blocks until no other remittance holds key.
func (s *Store) AcquireRemitLock(ctx context.Context, key domain.PeriodKey) (portsrepo.RemitSession, error) {
	s.remitMu.Lock()
	ch, ok := s.remitLocks[key.String()]
	if !ok {
		ch = make(chan struct{}, 1)
		s.remitLocks[key.String()] = ch
	}
	s.remitMu.Unlock()

	select {
	case ch <- struct{}{}:
		return &remitSession{Store: s, held: ch}, nil
	case <-ctx.Done():
		return nil, apperrors.Wrap(apperrors.CodeTimeout, "waiting for remit lock", ctx.Err())
	}
}

type remitSession struct {
	*Store
	held chan struct{}
	once sync.Once
}

func (r *remitSession) Repos() portsrepo.Repositories {
	return r.bind(r.readView, r.writeView)
}

func (r *remitSession) Release(context.Context) error {
	r.once.Do(func() { <-r.held })
	return nil
}

type repos struct {
	read  func() (*state, func())
	write func() (*state, func())
}

func (r *repos) FindPeriod(_ context.Context, key domain.PeriodKey) (*domain.Period, error) {
	st, done := r.read()
	defer done()
	p, ok := st.periods[key.String()]
	if !ok {
		return nil, fmt.Errorf("period %s: %w", key, apperrors.ErrNotFound)
	}
	return &p, nil
}

func (r *repos) SavePeriod(_ context.Context, period domain.Period) error {
	st, done := r.write()
	defer done()
	st.periods[period.PeriodKey.String()] = period
	return nil
}

func (r *repos) LastEntry(_ context.Context, key domain.PeriodKey) (*domain.LedgerEntry, error) {
	st, done := r.read()
	defer done()
	entries := st.ledger[key.String()]
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

func (r *repos) FindByReceipt(_ context.Context, key domain.PeriodKey, bankReceiptHash string) (*domain.LedgerEntry, error) {
	st, done := r.read()
	defer done()
	for _, e := range st.ledger[key.String()] {
		if e.BankReceiptHash != "" && e.BankReceiptHash == bankReceiptHash {
			found := e
			return &found, nil
		}
	}
	return nil, fmt.Errorf("receipt %s: %w", bankReceiptHash, apperrors.ErrNotFound)
}

func (r *repos) InsertEntry(_ context.Context, entry domain.LedgerEntry) error {
	st, done := r.write()
	defer done()
	k := entry.PeriodKey.String()
	for _, e := range st.ledger[k] {
		if e.Seq == entry.Seq {
			return fmt.Errorf("seq %d: %w", entry.Seq, apperrors.ErrDuplicate)
		}
		if entry.BankReceiptHash != "" && e.BankReceiptHash == entry.BankReceiptHash {
			return fmt.Errorf("receipt %s: %w", entry.BankReceiptHash, apperrors.ErrDuplicate)
		}
	}
	entries := append(st.ledger[k], entry)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	st.ledger[k] = entries
	return nil
}

func (r *repos) ListEntries(_ context.Context, key domain.PeriodKey) ([]domain.LedgerEntry, error) {
	st, done := r.read()
	defer done()
	return append([]domain.LedgerEntry{}, st.ledger[key.String()]...), nil
}

func (r *repos) SumCredits(_ context.Context, key domain.PeriodKey) (int64, error) {
	st, done := r.read()
	defer done()
	var sum int64
	for _, e := range st.ledger[key.String()] {
		if e.AmountCents > 0 {
			sum += e.AmountCents
		}
	}
	return sum, nil
}

func (r *repos) Tail(_ context.Context, scope domain.AuditScope) (string, error) {
	st, done := r.read()
	defer done()
	for i := len(st.audit) - 1; i >= 0; i-- {
		if st.audit[i].Scope == scope {
			return st.audit[i].HashThis, nil
		}
	}
	return "", nil
}

func (r *repos) InsertEvent(_ context.Context, event *domain.AuditEvent) error {
	st, done := r.write()
	defer done()
	st.nextAuditID++
	event.ID = st.nextAuditID
	st.audit = append(st.audit, *event)
	return nil
}

func (r *repos) ListByPeriod(_ context.Context, abn, periodID string) ([]domain.AuditEvent, error) {
	st, done := r.read()
	defer done()
	out := []domain.AuditEvent{}
	for _, e := range st.audit {
		if e.PeriodID == periodID && (abn == "" || e.ABN == abn) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *repos) ListByScope(_ context.Context, scope domain.AuditScope) ([]domain.AuditEvent, error) {
	st, done := r.read()
	defer done()
	out := []domain.AuditEvent{}
	for _, e := range st.audit {
		if e.Scope == scope {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *repos) InsertResult(_ context.Context, result domain.ReconResult) error {
	st, done := r.write()
	defer done()
	k := result.PeriodKey.String()
	st.recon[k] = append(st.recon[k], result)
	return nil
}

func (r *repos) LatestResult(_ context.Context, key domain.PeriodKey) (*domain.ReconResult, error) {
	st, done := r.read()
	defer done()
	results := st.recon[key.String()]
	if len(results) == 0 {
		return nil, fmt.Errorf("recon result for %s: %w", key, apperrors.ErrNotFound)
	}
	latest := results[len(results)-1]
	return &latest, nil
}

func (r *repos) InsertToken(_ context.Context, record domain.RPTRecord) error {
	st, done := r.write()
	defer done()
	for _, tokens := range st.rpt {
		for _, t := range tokens {
			if t.Nonce == record.Nonce {
				return fmt.Errorf("rpt nonce %s: %w", record.Nonce, apperrors.ErrDuplicate)
			}
		}
	}
	k := record.PeriodKey.String()
	st.rpt[k] = append(st.rpt[k], record)
	return nil
}

func (r *repos) LatestToken(_ context.Context, key domain.PeriodKey) (*domain.RPTRecord, error) {
	st, done := r.read()
	defer done()
	tokens := st.rpt[key.String()]
	if len(tokens) == 0 {
		return nil, fmt.Errorf("rpt for %s: %w", key, apperrors.ErrNotFound)
	}
	latest := tokens[len(tokens)-1]
	return &latest, nil
}

func (r *repos) UpdateTokenStatus(_ context.Context, nonce string, status domain.RPTStatus) error {
	st, done := r.write()
	defer done()
	for k, tokens := range st.rpt {
		for i := range tokens {
			if tokens[i].Nonce == nonce {
				st.rpt[k][i].Status = status
				return nil
			}
		}
	}
	return fmt.Errorf("rpt nonce %s: %w", nonce, apperrors.ErrNotFound)
}

// LockPeriod is satisfied by the store-wide transaction lock.
func (r *repos) LockPeriod(ctx context.Context, _ domain.PeriodKey) error {
	return ctxErr(ctx)
}

func (r *repos) LockScope(ctx context.Context, _ domain.AuditScope) error {
	return ctxErr(ctx)
}

func ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.From(err)
	}
	return nil
}

type idempotencyRepo Store

var _ portsrepo.IdempotencyRepository = (*idempotencyRepo)(nil)

func (r *idempotencyRepo) InsertPending(_ context.Context, record domain.IdempotencyRecord) (bool, error) {
	r.idemMu.Lock()
	defer r.idemMu.Unlock()
	if _, ok := r.idem[record.Key]; ok {
		return false, nil
	}
	r.idem[record.Key] = record
	return true, nil
}

func (r *idempotencyRepo) Find(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.idemMu.Lock()
	defer r.idemMu.Unlock()
	rec, ok := r.idem[key]
	if !ok {
		return nil, fmt.Errorf("idempotency key %s: %w", key, apperrors.ErrNotFound)
	}
	return &rec, nil
}

func (r *idempotencyRepo) MarkApplied(_ context.Context, key string, response domain.CachedResponse, responseHash string, now time.Time) error {
	r.idemMu.Lock()
	defer r.idemMu.Unlock()
	rec, ok := r.idem[key]
	if !ok {
		return fmt.Errorf("idempotency key %s: %w", key, apperrors.ErrNotFound)
	}
	rec.Status = domain.IdempotencyApplied
	rec.Response = response
	rec.ResponseHash = responseHash
	rec.UpdatedAt = now
	r.idem[key] = rec
	return nil
}

func (r *idempotencyRepo) MarkFailed(_ context.Context, key string, cause string, response *domain.CachedResponse, now time.Time) error {
	r.idemMu.Lock()
	defer r.idemMu.Unlock()
	rec, ok := r.idem[key]
	if !ok {
		return fmt.Errorf("idempotency key %s: %w", key, apperrors.ErrNotFound)
	}
	rec.Status = domain.IdempotencyFailed
	rec.FailureCause = cause
	if response != nil {
		rec.Response = *response
	}
	rec.UpdatedAt = now
	r.idem[key] = rec
	return nil
}

func (r *idempotencyRepo) ReclaimExpired(_ context.Context, key string, now time.Time) (bool, error) {
	r.idemMu.Lock()
	defer r.idemMu.Unlock()
	rec, ok := r.idem[key]
	if !ok || !rec.Expired(now) {
		return false, nil
	}
	delete(r.idem, key)
	return true, nil
}

func (r *idempotencyRepo) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.idemMu.Lock()
	defer r.idemMu.Unlock()
	var n int64
	for k, rec := range r.idem {
		if rec.Expired(now) {
			delete(r.idem, k)
			n++
		}
	}
	return n, nil
}

type jtiRegistry Store

var _ portsrepo.JTIRegistry = (*jtiRegistry)(nil)

func (r *jtiRegistry) Consume(_ context.Context, nonce string, expiresAt time.Time) (bool, error) {
	r.jtiMu.Lock()
	defer r.jtiMu.Unlock()
	if _, ok := r.jti[nonce]; ok {
		return false, nil
	}
	r.jti[nonce] = expiresAt
	return true, nil
}

func (r *jtiRegistry) Release(_ context.Context, nonce string) error {
	r.jtiMu.Lock()
	defer r.jtiMu.Unlock()
	delete(r.jti, nonce)
	return nil
}

func (r *jtiRegistry) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	r.jtiMu.Lock()
	defer r.jtiMu.Unlock()
	var n int64
	for nonce, exp := range r.jti {
		if !exp.After(now) {
			delete(r.jti, nonce)
			n++
		}
	}
	return n, nil
}
