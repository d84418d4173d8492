package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/core/ports/gateways"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
)

const (
	eventEgressRemit = "egress_remit"

	// commitTimeout bounds the ledger commit after a successful egress. The
	// commit does not inherit request cancellation.
	commitTimeout = 10 * time.Second
)

type remitService struct {
	BaseService
	store  portsrepo.RepositoryProvider
	rpt    portssvc.RPTSvcFacade
	gate   *gateService
	ledger *ledgerService
	egress gateways.EgressProvider
}

func NewRemitService(base BaseService, store portsrepo.RepositoryProvider, rpt portssvc.RPTSvcFacade, gate *gateService, ledger *ledgerService, egress gateways.EgressProvider) *remitService {
	return &remitService{BaseService: base, store: store, rpt: rpt, gate: gate, ledger: ledger, egress: egress}
}

// Remit verifies the RPT, pays it through the egress provider and commits the
// debit, the REMITTED transition and the egress audit event together. The
// nonce stays consumed once money has moved.
func (s *remitService) Remit(ctx context.Context, req dto.RemitRequest) (resp *dto.RemitResponse, err error) {
	defer func() { s.Metrics.Remit(err) }()

	token, err := s.rpt.Verify(ctx, req.RPT)
	if err != nil {
		return nil, apperrors.From(err).WithCause(apperrors.CodeInvalidSignature)
	}
	claims := token.Claims
	logger := s.GetLogger(ctx).With(slog.String("nonce", claims.Nonce), slog.String("period_id", claims.PeriodID))

	// The nonce goes back to the registry when nothing was paid. The deferred
	// release runs after the remit lock is dropped.
	var releaseNonce bool
	defer func() {
		if !releaseNonce {
			return
		}
		if err := s.rpt.Release(context.WithoutCancel(ctx), claims.Nonce); err != nil {
			logger.Error("Failed to release RPT nonce", slog.String("error", err.Error()))
		}
	}()
	fail := func(e *apperrors.AppError) (*dto.RemitResponse, error) {
		releaseNonce = true
		return nil, e.WithCause(e.Code)
	}

	key := domain.PeriodKey{ABN: claims.EntityID, TaxType: domain.TaxType(claims.TaxType), PeriodID: claims.PeriodID}
	switch {
	case req.PeriodID != claims.PeriodID,
		req.ABN != "" && req.ABN != claims.EntityID,
		req.TaxType != "" && req.TaxType != claims.TaxType:
		return fail(apperrors.New(apperrors.CodeInvalidPayload, "request does not match the RPT claims"))
	case strings.TrimSpace(req.Actor) == "":
		return fail(apperrors.New(apperrors.CodeInvalidPayload, "actor is required"))
	}
	if err := key.Validate(); err != nil {
		return fail(apperrors.From(err))
	}

	session, err := s.store.RemitLocker.AcquireRemitLock(ctx, key)
	if err != nil {
		return fail(apperrors.From(err))
	}
	defer func() {
		if err := session.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to release remit lock", slog.String("error", err.Error()))
		}
	}()

	repos := session.Repos()
	period, err := repos.Periods.FindPeriod(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return fail(apperrors.Newf(apperrors.CodeGateNotReady, "period %s has not been opened", key))
		}
		return fail(apperrors.From(err))
	}
	if period.State != domain.StateRPTIssued {
		return fail(apperrors.Newf(apperrors.CodeGateNotReady, "period is %s, want %s", period.State, domain.StateRPTIssued))
	}
	if req.Actor == period.RPTIssuedBy {
		return fail(apperrors.New(apperrors.CodeSeparationOfDuties, "the remitting actor must differ from the actor that issued the RPT"))
	}

	last, err := repos.Ledger.LastEntry(ctx, key)
	if err != nil {
		return fail(apperrors.From(err))
	}
	if balance := snapshotOf(key, last).BalanceCents; balance < claims.AmountCents {
		return fail(apperrors.Newf(apperrors.CodeLedgerUnderflow, "balance %d cannot cover %d", balance, claims.AmountCents))
	}

	start := s.Now()
	receipt, err := s.egress.Remit(ctx, gateways.Instruction{
		PeriodKey:      key,
		AmountCents:    claims.AmountCents,
		RailID:         claims.RailID,
		DestinationID:  claims.DestinationID,
		Reference:      claims.Reference,
		IdempotencyKey: req.IdempotencyKey,
		Nonce:          claims.Nonce,
	})
	s.Metrics.Egress(s.Now().Sub(start), err)
	if err != nil {
		logger.Warn("Egress failed", slog.String("error", err.Error()))
		return fail(apperrors.From(err))
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	var transition *domain.TransitionResult
	err = session.WithinTx(commitCtx, func(ctx context.Context, repos portsrepo.Repositories) error {
		entry, _, err := s.ledger.append(ctx, repos, key, -claims.AmountCents, receipt.ReceiptHash, req.Actor)
		if err != nil {
			return err
		}
		transition, err = s.gate.transition(ctx, repos, key, domain.StateRemitted, "", req.Actor)
		if err != nil {
			return err
		}
		_, err = s.appendAudit(ctx, repos, domain.AuditEvent{
			Scope:     domain.ScopeEgress,
			ABN:       key.ABN,
			TaxType:   key.TaxType,
			PeriodID:  key.PeriodID,
			EventKind: eventEgressRemit,
			Actor:     req.Actor,
		}, map[string]any{
			"amount_cents":   claims.AmountCents,
			"bank_reference": receipt.BankReference,
			"receipt_hash":   receipt.ReceiptHash,
			"nonce":          claims.Nonce,
			"rail_id":        claims.RailID,
			"destination_id": claims.DestinationID,
			"reference":      claims.Reference,
			"ledger_hash":    entry.HashThis,
			"gate_hash":      transition.Hash,
			"actor":          req.Actor,
		})
		if err != nil {
			return err
		}
		if err := repos.RPT.UpdateTokenStatus(ctx, claims.Nonce, domain.RPTConsumed); err != nil && !isNotFound(err) {
			return err
		}
		return nil
	})
	if err != nil {
		// Money has moved: the nonce is deliberately kept so the token cannot
		// be paid twice.
		logger.Error("Ledger commit failed after successful egress",
			slog.String("error", err.Error()),
			slog.String("bank_reference", receipt.BankReference),
			slog.String("receipt_hash", receipt.ReceiptHash))
		appErr := apperrors.From(err)
		if appErr.Code == apperrors.CodeTimeout {
			appErr = apperrors.Wrap(apperrors.CodeInternal, "remittance was paid but could not be recorded", err)
		}
		return nil, appErr.WithCause(appErr.Code)
	}

	logger.Info("Remittance completed",
		slog.String("bank_reference", receipt.BankReference),
		slog.Int64("amount_cents", claims.AmountCents))
	return &dto.RemitResponse{
		OK:            true,
		BankReference: receipt.BankReference,
		ReceiptHash:   receipt.ReceiptHash,
		Status:        string(domain.StateRemitted),
		Hash:          transition.Hash,
	}, nil
}
