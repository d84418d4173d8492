package services

import (
	"context"
	"log/slog"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/hashchain"
)

const eventGateTransition = "gate_transition"

type gateService struct {
	BaseService
	store          portsrepo.RepositoryProvider
	overrideActors map[string]struct{}
}

// NewGateService creates the BAS gate service. When overrideActors is
// non-empty only those actors may move a period out of BLOCKED.
func NewGateService(base BaseService, store portsrepo.RepositoryProvider, overrideActors []string) *gateService {
	s := &gateService{BaseService: base, store: store}
	if len(overrideActors) > 0 {
		s.overrideActors = make(map[string]struct{}, len(overrideActors))
		for _, a := range overrideActors {
			s.overrideActors[a] = struct{}{}
		}
	}
	return s
}

func (s *gateService) GetPeriod(ctx context.Context, key domain.PeriodKey) (*domain.Period, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	period, err := s.store.Reader.Periods.FindPeriod(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "period %s not found", key)
		}
		s.LogError(ctx, err, "Failed to load period", slog.String("period", key.String()))
		return nil, apperrors.From(err)
	}
	return period, nil
}

func (s *gateService) Transition(ctx context.Context, req dto.GateTransitionRequest) (*domain.TransitionResult, error) {
	key := req.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	target, ok := domain.ParseGateState(req.TargetState)
	if !ok {
		err := apperrors.Newf(apperrors.CodeInvalidTransition, "unrecognised state %q", req.TargetState)
		s.Metrics.GateTransition(req.TargetState, err)
		return nil, err
	}

	var result *domain.TransitionResult
	err := s.store.Transactor.WithinTx(ctx, func(ctx context.Context, repos portsrepo.Repositories) error {
		var err error
		result, err = s.transition(ctx, repos, key, target, req.ReasonCode, req.Actor)
		return err
	})
	s.Metrics.GateTransition(string(target), err)
	if err != nil {
		if !apperrors.Is(err, apperrors.CodeInvalidTransition) {
			s.LogError(ctx, err, "Gate transition failed",
				slog.String("period", key.String()), slog.String("target", string(target)))
		}
		return nil, apperrors.From(err)
	}

	if result.Applied {
		s.LogInfo(ctx, "Gate transitioned",
			slog.String("period", key.String()),
			slog.String("state", string(target)),
			slog.String("hash", result.Hash))
	}
	return result, nil
}

// transition applies one gate move inside an open transaction. It is shared by
// reconciliation and remittance so their effects commit together.
func (s *gateService) transition(ctx context.Context, repos portsrepo.Repositories, key domain.PeriodKey, target domain.GateState, reason, actor string) (*domain.TransitionResult, error) {
	if err := s.lockPeriod(ctx, repos, key); err != nil {
		return nil, err
	}

	current, err := repos.Periods.FindPeriod(ctx, key)
	if err != nil && !isNotFound(err) {
		return nil, err
	}

	if current == nil {
		if target != domain.StateOpen {
			return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "period %s has not been opened", key)
		}
	} else {
		if current.State == target && current.ReasonCode == reason {
			return &domain.TransitionResult{Period: *current, Hash: current.HashThis}, nil
		}
		if !current.State.CanTransitionTo(target) {
			return nil, apperrors.Newf(apperrors.CodeInvalidTransition, "%s -> %s is not allowed", current.State, target)
		}
	}

	if target == domain.StateBlocked && reason == "" {
		return nil, apperrors.New(apperrors.CodeBlockedRequiresReason, "a reason_code is required to block a period")
	}
	if target == domain.StateRemitted && (actor == "" || actor == current.RPTIssuedBy) {
		return nil, apperrors.New(apperrors.CodeSeparationOfDuties, "the remitting actor must differ from the actor that issued the RPT")
	}
	if current != nil && current.State == domain.StateBlocked && s.overrideActors != nil {
		if _, ok := s.overrideActors[actor]; !ok {
			return nil, apperrors.Newf(apperrors.CodeForbidden, "actor %q may not override a blocked period", actor)
		}
	}

	now := s.Now()
	payload := domain.TransitionPayload(key.PeriodID, target, reason, actor, now)
	body, err := canonical.Marshal(payload)
	if err != nil {
		return nil, err
	}

	next := domain.Period{PeriodKey: key}
	if current != nil {
		next = *current
	}
	hash, err := hashchain.LinkHex(next.HashThis, body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "gate hash chain is corrupt", err)
	}
	next.HashPrev = next.HashThis
	next.HashThis = hash
	next.State = target
	next.ReasonCode = reason
	next.LastActor = actor
	next.UpdatedAt = now
	if target == domain.StateRPTIssued {
		next.RPTIssuedBy = actor
	}
	if err := repos.Periods.SavePeriod(ctx, next); err != nil {
		return nil, err
	}

	_, err = s.appendAudit(ctx, repos, domain.AuditEvent{
		Scope:     domain.ScopeBASGate,
		ABN:       key.ABN,
		TaxType:   key.TaxType,
		PeriodID:  key.PeriodID,
		EventKind: eventGateTransition,
		Actor:     actor,
		CreatedAt: now,
	}, payload)
	if err != nil {
		return nil, err
	}

	return &domain.TransitionResult{Period: next, Hash: hash, Applied: true}, nil
}
