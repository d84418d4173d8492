package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/hashchain"
	"github.com/apgms/apgms/internal/recon"
	"github.com/google/uuid"
)

type reconService struct {
	BaseService
	store portsrepo.RepositoryProvider
	gate  *gateService
	rpt   portssvc.RPTSvcFacade
}

// NewReconService creates the reconciliation service. rpt may be nil, in which
// case runs never issue tokens.
func NewReconService(base BaseService, store portsrepo.RepositoryProvider, gate *gateService, rpt portssvc.RPTSvcFacade) *reconService {
	return &reconService{BaseService: base, store: store, gate: gate, rpt: rpt}
}

func (s *reconService) Status(ctx context.Context, key domain.PeriodKey) (*domain.ReconResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	result, err := s.store.Reader.Recon.LatestResult(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "period %s has not been reconciled", key)
		}
		return nil, apperrors.From(err)
	}
	return result, nil
}

func (s *reconService) Run(ctx context.Context, req dto.ReconRunRequest) (*dto.ReconRunResponse, error) {
	key := req.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	score, err := recon.ParseScore(req.Summary.AnomalyScore)
	if err != nil {
		return nil, err
	}
	ceiling, err := recon.ParseScore(req.Tolerances.AnomalyCeiling)
	if err != nil {
		return nil, err
	}
	tol := recon.Tolerances{AbsCents: req.Tolerances.AbsCents, BPS: req.Tolerances.BPS, AnomalyCeilingPPM: ceiling}
	if err := tol.Validate(); err != nil {
		return nil, err
	}
	summary := recon.TaxSummary{
		PAYGWCents:      req.Summary.PAYGWCents,
		GSTCents:        req.Summary.GSTCents,
		AnomalyScorePPM: score,
		Metrics:         req.Summary.Metrics,
	}

	resp := &dto.ReconRunResponse{}
	err = s.store.Transactor.WithinTx(ctx, func(ctx context.Context, repos portsrepo.Repositories) error {
		if err := s.lockPeriod(ctx, repos, key); err != nil {
			return err
		}
		snapshot, err := s.snapshot(ctx, repos, key, req.Actuals)
		if err != nil {
			return err
		}

		directive := recon.Evaluate(summary, snapshot, tol)
		cmp := directive.For(key.TaxType)
		result := domain.ReconResult{
			ID:                uuid.NewString(),
			PeriodKey:         key,
			ExpectedCents:     cmp.ExpectedCents,
			ActualCents:       cmp.ActualCents,
			DeltaCents:        cmp.DeltaCents,
			ToleranceCents:    tol.AbsCents,
			ToleranceBPS:      tol.BPS,
			AnomalyScorePPM:   score,
			AnomalyCeilingPPM: ceiling,
			Status:            directive.Status,
			ReasonCodes:       directive.ReasonCodes,
			NextState:         directive.NextState,
			CreatedAt:         s.Now(),
		}
		if err := repos.Recon.InsertResult(ctx, result); err != nil {
			return err
		}
		if err := s.refreshPeriod(ctx, repos, key, cmp.ExpectedCents); err != nil {
			return err
		}
		resp.Result = result
		resp.Metrics = directive.Metrics

		if !req.Apply {
			return nil
		}
		transition, err := s.gate.transition(ctx, repos, key, directive.NextState,
			strings.Join(directive.ReasonCodes, ","), req.Actor)
		if err != nil {
			return err
		}
		out := dto.ToGateTransitionResponse(transition)
		resp.Transition = &out
		return nil
	})
	if err != nil {
		s.LogError(ctx, err, "Reconciliation failed", slog.String("period", key.String()))
		return nil, apperrors.From(err)
	}
	s.LogInfo(ctx, "Reconciliation evaluated",
		slog.String("period", key.String()),
		slog.String("status", string(resp.Result.Status)),
		slog.Any("reason_codes", resp.Result.ReasonCodes))

	if resp.Transition != nil && resp.Transition.State == string(domain.StateRPTIssued) &&
		req.Remittance != nil && s.rpt != nil {
		issued, err := s.rpt.Issue(ctx, dto.RPTIssueRequest{
			PeriodRef:       req.PeriodRef,
			RemittanceInput: *req.Remittance,
			Actor:           req.Actor,
		})
		if err != nil {
			// The reconciliation and transition stay committed; the token can
			// be issued again through the RPT endpoint.
			s.LogError(ctx, err, "RPT issuance after reconciliation failed", slog.String("period", key.String()))
			return nil, err
		}
		resp.RPT = issued
	}
	return resp, nil
}

// snapshot reads the PAYGW and GST balances of the period unless the caller
// supplied them.
func (s *reconService) snapshot(ctx context.Context, repos portsrepo.Repositories, key domain.PeriodKey, actuals *dto.LedgerActualsInput) (recon.LedgerSnapshot, error) {
	if actuals != nil {
		return recon.LedgerSnapshot{PAYGWCents: actuals.PAYGWCents, GSTCents: actuals.GSTCents}, nil
	}
	var snap recon.LedgerSnapshot
	for _, line := range []struct {
		taxType domain.TaxType
		dst     *int64
	}{
		{domain.TaxTypePAYGW, &snap.PAYGWCents},
		{domain.TaxTypeGST, &snap.GSTCents},
	} {
		k := key
		k.TaxType = line.taxType
		last, err := repos.Ledger.LastEntry(ctx, k)
		if err != nil {
			return recon.LedgerSnapshot{}, err
		}
		if last != nil {
			*line.dst = last.BalanceAfterCents
		}
	}
	return snap, nil
}

// refreshPeriod stores the ledger evidence an RPT will later bind to.
func (s *reconService) refreshPeriod(ctx context.Context, repos portsrepo.Repositories, key domain.PeriodKey, liability int64) error {
	period, err := repos.Periods.FindPeriod(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}
	entries, err := repos.Ledger.ListEntries(ctx, key)
	if err != nil {
		return err
	}
	evidence, err := evidenceOf(entries)
	if err != nil {
		return err
	}
	credits, err := repos.Ledger.SumCredits(ctx, key)
	if err != nil {
		return err
	}
	period.FinalLiabilityCents = liability
	period.AccruedCents = liability
	period.CreditedCents = credits
	period.MerkleRoot = evidence.merkleRoot
	period.RunningBalanceHash = evidence.runningBalanceHash
	return repos.Periods.SavePeriod(ctx, *period)
}

type ledgerEvidence struct {
	merkleRoot         string
	runningBalanceHash string
	balanceCents       int64
}

// evidenceOf folds the entry hashes into a Merkle root. An empty ledger has
// the zero root and the zero running hash.
func evidenceOf(entries []domain.LedgerEntry) (ledgerEvidence, error) {
	leaves := make([]string, len(entries))
	for i, e := range entries {
		leaves[i] = e.HashThis
	}
	root, err := hashchain.MerkleRootHex(leaves)
	if err != nil {
		return ledgerEvidence{}, apperrors.Wrap(apperrors.CodeInternal, "ledger hash is corrupt", err)
	}
	ev := ledgerEvidence{merkleRoot: root, runningBalanceHash: zeroHash}
	if n := len(entries); n > 0 {
		ev.runningBalanceHash = entries[n-1].HashThis
		ev.balanceCents = entries[n-1].BalanceAfterCents
	}
	return ev, nil
}

var zeroHash = strings.Repeat("0", 2*hashchain.Size)
