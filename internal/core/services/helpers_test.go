package services_test

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/apgms/apgms/internal/adapters/database/memory"
	"github.com/apgms/apgms/internal/adapters/egress"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	portssvc "github.com/apgms/apgms/internal/core/ports/services"
	"github.com/apgms/apgms/internal/core/services"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/platform/clock"
	"github.com/apgms/apgms/internal/platform/config"
	"github.com/apgms/apgms/internal/rpt"
	"github.com/stretchr/testify/suite"
)

var epoch = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

const (
	testABN    = "12345678901"
	testPeriod = "2025-09"
)

func gstKey() domain.PeriodKey {
	return domain.PeriodKey{ABN: testABN, TaxType: domain.TaxTypeGST, PeriodID: testPeriod}
}

func refOf(k domain.PeriodKey) dto.PeriodRef {
	return dto.PeriodRef{ABN: k.ABN, TaxType: string(k.TaxType), PeriodID: k.PeriodID}
}

// coreSuite wires every service against the memory store, a fake clock and
// the sandbox rail.
type coreSuite struct {
	suite.Suite
	ctx      context.Context
	store    *memory.Store
	provider portsrepo.RepositoryProvider
	clock    *clock.FakeClock
	keyring  *rpt.Keyring
	sandbox  *egress.Sandbox
	kill     *egress.KillSwitch
	svc      *portssvc.ServiceContainer
	cfg      *config.Config
}

func (s *coreSuite) SetupTest() {
	s.setup(nil)
}

func (s *coreSuite) setup(overrideActors []string) {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.provider = s.store.Provider()
	s.clock = clock.NewFakeClock(epoch)
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	s.keyring = rpt.NewKeyring(ed25519.NewKeyFromSeed(seed))
	s.sandbox = egress.NewSandbox()
	s.kill = egress.NewKillSwitch(s.sandbox, false)
	s.cfg = &config.Config{RPTTTL: 10 * time.Minute, GateOverrideActors: overrideActors}
	s.svc = services.NewServiceContainer(s.cfg, s.provider, s.keyring, s.kill, services.WithClock(s.clock))
}

func (s *coreSuite) transition(k domain.PeriodKey, target domain.GateState, reason, actor string) (*domain.TransitionResult, error) {
	return s.svc.Gate.Transition(s.ctx, dto.GateTransitionRequest{
		PeriodRef:   refOf(k),
		TargetState: string(target),
		ReasonCode:  reason,
		Actor:       actor,
	})
}

func (s *coreSuite) mustTransition(k domain.PeriodKey, target domain.GateState, reason, actor string) *domain.TransitionResult {
	res, err := s.transition(k, target, reason, actor)
	s.Require().NoError(err)
	return res
}

func (s *coreSuite) credit(k domain.PeriodKey, amounts ...int64) {
	for _, a := range amounts {
		_, err := s.svc.Ledger.Append(s.ctx, dto.LedgerAppendRequest{PeriodRef: refOf(k), AmountCents: a, Actor: "bank-feed"})
		s.Require().NoError(err)
	}
}

// seedReconciling opens a GST period with a 123_456 cent balance and drives
// it to RECONCILING as actor A.
func (s *coreSuite) seedReconciling(k domain.PeriodKey) {
	s.mustTransition(k, domain.StateOpen, "", "A")
	s.credit(k, 50_000, 40_000, 33_456)
	s.mustTransition(k, domain.StatePendingClose, "", "A")
	s.mustTransition(k, domain.StateReconciling, "", "A")
}

// seedIssued additionally reconciles and moves the period to RPT_ISSUED as A.
func (s *coreSuite) seedIssued(k domain.PeriodKey) {
	s.seedReconciling(k)
	_, err := s.svc.Recon.Run(s.ctx, dto.ReconRunRequest{
		PeriodRef:  refOf(k),
		Summary:    dto.TaxSummaryInput{GSTCents: 123_456, AnomalyScore: "0.05"},
		Tolerances: dto.TolerancesInput{AnomalyCeiling: "0.8"},
		Actor:      "A",
	})
	s.Require().NoError(err)
	s.mustTransition(k, domain.StateRPTIssued, "", "A")
}

func (s *coreSuite) issue(k domain.PeriodKey, amount int64) *dto.RPTIssueResponse {
	resp, err := s.svc.RPT.Issue(s.ctx, dto.RPTIssueRequest{
		PeriodRef: refOf(k),
		RemittanceInput: dto.RemittanceInput{
			RailID:        "EFT",
			DestinationID: "ATO-PRN-1",
			Reference:     "GST-2025-09",
			ExpiryTS:      s.clock.Now().Add(600 * time.Second).Unix(),
		},
		AmountCents: amount,
		Actor:       "A",
	})
	s.Require().NoError(err)
	return resp
}
