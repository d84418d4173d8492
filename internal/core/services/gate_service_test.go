package services_test

import (
	"testing"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/hashchain"
	"github.com/stretchr/testify/suite"
)

type GateServiceTestSuite struct {
	coreSuite
}

func TestGateService(t *testing.T) {
	suite.Run(t, new(GateServiceTestSuite))
}

func (suite *GateServiceTestSuite) TestHashIsFoldOfTransitions() {
	k := gstKey()
	steps := []struct {
		state  domain.GateState
		reason string
		actor  string
	}{
		{domain.StateOpen, "", "A"},
		{domain.StatePendingClose, "", "A"},
		{domain.StateBlocked, "MISSING_BAS", "A"},
		{domain.StateReconciling, "", "B"},
		{domain.StateRPTIssued, "", "A"},
		{domain.StateRemitted, "", "B"},
	}

	want := ""
	var last *domain.TransitionResult
	for _, st := range steps {
		suite.clock.Advance(time.Second)
		last = suite.mustTransition(k, st.state, st.reason, st.actor)
		suite.True(last.Applied)

		body, err := canonical.Marshal(domain.TransitionPayload(k.PeriodID, st.state, st.reason, st.actor, suite.clock.Now()))
		suite.Require().NoError(err)
		want, err = hashchain.LinkHex(want, body)
		suite.Require().NoError(err)
		suite.Equal(want, last.Hash)
	}

	period, err := suite.svc.Gate.GetPeriod(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(domain.StateRemitted, period.State)
	suite.Equal(want, period.HashThis)
	suite.Equal("A", period.RPTIssuedBy)
	suite.Equal("B", period.LastActor)
	suite.True(period.State.Terminal())
}

func (suite *GateServiceTestSuite) TestInvalidTransitions() {
	k := gstKey()

	_, err := suite.transition(k, domain.StatePendingClose, "", "A")
	suite.True(apperrors.Is(err, apperrors.CodeInvalidTransition), "unopened period")

	suite.mustTransition(k, domain.StateOpen, "", "A")

	_, err = suite.transition(k, domain.StateRPTIssued, "", "A")
	suite.True(apperrors.Is(err, apperrors.CodeInvalidTransition), "skipping states")

	_, err = suite.transition(k, domain.GateState("CLOSED"), "", "A")
	suite.True(apperrors.Is(err, apperrors.CodeInvalidTransition), "unknown state")
	suite.Equal(409, apperrors.From(err).Status)
}

func (suite *GateServiceTestSuite) TestBlockedRequiresReason() {
	k := gstKey()
	suite.mustTransition(k, domain.StateOpen, "", "A")

	_, err := suite.transition(k, domain.StateBlocked, "", "A")
	suite.True(apperrors.Is(err, apperrors.CodeBlockedRequiresReason))
	suite.Equal(422, apperrors.From(err).Status)

	res := suite.mustTransition(k, domain.StateBlocked, "GST_SHORTFALL", "A")
	suite.Equal("GST_SHORTFALL", res.Period.ReasonCode)
}

func (suite *GateServiceTestSuite) TestIdentityTransitionIsNoop() {
	k := gstKey()
	first := suite.mustTransition(k, domain.StateOpen, "", "A")
	again := suite.mustTransition(k, domain.StateOpen, "", "A")

	suite.False(again.Applied)
	suite.Equal(first.Hash, again.Hash)

	events, err := suite.svc.Audit.Bundle(suite.ctx, k.ABN, k.PeriodID)
	suite.Require().NoError(err)
	suite.Len(events, 1)
}

func (suite *GateServiceTestSuite) TestSeparationOfDuties() {
	k := gstKey()
	suite.seedIssued(k)

	_, err := suite.transition(k, domain.StateRemitted, "", "A")
	suite.True(apperrors.Is(err, apperrors.CodeSeparationOfDuties))
	suite.Equal(403, apperrors.From(err).Status)

	_, err = suite.transition(k, domain.StateRemitted, "", "")
	suite.True(apperrors.Is(err, apperrors.CodeSeparationOfDuties), "anonymous remit")

	res := suite.mustTransition(k, domain.StateRemitted, "", "B")
	suite.Equal(domain.StateRemitted, res.Period.State)
}

func (suite *GateServiceTestSuite) TestBlockedToOpenIsUnrestrictedByDefault() {
	k := gstKey()
	suite.mustTransition(k, domain.StateOpen, "", "A")
	suite.mustTransition(k, domain.StateBlocked, "HOLD", "A")

	res := suite.mustTransition(k, domain.StateOpen, "", "anyone")
	suite.Equal(domain.StateOpen, res.Period.State)
}

func (suite *GateServiceTestSuite) TestOverrideActorsGuardBlocked() {
	suite.setup([]string{"supervisor"})
	k := gstKey()
	suite.mustTransition(k, domain.StateOpen, "", "A")
	suite.mustTransition(k, domain.StateBlocked, "HOLD", "A")

	_, err := suite.transition(k, domain.StateOpen, "", "A")
	suite.True(apperrors.Is(err, apperrors.CodeForbidden))

	res := suite.mustTransition(k, domain.StateOpen, "", "supervisor")
	suite.Equal(domain.StateOpen, res.Period.State)
}

func (suite *GateServiceTestSuite) TestTransitionsAreAudited() {
	k := gstKey()
	suite.mustTransition(k, domain.StateOpen, "", "A")
	suite.mustTransition(k, domain.StatePendingClose, "", "A")

	report, err := suite.svc.Audit.VerifyScope(suite.ctx, domain.ScopeBASGate)
	suite.Require().NoError(err)
	suite.True(report.Valid)
	suite.Equal(2, report.Length)

	events, err := suite.svc.Audit.Bundle(suite.ctx, "", k.PeriodID)
	suite.Require().NoError(err)
	suite.Require().Len(events, 2)
	suite.Equal(events[0].HashThis, events[1].HashPrev)
	suite.Equal("gate_transition", events[1].EventKind)
}

func (suite *GateServiceTestSuite) TestGetPeriodNotFound() {
	_, err := suite.svc.Gate.GetPeriod(suite.ctx, gstKey())
	suite.True(apperrors.Is(err, apperrors.CodeNotFound))
}
