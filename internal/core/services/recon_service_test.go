package services_test

import (
	"testing"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/recon"
	"github.com/apgms/apgms/internal/rpt"
	"github.com/stretchr/testify/suite"
)

type ReconServiceTestSuite struct {
	coreSuite
}

func TestReconService(t *testing.T) {
	suite.Run(t, new(ReconServiceTestSuite))
}

func (suite *ReconServiceTestSuite) TestShortfallBlocksPeriod() {
	k := gstKey()
	suite.seedReconciling(k)

	resp, err := suite.svc.Recon.Run(suite.ctx, dto.ReconRunRequest{
		PeriodRef:  refOf(k),
		Summary:    dto.TaxSummaryInput{GSTCents: 123_456},
		Actuals:    &dto.LedgerActualsInput{GSTCents: 100_000},
		Tolerances: dto.TolerancesInput{AbsCents: 100},
		Apply:      true,
		Actor:      "A",
	})
	suite.Require().NoError(err)

	suite.Equal(domain.ReconFail, resp.Result.Status)
	suite.Equal([]string{recon.ReasonGSTShortfall}, resp.Result.ReasonCodes)
	suite.Equal(domain.StateBlocked, resp.Result.NextState)
	suite.Equal(int64(-23_456), resp.Result.DeltaCents)
	suite.Require().NotNil(resp.Transition)
	suite.Equal(string(domain.StateBlocked), resp.Transition.State)

	period, err := suite.svc.Gate.GetPeriod(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(domain.StateBlocked, period.State)
	suite.Equal(recon.ReasonGSTShortfall, period.ReasonCode)

	_, err = suite.transition(k, domain.StateRPTIssued, "", "A")
	suite.True(apperrors.Is(err, apperrors.CodeInvalidTransition))
}

func (suite *ReconServiceTestSuite) TestMatchingLedgerIsOK() {
	k := gstKey()
	suite.seedReconciling(k)

	resp, err := suite.svc.Recon.Run(suite.ctx, dto.ReconRunRequest{
		PeriodRef:  refOf(k),
		Summary:    dto.TaxSummaryInput{GSTCents: 123_456, AnomalyScore: "0.05"},
		Tolerances: dto.TolerancesInput{AbsCents: 100, AnomalyCeiling: "0.8"},
	})
	suite.Require().NoError(err)
	suite.Equal(domain.ReconOK, resp.Result.Status)
	suite.Empty(resp.Result.ReasonCodes)
	suite.Equal(domain.StateRPTIssued, resp.Result.NextState)
	suite.Equal(int64(50_000), resp.Result.AnomalyScorePPM)
	suite.Equal(int64(800_000), resp.Result.AnomalyCeilingPPM)
	suite.Nil(resp.Transition, "without apply the gate is untouched")

	period, err := suite.svc.Gate.GetPeriod(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(domain.StateReconciling, period.State)
	suite.Equal(int64(123_456), period.FinalLiabilityCents)
	suite.Equal(int64(123_456), period.CreditedCents)
	suite.Len(period.MerkleRoot, 64)

	latest, err := suite.svc.Recon.Status(suite.ctx, k)
	suite.Require().NoError(err)
	suite.Equal(resp.Result.ID, latest.ID)
}

func (suite *ReconServiceTestSuite) TestAnomalyBreach() {
	k := gstKey()
	suite.seedReconciling(k)

	resp, err := suite.svc.Recon.Run(suite.ctx, dto.ReconRunRequest{
		PeriodRef:  refOf(k),
		Summary:    dto.TaxSummaryInput{GSTCents: 123_456, AnomalyScore: "0.9"},
		Tolerances: dto.TolerancesInput{AnomalyCeiling: "0.8"},
	})
	suite.Require().NoError(err)
	suite.Equal([]string{recon.ReasonAnomalyBreach}, resp.Result.ReasonCodes)
}

func (suite *ReconServiceTestSuite) TestEvaluationIsDeterministic() {
	k := gstKey()
	suite.seedReconciling(k)
	req := dto.ReconRunRequest{
		PeriodRef:  refOf(k),
		Summary:    dto.TaxSummaryInput{PAYGWCents: 10_000, GSTCents: 120_000, Metrics: map[string]int64{"lines": 3}},
		Tolerances: dto.TolerancesInput{AbsCents: 50, BPS: 25},
	}

	first, err := suite.svc.Recon.Run(suite.ctx, req)
	suite.Require().NoError(err)
	second, err := suite.svc.Recon.Run(suite.ctx, req)
	suite.Require().NoError(err)

	suite.Equal(first.Result.Status, second.Result.Status)
	suite.Equal(first.Result.ReasonCodes, second.Result.ReasonCodes)
	suite.Equal(first.Result.DeltaCents, second.Result.DeltaCents)
	suite.Equal(first.Metrics, second.Metrics)
	suite.NotEqual(first.Result.ID, second.Result.ID)
}

func (suite *ReconServiceTestSuite) TestApplyWithRemittanceIssuesRPT() {
	k := gstKey()
	suite.seedReconciling(k)

	resp, err := suite.svc.Recon.Run(suite.ctx, dto.ReconRunRequest{
		PeriodRef:  refOf(k),
		Summary:    dto.TaxSummaryInput{GSTCents: 123_456},
		Tolerances: dto.TolerancesInput{AbsCents: 100},
		Apply:      true,
		Actor:      "A",
		Remittance: &dto.RemittanceInput{RailID: "EFT", DestinationID: "ATO-PRN-1", Reference: "GST-2025-09"},
	})
	suite.Require().NoError(err)
	suite.Require().NotNil(resp.Transition)
	suite.Equal(string(domain.StateRPTIssued), resp.Transition.State)
	suite.Require().NotNil(resp.RPT)
	suite.Equal(int64(123_456), resp.RPT.AmountCents)
	suite.Equal(rpt.KeyID(suite.keyring.PublicKey()), resp.RPT.KeyID)
}

func (suite *ReconServiceTestSuite) TestRejectsBadInput() {
	k := gstKey()
	_, err := suite.svc.Recon.Run(suite.ctx, dto.ReconRunRequest{
		PeriodRef: refOf(k),
		Summary:   dto.TaxSummaryInput{AnomalyScore: "-1"},
	})
	suite.True(apperrors.Is(err, apperrors.CodeInvalidPayload))

	_, err = suite.svc.Recon.Run(suite.ctx, dto.ReconRunRequest{
		PeriodRef:  refOf(k),
		Tolerances: dto.TolerancesInput{BPS: 20_000},
	})
	suite.True(apperrors.Is(err, apperrors.CodeInvalidPayload))
}

func (suite *ReconServiceTestSuite) TestStatusNotFound() {
	_, err := suite.svc.Recon.Status(suite.ctx, gstKey())
	suite.True(apperrors.Is(err, apperrors.CodeNotFound))
}
