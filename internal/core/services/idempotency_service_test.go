package services_test

import (
	"testing"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/core/services"
	"github.com/stretchr/testify/suite"
)

type IdempotencyServiceTestSuite struct {
	coreSuite
}

func TestIdempotencyService(t *testing.T) {
	suite.Run(t, new(IdempotencyServiceTestSuite))
}

func (suite *IdempotencyServiceTestSuite) TestLifecycle() {
	svc := suite.svc.Idempotency

	first, err := svc.Acquire(suite.ctx, "remit:k1", time.Hour, false)
	suite.Require().NoError(err)
	suite.Equal(domain.OutcomeAcquired, first.Outcome)
	suite.True(first.WasCreated)

	busy, err := svc.Acquire(suite.ctx, "remit:k1", time.Hour, false)
	suite.Require().NoError(err)
	suite.Equal(domain.OutcomeInProgress, busy.Outcome)

	shared, err := svc.Acquire(suite.ctx, "remit:k1", time.Hour, true)
	suite.Require().NoError(err)
	suite.Equal(domain.OutcomeAcquired, shared.Outcome)
	suite.False(shared.WasCreated)

	body := []byte(`{"ok": true, "status": "REMITTED"}`)
	suite.Require().NoError(svc.MarkApplied(suite.ctx, "remit:k1", domain.CachedResponse{
		HTTPStatus:  200,
		Body:        body,
		ContentType: "application/json",
	}))

	replay, err := svc.Acquire(suite.ctx, "remit:k1", time.Hour, false)
	suite.Require().NoError(err)
	suite.Equal(domain.OutcomeReplay, replay.Outcome)
	suite.Require().NotNil(replay.Record)
	suite.Equal(body, replay.Record.Response.Body)
	suite.Equal(200, replay.Record.Response.HTTPStatus)
	suite.Equal(canonical.SHA256Hex([]byte(`{"ok":true,"status":"REMITTED"}`)), replay.Record.ResponseHash)
}

func (suite *IdempotencyServiceTestSuite) TestFailedKeysReplayTheirCause() {
	svc := suite.svc.Idempotency
	_, err := svc.Acquire(suite.ctx, "remit:k2", time.Hour, false)
	suite.Require().NoError(err)
	suite.Require().NoError(svc.MarkFailed(suite.ctx, "remit:k2", string(apperrors.CodeKillSwitch), nil))

	res, err := svc.Acquire(suite.ctx, "remit:k2", time.Hour, false)
	suite.Require().NoError(err)
	suite.Equal(domain.OutcomeFailed, res.Outcome)
	suite.Equal(string(apperrors.CodeKillSwitch), res.Record.FailureCause)
}

func (suite *IdempotencyServiceTestSuite) TestExpiredKeyIsReclaimed() {
	svc := suite.svc.Idempotency
	_, err := svc.Acquire(suite.ctx, "remit:k3", time.Minute, false)
	suite.Require().NoError(err)
	suite.Require().NoError(svc.MarkApplied(suite.ctx, "remit:k3", domain.CachedResponse{HTTPStatus: 200, Body: []byte(`{}`)}))

	suite.clock.Advance(time.Minute)
	res, err := svc.Acquire(suite.ctx, "remit:k3", time.Minute, false)
	suite.Require().NoError(err)
	suite.Equal(domain.OutcomeAcquired, res.Outcome)
	suite.True(res.WasCreated)
}

func (suite *IdempotencyServiceTestSuite) TestEmptyKeyRejected() {
	_, err := suite.svc.Idempotency.Acquire(suite.ctx, "", time.Minute, false)
	suite.True(apperrors.Is(err, apperrors.CodeInvalidPayload))
}

func (suite *IdempotencyServiceTestSuite) TestSweep() {
	svc := suite.svc.Idempotency
	_, err := svc.Acquire(suite.ctx, "short", time.Minute, false)
	suite.Require().NoError(err)
	_, err = svc.Acquire(suite.ctx, "long", time.Hour, false)
	suite.Require().NoError(err)

	ok, err := suite.provider.JTI.Consume(suite.ctx, "nonce-1", suite.clock.Now().Add(time.Minute))
	suite.Require().NoError(err)
	suite.True(ok)

	suite.clock.Advance(2 * time.Minute)
	idem, jti, err := svc.Sweep(suite.ctx)
	suite.Require().NoError(err)
	suite.Equal(int64(1), idem)
	suite.Equal(int64(1), jti)

	res, err := svc.Acquire(suite.ctx, "long", time.Hour, false)
	suite.Require().NoError(err)
	suite.Equal(domain.OutcomeInProgress, res.Outcome)
}

func TestResponseHash(t *testing.T) {
	a := services.ResponseHash([]byte(`{"b":1, "a":2}`))
	b := services.ResponseHash([]byte(`{"a":2,"b":1}`))
	if a != b {
		t.Fatalf("equivalent JSON hashed differently: %s != %s", a, b)
	}
	if got := services.ResponseHash([]byte("plain")); got != canonical.SHA256Hex([]byte("plain")) {
		t.Fatalf("raw body hash = %s", got)
	}
}
