package services

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/apgms/apgms/internal/apperrors"
	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	portsrepo "github.com/apgms/apgms/internal/core/ports/repositories"
	"github.com/apgms/apgms/internal/dto"
	"github.com/apgms/apgms/internal/platform/clock"
	"github.com/apgms/apgms/internal/rpt"
	"github.com/google/uuid"
)

const (
	eventRPTIssued = "rpt_issued"

	// DefaultRPTTTL applies when no expiry is requested.
	DefaultRPTTTL = 10 * time.Minute
)

type rptService struct {
	BaseService
	store    portsrepo.RepositoryProvider
	keyring  *rpt.Keyring
	issuer   *rpt.Issuer
	verifier *rpt.Verifier
	ttl      time.Duration
}

// NewRPTService creates the token service. Nonces are consumed through the
// provider's JTI registry.
func NewRPTService(base BaseService, store portsrepo.RepositoryProvider, keyring *rpt.Keyring, ttl time.Duration) *rptService {
	if ttl <= 0 {
		ttl = DefaultRPTTTL
	}
	if base.Clock == nil {
		base.Clock = clock.System{}
	}
	s := &rptService{
		BaseService: base,
		store:       store,
		keyring:     keyring,
		issuer:      rpt.NewIssuer(keyring),
		ttl:         ttl,
	}
	s.verifier = rpt.NewVerifier(keyring, base.Clock, rpt.WithReplayGuard(jtiGuard{registry: store.JTI, base: &s.BaseService}))
	return s
}

// jtiGuard adapts the JTI registry to the verifier's replay guard.
type jtiGuard struct {
	registry portsrepo.JTIRegistry
	base     *BaseService
}

func (g jtiGuard) Consume(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := g.registry.Consume(ctx, nonce, g.base.Now().Add(ttl))
	if err != nil {
		return apperrors.From(err)
	}
	if !ok {
		return apperrors.New(apperrors.CodeRPTReplayed, "rpt nonce has already been used")
	}
	return nil
}

func (s *rptService) Issue(ctx context.Context, req dto.RPTIssueRequest) (*dto.RPTIssueResponse, error) {
	key := req.Key()
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if !s.keyring.CanSign() {
		return nil, apperrors.New(apperrors.CodeInternal, "no RPT signing key is configured")
	}

	now := s.Now()
	expiry := now.Add(s.ttl)
	if req.ExpiryTS != 0 {
		if req.ExpiryTS <= now.Unix() {
			return nil, apperrors.New(apperrors.CodeInvalidPayload, "expiry_ts must be in the future")
		}
		expiry = time.Unix(req.ExpiryTS, 0).UTC()
	}

	var record domain.RPTRecord
	err := s.store.Transactor.WithinTx(ctx, func(ctx context.Context, repos portsrepo.Repositories) error {
		if err := s.lockPeriod(ctx, repos, key); err != nil {
			return err
		}
		period, err := repos.Periods.FindPeriod(ctx, key)
		if err != nil {
			if isNotFound(err) {
				return apperrors.Newf(apperrors.CodeGateNotReady, "period %s has not been opened", key)
			}
			return err
		}
		if period.State != domain.StateRPTIssued {
			return apperrors.Newf(apperrors.CodeGateNotReady, "period is %s, want %s", period.State, domain.StateRPTIssued)
		}

		amount := req.AmountCents
		if amount == 0 {
			amount = period.FinalLiabilityCents
		}
		if amount <= 0 {
			return apperrors.New(apperrors.CodeInvalidPayload, "amount_cents is required when the period has no final liability")
		}

		entries, err := repos.Ledger.ListEntries(ctx, key)
		if err != nil {
			return err
		}
		evidence, err := evidenceOf(entries)
		if err != nil {
			return err
		}
		anomaly, thresholds, err := s.reconVectors(ctx, repos, key)
		if err != nil {
			return err
		}

		claims := rpt.Claims{
			EntityID:           key.ABN,
			PeriodID:           key.PeriodID,
			TaxType:            string(key.TaxType),
			AmountCents:        amount,
			MerkleRoot:         evidence.merkleRoot,
			RunningBalanceHash: evidence.runningBalanceHash,
			AnomalyVector:      anomaly,
			Thresholds:         thresholds,
			RailID:             req.RailID,
			DestinationID:      req.DestinationID,
			ExpiryTS:           expiry.Unix(),
			Reference:          req.Reference,
			Nonce:              uuid.NewString(),
		}
		issued, err := s.issuer.Issue(claims)
		if err != nil {
			return err
		}

		record = domain.RPTRecord{
			ID:            uuid.NewString(),
			PeriodKey:     key,
			Token:         issued.Token,
			Nonce:         claims.Nonce,
			KeyID:         issued.KeyID,
			AmountCents:   amount,
			PayloadC14N:   issued.PayloadC14N,
			PayloadSHA256: issued.PayloadSHA256,
			Signature:     base64.StdEncoding.EncodeToString(issued.DetachedSignature),
			Status:        domain.RPTIssued,
			IssuedBy:      req.Actor,
			IssuedAt:      now,
			ExpiresAt:     expiry,
		}
		if err := repos.RPT.InsertToken(ctx, record); err != nil {
			return err
		}
		_, err = s.appendAudit(ctx, repos, domain.AuditEvent{
			Scope:     domain.ScopeRPT,
			ABN:       key.ABN,
			TaxType:   key.TaxType,
			PeriodID:  key.PeriodID,
			EventKind: eventRPTIssued,
			Actor:     req.Actor,
			CreatedAt: now,
		}, map[string]any{
			"kid":            record.KeyID,
			"nonce":          record.Nonce,
			"amount_cents":   record.AmountCents,
			"payload_sha256": record.PayloadSHA256,
			"expiry_ts":      claims.ExpiryTS,
			"actor":          req.Actor,
		})
		return err
	})
	if err != nil {
		if !apperrors.Is(err, apperrors.CodeGateNotReady) {
			s.LogError(ctx, err, "RPT issuance failed", slog.String("period", key.String()))
		}
		return nil, apperrors.From(err)
	}

	s.Metrics.RPTIssued()
	s.LogInfo(ctx, "RPT issued",
		slog.String("period", key.String()),
		slog.String("kid", record.KeyID),
		slog.String("nonce", record.Nonce),
		slog.Int64("amount_cents", record.AmountCents))
	resp := dto.ToRPTIssueResponse(&record, s.keyring.PublicKey())
	return &resp, nil
}

// reconVectors derives the anomaly and threshold claims from the latest
// reconciliation. A period that was never reconciled binds empty vectors.
func (s *rptService) reconVectors(ctx context.Context, repos portsrepo.Repositories, key domain.PeriodKey) (map[string]int64, map[string]int64, error) {
	result, err := repos.Recon.LatestResult(ctx, key)
	if err != nil {
		if isNotFound(err) {
			return map[string]int64{}, map[string]int64{}, nil
		}
		return nil, nil, err
	}
	anomaly := map[string]int64{
		"anomaly_score_ppm": result.AnomalyScorePPM,
		"delta_cents":       result.DeltaCents,
	}
	thresholds := map[string]int64{
		"abs_cents":           result.ToleranceCents,
		"bps":                 result.ToleranceBPS,
		"anomaly_ceiling_ppm": result.AnomalyCeilingPPM,
	}
	return anomaly, thresholds, nil
}

func (s *rptService) Verify(ctx context.Context, token string) (*rpt.Token, error) {
	t, err := s.verifier.Verify(ctx, token)
	s.Metrics.RPTVerified(err)
	if err != nil {
		s.GetLogger(ctx).Warn("RPT verification failed", slog.String("error_code", string(apperrors.CodeOf(err))))
		return nil, apperrors.From(err)
	}
	return t, nil
}

func (s *rptService) Release(ctx context.Context, nonce string) error {
	if err := s.store.JTI.Release(ctx, nonce); err != nil {
		s.LogError(ctx, err, "Failed to release RPT nonce", slog.String("nonce", nonce))
		return apperrors.From(err)
	}
	return nil
}

// VerifyDetached checks a signature over canonical claims. The verifying key
// is the supplied public key, else the key named by kid, else the signing key;
// in every case it must be trusted.
func (s *rptService) VerifyDetached(ctx context.Context, req dto.RPTVerifyRequest) (*dto.RPTVerifyResponse, error) {
	payload := []byte(req.PayloadC14N)
	normalized, err := canonical.Normalize(payload)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRPTMalformed, "payload_c14n is not JSON", err)
	}
	if string(normalized) != req.PayloadC14N {
		return nil, apperrors.New(apperrors.CodeRPTMalformed, "payload_c14n is not in canonical form")
	}
	sig, err := rpt.DecodeKey(req.SignatureB64)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRPTMalformed, "signature_b64 is not base64", err)
	}

	var pub ed25519.PublicKey
	switch {
	case req.PubkeyB64 != "":
		raw, err := rpt.DecodeKey(req.PubkeyB64)
		if err != nil || len(raw) != ed25519.PublicKeySize {
			return nil, apperrors.New(apperrors.CodeRPTMalformed, "pubkey_b64 is not an Ed25519 public key")
		}
		pub = raw
		if req.KeyID != "" && rpt.KeyID(pub) != req.KeyID {
			return nil, apperrors.New(apperrors.CodeRPTSignatureInvalid, "kid does not name pubkey_b64")
		}
		if !s.keyring.Trusted(pub) {
			return nil, apperrors.New(apperrors.CodeRPTSignatureInvalid, "public key is not trusted")
		}
	case req.KeyID != "":
		var ok bool
		if pub, ok = s.keyring.Lookup(req.KeyID); !ok {
			return nil, apperrors.Newf(apperrors.CodeRPTSignatureInvalid, "kid %s is not trusted", req.KeyID)
		}
	default:
		pub = s.keyring.PublicKey()
		if pub == nil {
			return nil, apperrors.New(apperrors.CodeRPTSignatureInvalid, "no verification key is configured")
		}
	}

	sum, err := rpt.VerifyDetached(pub, payload, sig)
	s.Metrics.RPTVerified(err)
	if err != nil {
		return nil, err
	}
	return &dto.RPTVerifyResponse{OK: true, PayloadSHA256: sum}, nil
}
