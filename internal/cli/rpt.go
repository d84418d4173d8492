package cli

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/rpt"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRPTCommand groups the RPT token subcommands.
func NewRPTCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rpt",
		Short: "Issue, inspect and verify RPT tokens",
	}

	cmd.AddCommand(newRPTIssueCommand(opts))
	cmd.AddCommand(newRPTInspectCommand(opts))
	cmd.AddCommand(newRPTVerifyDetachedCommand(opts))

	return cmd
}

type issueResult struct {
	Token         string `json:"rpt"`
	KeyID         string `json:"kid"`
	PayloadC14N   string `json:"payload_c14n"`
	PayloadSHA256 string `json:"payload_sha256"`
	Signature     string `json:"signature_b64"`
	ExpiresAt     string `json:"expires_at"`
}

func newRPTIssueCommand(opts *RootOptions) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a claim set offline",
		Long: `Sign a JSON claim set with the configured RPT key.

The key comes from --key or APGMS_RPT_PRIVATE_KEY, falling back to --secret or
APGMS_RPT_SECRET. A missing nonce is generated and a zero expiry_ts is set
--ttl from now.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keyring, err := rpt.LoadKeyring(rpt.KeyMaterial{
				PrivateKey: v.GetString("private_key"),
				Secret:     v.GetString("secret"),
			})
			if err != nil {
				return WrapExitError(ExitValidation, "invalid key material", err)
			}
			if !keyring.CanSign() {
				return NewExitError(ExitValidation, "no signing key: set --key or APGMS_RPT_PRIVATE_KEY")
			}

			raw, err := readInput(cmd.InOrStdin(), v.GetString("claims"))
			if err != nil {
				return err
			}
			var claims rpt.Claims
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.DisallowUnknownFields()
			if err := dec.Decode(&claims); err != nil {
				return WrapExitError(ExitValidation, "invalid claims", err)
			}
			if claims.Nonce == "" {
				claims.Nonce = uuid.NewString()
			}
			if claims.ExpiryTS == 0 {
				claims.ExpiryTS = time.Now().Add(v.GetDuration("ttl")).Unix()
			}

			issued, err := rpt.NewIssuer(keyring).Issue(claims)
			if err != nil {
				return WrapExitError(ExitValidation, "failed to issue token", err)
			}

			res := issueResult{
				Token:         issued.Token,
				KeyID:         issued.KeyID,
				PayloadC14N:   string(issued.PayloadC14N),
				PayloadSHA256: issued.PayloadSHA256,
				Signature:     base64.StdEncoding.EncodeToString(issued.DetachedSignature),
				ExpiresAt:     time.Unix(claims.ExpiryTS, 0).UTC().Format(time.RFC3339),
			}
			return newFormatter(opts, cmd.OutOrStdout()).Emit(res, func(w io.Writer) {
				fmt.Fprintln(w, res.Token)
				fmt.Fprintf(w, "kid            %s\n", res.KeyID)
				fmt.Fprintf(w, "payload_sha256 %s\n", res.PayloadSHA256)
				fmt.Fprintf(w, "signature_b64  %s\n", res.Signature)
				fmt.Fprintf(w, "expires_at     %s\n", res.ExpiresAt)
			})
		},
	}

	cmd.Flags().String("key", "", "base64 or hex Ed25519 private key (default $APGMS_RPT_PRIVATE_KEY)")
	cmd.Flags().String("secret", "", "shared secret to derive the key from (default $APGMS_RPT_SECRET)")
	cmd.Flags().String("claims", "-", "claims JSON file, - for stdin")
	cmd.Flags().Duration("ttl", 15*time.Minute, "lifetime applied when expiry_ts is zero")
	_ = v.BindPFlag("private_key", cmd.Flags().Lookup("key"))
	_ = v.BindPFlag("secret", cmd.Flags().Lookup("secret"))
	_ = v.BindPFlag("claims", cmd.Flags().Lookup("claims"))
	_ = v.BindPFlag("ttl", cmd.Flags().Lookup("ttl"))
	_ = v.BindEnv("private_key", "APGMS_RPT_PRIVATE_KEY")
	_ = v.BindEnv("secret", "APGMS_RPT_SECRET")

	return cmd
}

type inspectResult struct {
	KeyID          string     `json:"kid"`
	VerifyKey      string     `json:"verify_key_b64"`
	SignatureValid bool       `json:"signature_valid"`
	ExpiresAt      string     `json:"expires_at"`
	Expired        bool       `json:"expired"`
	Claims         rpt.Claims `json:"claims"`
}

func newRPTInspectCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <token>",
		Short: "Decode a token and check its embedded signature",
		Long: `Decode a token and check the signature against its embedded verify key.

Trust, expiry and replay are server decisions; inspect only reports them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := rpt.Decode(args[0])
			if err != nil {
				return WrapExitError(ExitValidation, "malformed token", err)
			}
			_, sigErr := rpt.VerifyDetached(tok.VerifyKey, tok.Payload, tok.Signature)

			res := inspectResult{
				KeyID:          tok.KeyID(),
				VerifyKey:      base64.StdEncoding.EncodeToString(tok.VerifyKey),
				SignatureValid: sigErr == nil,
				ExpiresAt:      tok.Expiry().Format(time.RFC3339),
				Expired:        !time.Now().Before(tok.Expiry()),
				Claims:         tok.Claims,
			}
			if err := newFormatter(opts, cmd.OutOrStdout()).Emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "kid             %s\n", res.KeyID)
				fmt.Fprintf(w, "signature_valid %t\n", res.SignatureValid)
				fmt.Fprintf(w, "expires_at      %s (expired=%t)\n", res.ExpiresAt, res.Expired)
				fmt.Fprintf(w, "entity_id       %s\n", res.Claims.EntityID)
				fmt.Fprintf(w, "period          %s %s\n", res.Claims.TaxType, res.Claims.PeriodID)
				fmt.Fprintf(w, "amount_cents    %d\n", res.Claims.AmountCents)
				fmt.Fprintf(w, "nonce           %s\n", res.Claims.Nonce)
			}); err != nil {
				return err
			}
			if sigErr != nil {
				return WrapExitError(ExitValidation, "signature check failed", sigErr)
			}
			return nil
		},
	}
}

type verifyDetachedResult struct {
	Valid         bool   `json:"valid"`
	KeyID         string `json:"kid"`
	PayloadSHA256 string `json:"payload_sha256"`
	WasCanonical  bool   `json:"was_canonical"`
}

func newRPTVerifyDetachedCommand(opts *RootOptions) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "verify-detached",
		Short: "Verify a detached signature over a canonical payload",
		Long: `Verify a detached RPT signature.

The payload is canonicalised before verification; was_canonical reports
whether the input already was.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pubRaw, err := rpt.DecodeKey(v.GetString("public_key"))
			if err != nil || len(pubRaw) != ed25519.PublicKeySize {
				return WrapExitError(ExitValidation, "invalid public key", err)
			}
			pub := ed25519.PublicKey(pubRaw)

			sig, err := rpt.DecodeKey(v.GetString("signature"))
			if err != nil {
				return WrapExitError(ExitValidation, "invalid signature encoding", err)
			}

			raw, err := readInput(cmd.InOrStdin(), v.GetString("payload"))
			if err != nil {
				return err
			}
			c14n, err := canonical.Normalize(raw)
			if err != nil {
				return WrapExitError(ExitValidation, "invalid payload", err)
			}

			sum, verr := rpt.VerifyDetached(pub, c14n, sig)
			res := verifyDetachedResult{
				Valid:         verr == nil,
				KeyID:         rpt.KeyID(pub),
				PayloadSHA256: sum,
				WasCanonical:  bytes.Equal(bytes.TrimRight(raw, "\r\n"), c14n),
			}
			if err := newFormatter(opts, cmd.OutOrStdout()).Emit(res, func(w io.Writer) {
				status := "INVALID"
				if res.Valid {
					status = "OK"
				}
				fmt.Fprintf(w, "%s kid=%s sha256=%s\n", status, res.KeyID, res.PayloadSHA256)
			}); err != nil {
				return err
			}
			if verr != nil {
				return WrapExitError(ExitValidation, "signature does not verify", verr)
			}
			return nil
		},
	}

	cmd.Flags().String("payload", "-", "canonical payload JSON file, - for stdin")
	cmd.Flags().String("sig", "", "detached signature, base64 or hex")
	cmd.Flags().String("pub", "", "verify key, base64 or hex (default $APGMS_RPT_PUBLIC_KEY)")
	_ = v.BindPFlag("payload", cmd.Flags().Lookup("payload"))
	_ = v.BindPFlag("signature", cmd.Flags().Lookup("sig"))
	_ = v.BindPFlag("public_key", cmd.Flags().Lookup("pub"))
	_ = v.BindEnv("public_key", "APGMS_RPT_PUBLIC_KEY")

	return cmd
}
