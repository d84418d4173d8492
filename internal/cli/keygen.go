package cli

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/apgms/apgms/internal/rpt"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type keygenResult struct {
	PrivateKey string `json:"private_key_b64"`
	PublicKey  string `json:"public_key_b64"`
	KeyID      string `json:"kid"`
	Derived    bool   `json:"derived"`
}

// NewKeygenCommand prints a fresh Ed25519 key pair, or the pair derived from a
// legacy shared secret.
func NewKeygenCommand(opts *RootOptions) *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an RPT signing key",
		Long: `Generate an Ed25519 RPT signing key.

With --from-secret the key is derived from the shared secret given by --secret
or APGMS_RPT_SECRET, matching what the server does when only a secret is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				priv    ed25519.PrivateKey
				derived bool
			)
			if v.GetBool("from_secret") {
				secret := v.GetString("secret")
				if secret == "" {
					return NewExitError(ExitValidation, "--from-secret needs --secret or APGMS_RPT_SECRET")
				}
				seed, err := rpt.DeriveSeed(secret)
				if err != nil {
					return WrapExitError(ExitValidation, "failed to derive key", err)
				}
				priv, derived = ed25519.NewKeyFromSeed(seed), true
			} else {
				var err error
				if priv, err = rpt.GenerateKey(); err != nil {
					return WrapExitError(ExitIO, "failed to generate key", err)
				}
			}

			pub := priv.Public().(ed25519.PublicKey)
			res := keygenResult{
				PrivateKey: base64.StdEncoding.EncodeToString(priv),
				PublicKey:  base64.StdEncoding.EncodeToString(pub),
				KeyID:      rpt.KeyID(pub),
				Derived:    derived,
			}
			return newFormatter(opts, cmd.OutOrStdout()).Emit(res, func(w io.Writer) {
				fmt.Fprintf(w, "APGMS_RPT_PRIVATE_KEY=%s\n", res.PrivateKey)
				fmt.Fprintf(w, "APGMS_RPT_PUBLIC_KEY=%s\n", res.PublicKey)
				fmt.Fprintf(w, "# kid %s\n", res.KeyID)
			})
		},
	}

	cmd.Flags().Bool("from-secret", false, "derive the key from a shared secret")
	cmd.Flags().String("secret", "", "shared secret (default $APGMS_RPT_SECRET)")
	_ = v.BindPFlag("from_secret", cmd.Flags().Lookup("from-secret"))
	_ = v.BindPFlag("secret", cmd.Flags().Lookup("secret"))
	_ = v.BindEnv("secret", "APGMS_RPT_SECRET")

	return cmd
}
