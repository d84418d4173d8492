package cli

import (
	"fmt"
	"io"

	"github.com/apgms/apgms/internal/canonical"
	"github.com/spf13/cobra"
)

type canonResult struct {
	Canonical string `json:"canonical"`
	SHA256    string `json:"sha256"`
}

// NewCanonCommand prints the canonical form of a JSON document.
func NewCanonCommand(opts *RootOptions) *cobra.Command {
	var withHash bool

	cmd := &cobra.Command{
		Use:   "canon [file|-]",
		Short: "Print the canonical JSON form of a document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			raw, err := readInput(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}
			out, err := canonical.Normalize(raw)
			if err != nil {
				return WrapExitError(ExitValidation, "invalid JSON", err)
			}

			res := canonResult{Canonical: string(out), SHA256: canonical.SHA256Hex(out)}
			return newFormatter(opts, cmd.OutOrStdout()).Emit(res, func(w io.Writer) {
				fmt.Fprintln(w, res.Canonical)
				if withHash {
					fmt.Fprintf(w, "sha256 %s\n", res.SHA256)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&withHash, "hash", false, "also print the SHA-256 of the canonical bytes")

	return cmd
}
