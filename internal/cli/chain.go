package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/apgms/apgms/internal/canonical"
	"github.com/apgms/apgms/internal/core/domain"
	"github.com/apgms/apgms/internal/hashchain"
	"github.com/spf13/cobra"
)

const (
	chainKindAudit  = "audit"
	chainKindLedger = "ledger"
)

// NewChainCommand groups the offline hash chain subcommands.
func NewChainCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Check exported hash chains",
	}
	cmd.AddCommand(newChainVerifyCommand(opts))
	return cmd
}

type chainVerifyResult struct {
	Kind       string `json:"kind"`
	Valid      bool   `json:"valid"`
	Length     int    `json:"length"`
	Tail       string `json:"tail,omitempty"`
	BreakIndex *int   `json:"break_index,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func newChainVerifyCommand(opts *RootOptions) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "verify [file|-]",
		Short: "Recompute a chain exported from the API",
		Long: `Recompute a hash chain exported from the API.

--kind audit takes one audit scope as returned by /audit/bundle filtered to a
single scope. --kind ledger takes the body of GET /ledger/... or its entries
array.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			raw, err := readInput(cmd.InOrStdin(), name)
			if err != nil {
				return err
			}

			var records []hashchain.Record
			switch kind {
			case chainKindAudit:
				records, err = auditRecords(raw)
			case chainKindLedger:
				records, err = ledgerRecords(raw)
			default:
				return NewExitError(ExitValidation, fmt.Sprintf("invalid kind %q: must be audit or ledger", kind))
			}
			if err != nil {
				return WrapExitError(ExitValidation, "invalid chain export", err)
			}

			res := chainVerifyResult{Kind: kind, Length: len(records)}
			tail, verr := hashchain.Verify(records)
			var brk *hashchain.BreakError
			switch {
			case verr == nil:
				res.Valid, res.Tail = true, tail
			case errors.As(verr, &brk):
				res.BreakIndex, res.Reason = &brk.Index, brk.Reason
			default:
				return WrapExitError(ExitValidation, "chain check failed", verr)
			}

			if err := newFormatter(opts, cmd.OutOrStdout()).Emit(res, func(w io.Writer) {
				if res.Valid {
					fmt.Fprintf(w, "OK %s chain of %d records, tail %s\n", res.Kind, res.Length, res.Tail)
					return
				}
				fmt.Fprintf(w, "BROKEN %s chain at index %d: %s\n", res.Kind, *res.BreakIndex, res.Reason)
			}); err != nil {
				return err
			}
			if !res.Valid {
				return WrapExitError(ExitValidation, "chain is broken", verr)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", chainKindAudit, "chain kind (audit|ledger)")

	return cmd
}

// auditRecords re-canonicalises each payload since JSON transport may escape
// characters the stored form does not.
func auditRecords(raw []byte) ([]hashchain.Record, error) {
	var events []domain.AuditEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, err
	}
	records := make([]hashchain.Record, len(events))
	for i, e := range events {
		if i > 0 && e.Scope != events[0].Scope {
			return nil, fmt.Errorf("record %d is scope %s, chain is %s", i, e.Scope, events[0].Scope)
		}
		body, err := canonical.Normalize(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records[i] = hashchain.Record{Payload: body, HashPrev: e.HashPrev, HashThis: e.HashThis}
	}
	return records, nil
}

func ledgerRecords(raw []byte) ([]hashchain.Record, error) {
	var entries []domain.LedgerEntry
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var view struct {
			Entries []domain.LedgerEntry `json:"entries"`
		}
		if err := json.Unmarshal(trimmed, &view); err != nil {
			return nil, err
		}
		entries = view.Entries
	} else if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}

	records := make([]hashchain.Record, len(entries))
	for i, e := range entries {
		body, err := canonical.Marshal(e.HashPayload())
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records[i] = hashchain.Record{Payload: body, HashPrev: e.HashPrev, HashThis: e.HashThis}
	}
	return records, nil
}
