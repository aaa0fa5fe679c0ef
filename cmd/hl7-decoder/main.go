package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ehr/hl7readable/internal/platform/hl7v2"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "hl7-decoder",
		Short:        "Decode HL7 v2 messages into keyed JSON",
		SilenceUsage: true,
		Version:      version,
	}

	rootCmd.AddCommand(decodeCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func decodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode an HL7 v2 message from a file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pretty, _ := cmd.Flags().GetBool("pretty")
			withDiagnostics, _ := cmd.Flags().GetBool("diagnostics")
			policyName, _ := cmd.Flags().GetString("policy")

			policy, err := hl7v2.ParseSingletonPolicy(policyName)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open message: %w", err)
				}
				defer f.Close()
				in = f
			}

			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read message: %w", err)
			}

			rep := hl7v2.NewDecoder(hl7v2.WithSingletonPolicy(policy)).DecodeReport(string(raw))

			var out any = rep.Result
			if withDiagnostics {
				out = rep
			}
			return writeJSON(cmd.OutOrStdout(), out, pretty)
		},
	}
	cmd.Flags().Bool("pretty", false, "Indent the JSON output")
	cmd.Flags().Bool("diagnostics", false, "Wrap the result with skipped lines, duplicates and warnings")
	cmd.Flags().String("policy", "last", "Duplicate singleton policy: first or last")
	return cmd
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
