package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hl7results/gateway/internal/platform/hl7v2"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

type parseOptions struct {
	output        string
	failOnWarning bool
}

func parseCmd() *cobra.Command {
	opts := parseOptions{}
	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Decode an HL7 v2 message from a file or stdin and print it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runParse(cmd.Context(), in, cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", outputJSON, "output format: json or yaml")
	cmd.Flags().BoolVar(&opts.failOnWarning, "fail-on-warning", false, "exit non-zero when segments were skipped")
	return cmd
}

func runParse(ctx context.Context, in io.Reader, out io.Writer, opts parseOptions) error {
	if opts.output != outputJSON && opts.output != outputYAML {
		return fmt.Errorf("unsupported output format %q (want %s or %s)", opts.output, outputJSON, outputYAML)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	raw, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read message: %w", err)
	}

	msg, err := hl7v2.NewParser().Parse(ctx, string(raw))
	if err != nil {
		return err
	}

	switch opts.output {
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(msg); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
	}

	if opts.failOnWarning && len(msg.Warnings) > 0 {
		return fmt.Errorf("%d segment(s) skipped", len(msg.Warnings))
	}
	return nil
}
