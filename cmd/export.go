// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiupon/ontologia/pkg/engine"
)

func exportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "export",
		Short: "Export types as JSONL, one file per type",
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				return fmt.Errorf("--output is required")
			}
			typeName, _ := cmd.Flags().GetString("type")
			asOf, _ := cmd.Flags().GetInt64("as-of")
			historySince, _ := cmd.Flags().GetInt64("history-since")
			withMetadata, _ := cmd.Flags().GetBool("with-metadata")
			asOfSet := cmd.Flags().Changed("as-of")
			historySinceSet := cmd.Flags().Changed("history-since")

			opts := engine.ExportOptions{OutputDir: output, Type: typeName, WithMetadata: withMetadata}
			if asOfSet {
				opts.AsOfCommit = &asOf
			}
			if historySinceSet {
				opts.SinceCommit = &historySince
			}

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.Export(cmd.Context(), opts)
			if err != nil {
				return err
			}

			for _, f := range report.Files {
				fmt.Println(f)
			}
			for typ, warning := range report.Warnings {
				fmt.Printf("warning: %s: %s\n", typ, warning)
			}
			return nil
		},
	}
	c.Flags().String("output", "", "Output directory for JSONL files")
	c.Flags().String("type", "", "Export only this type (default: every registered type)")
	c.Flags().Int64("as-of", 0, "Export the state as of this commit id")
	c.Flags().Int64("history-since", 0, "Export the change history since this commit id (exclusive)")
	c.Flags().Bool("with-metadata", false, "Include commit_id in each exported line")
	return c
}
