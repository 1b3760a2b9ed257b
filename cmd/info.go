// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiupon/ontologia/pkg/engine"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show HEAD, backend identity, and per-type stats",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := NewEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		stats, _ := cmd.Flags().GetBool("stats")
		schema, _ := cmd.Flags().GetBool("schema")

		result, err := e.Info(cmd.Context(), engine.InfoOptions{Stats: stats, Schema: schema})
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	infoCmd.Flags().Bool("stats", false, "Include per-type row counts")
	infoCmd.Flags().Bool("schema", false, "Include per-type current schema hash")
}
