// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lexiupon/ontologia/pkg/engine"
)

func commitsCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "commits",
		Short: "List commits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			last, _ := cmd.Flags().GetInt("last")
			since, _ := cmd.Flags().GetInt64("since")
			metaPairs, _ := cmd.Flags().GetStringSlice("meta")

			meta, err := parseMetaPairs(metaPairs)
			if err != nil {
				return err
			}

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			commits, err := e.Commits(cmd.Context(), engine.CommitsOptions{Last: last, Since: since, Meta: meta})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(commits, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	c.Flags().Int("last", 0, "Show only the last N commits")
	c.Flags().Int64("since", 0, "Show only commits with commit_id > since")
	c.Flags().StringSlice("meta", nil, "Filter by metadata key=value, repeatable")

	c.AddCommand(commitsExamineCmd())
	return c
}

func commitsExamineCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "examine",
		Short: "Show one commit's full detail",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetInt64("id")

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			detail, err := e.CommitExamine(cmd.Context(), id)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(detail, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	c.Flags().Int64("id", 0, "Commit id to examine")
	return c
}

func parseMetaPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("cmd: --meta %q must be key=value", p)
		}
		out[k] = v
	}
	return out, nil
}
