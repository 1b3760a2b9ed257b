// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiupon/ontologia/pkg/model"
)

func indexCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "index",
		Short: "Object-store coverage-index maintenance",
	}
	c.AddCommand(indexVerifyCmd())
	c.AddCommand(indexRepairCmd())
	return c
}

func indexVerifyCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "verify",
		Short: "Report coverage-index types that lag HEAD or are missing entirely",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			report, err := e.IndexVerify(cmd.Context(), model.TypeKind(kind))
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	c.Flags().String("kind", string(model.KindEntity), "entity or relation")
	return c
}

func indexRepairCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "repair",
		Short: "Rebuild a type's coverage index",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			typeName, _ := cmd.Flags().GetString("type")
			apply, _ := cmd.Flags().GetBool("apply")
			if typeName == "" {
				return fmt.Errorf("--type is required")
			}

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			plan, err := e.IndexRepair(cmd.Context(), model.TypeKind(kind), typeName, apply)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	c.Flags().String("kind", string(model.KindEntity), "entity or relation")
	c.Flags().String("type", "", "Type to repair")
	c.Flags().Bool("apply", false, "Write the rebuilt index (default: report the plan only)")
	return c
}

func compactCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite a type's coverage-index entries into a single snapshot file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			kind, _ := cmd.Flags().GetString("kind")
			typeName, _ := cmd.Flags().GetString("type")
			apply, _ := cmd.Flags().GetBool("apply")
			if typeName == "" {
				return fmt.Errorf("--type is required")
			}

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Compact(cmd.Context(), model.TypeKind(kind), typeName, apply); err != nil {
				return err
			}
			if !apply {
				fmt.Println("dry run: pass --apply to compact")
				return nil
			}
			fmt.Println("compacted")
			return nil
		},
	}
	c.Flags().String("kind", string(model.KindEntity), "entity or relation")
	c.Flags().String("type", "", "Type to compact")
	c.Flags().Bool("apply", false, "Write the compacted snapshot (default: dry run, nothing is read or written)")
	return c
}
