// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lexiupon/ontologia/pkg/migrate"
)

func migrateCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "migrate",
		Short: "Drive the plan -> token -> apply migration state machine (C8)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			modelsPath, _ := cmd.Flags().GetString("models")
			if modelsPath == "" {
				return fmt.Errorf("--models is required")
			}
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			apply, _ := cmd.Flags().GetBool("apply")
			force, _ := cmd.Flags().GetBool("force")
			token, _ := cmd.Flags().GetString("token")

			e, err := NewEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			types, err := loadModels(modelsPath)
			if err != nil {
				return err
			}

			upgradersPath, _ := cmd.Flags().GetString("upgraders")
			registry, err := loadUpgraderRegistry(upgradersPath)
			if err != nil {
				return err
			}

			preview, err := e.Plan(cmd.Context(), types, registry)
			if err != nil {
				return err
			}

			if dryRun || (!apply && !force) {
				out, err := json.MarshalIndent(preview, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			result, err := e.Apply(cmd.Context(), types, registry, token, force)
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

	c.Flags().String("models", "", "Path to the --models JSON manifest of in-code type definitions")
	c.Flags().Bool("dry-run", false, "Print the migration preview without applying it")
	c.Flags().Bool("apply", false, "Apply the migration using --token from a prior dry run")
	c.Flags().Bool("force", false, "Bypass token verification (upgraders are still required)")
	c.Flags().String("token", "", "Migration token from a prior dry run, required with --apply")
	c.Flags().String("upgraders", "", "Path to a declarative upgrader-chain YAML manifest")
	return c
}

// loadUpgraderRegistry compiles path's declarative upgrader manifest into a
// registry, or returns a nil registry when path is empty (additive/
// schema-only migrations need no upgraders).
func loadUpgraderRegistry(path string) (migrate.UpgraderRegistry, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cmd: open upgrader manifest %q: %w", path, err)
	}
	defer f.Close()

	manifest, err := migrate.LoadUpgraderManifest(f)
	if err != nil {
		return nil, err
	}
	return migrate.CompileRegistry(manifest)
}
