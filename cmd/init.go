// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/lexiupon/ontologia/cmd/flags"
	"github.com/lexiupon/ontologia/pkg/engine"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a storage URI, creating its catalog tables or meta objects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		uri := flags.StorageURI()
		if uri == "" {
			return errStorageURIRequired
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		force, _ := cmd.Flags().GetBool("force")
		token, _ := cmd.Flags().GetString("token")
		engineVersionFlag, _ := cmd.Flags().GetString("engine-version")

		req := engine.InitRequest{DryRun: dryRun, Force: force, Token: token}
		if engineVersionFlag != "" {
			req.EngineVersion = engine.EngineVersion(engineVersionFlag)
		}

		sp, _ := pterm.DefaultSpinner.WithText("Initializing " + uri + "...").Start()
		result, err := engine.Init(cmd.Context(), uri, req)
		if err != nil {
			sp.Fail(fmt.Sprintf("Initialization failed: %s", err))
			return err
		}

		switch {
		case dryRun:
			sp.Success(fmt.Sprintf("Dry run: already_initialized=%v force_token=%s", result.AlreadyInitialized, result.ForceToken))
		case result.Applied:
			sp.Success("Initialization complete")
		default:
			sp.Success(fmt.Sprintf("Already initialized; force_token=%s", result.ForceToken))
		}
		return nil
	},
}

func init() {
	initCmd.Flags().Bool("dry-run", false, "Report what init would do without writing anything")
	initCmd.Flags().Bool("force", false, "Re-initialize an already-initialized store")
	initCmd.Flags().String("token", "", "Force token, required with --force against an initialized store")
	initCmd.Flags().String("engine-version", "", "Embedded-SQL catalog layout: v1 or v2 (default v2)")
}
