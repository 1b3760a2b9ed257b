// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lexiupon/ontologia/pkg/ontoerrors"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the migration plan step and fail if any type's schema has drifted (strict mode)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		modelsPath, _ := cmd.Flags().GetString("models")
		if modelsPath == "" {
			return fmt.Errorf("--models is required")
		}

		e, err := NewEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		types, err := loadModels(modelsPath)
		if err != nil {
			return err
		}

		preview, err := e.Verify(cmd.Context(), types)
		if err != nil {
			var outdated *ontoerrors.SchemaOutdatedError
			if errors.As(err, &outdated) {
				for _, d := range outdated.Diffs {
					fmt.Printf("drift: %s added=%v removed=%v changed=%v\n", d.TypeName, d.AddedFields, d.RemovedFields, d.ChangedFields)
				}
			}
			return err
		}

		fmt.Printf("no drift detected across %d types\n", len(types))
		return nil
	},
}

func init() {
	verifyCmd.Flags().String("models", "", "Path to the --models JSON manifest of in-code type definitions")
}
