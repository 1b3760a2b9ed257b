// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lexiupon/ontologia/cmd/flags"
	"github.com/lexiupon/ontologia/pkg/engine"
)

// Version is the ontologia CLI version.
var Version = "development"

func init() {
	viper.SetEnvPrefix("ONTOLOGIA")
	viper.AutomaticEnv()

	flags.StorageConnectionFlags(rootCmd)
}

var rootCmd = &cobra.Command{
	Use:          "ontologia",
	Short:        "Operator console for the ontologia typed ontology engine",
	SilenceUsage: true,
	Version:      Version,
}

// NewEngine opens the storage URI bound by --storage-uri/ONTOLOGIA_STORAGE_URI,
// failing with errStorageURIRequired if neither was set.
func NewEngine(ctx context.Context) (*engine.Engine, error) {
	uri := flags.StorageURI()
	if uri == "" {
		return nil, errStorageURIRequired
	}
	return engine.Open(ctx, uri,
		engine.WithLockTimeoutMs(flags.LockTimeoutMs()),
		engine.WithLeaseTTL(time.Duration(flags.LeaseTTLSeconds())*time.Second),
		engine.WithOwnerID(flags.OwnerID()),
		engine.WithBinaryVersion(Version),
	)
}

// Execute executes the root command.
func Execute() error {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(commitsCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(indexCmd())
	rootCmd.AddCommand(compactCmd())

	return rootCmd.Execute()
}
