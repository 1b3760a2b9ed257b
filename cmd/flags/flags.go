// SPDX-License-Identifier: Apache-2.0

package flags

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func StorageURI() string {
	return viper.GetString("STORAGE_URI")
}

func LockTimeoutMs() int {
	return viper.GetInt("LOCK_TIMEOUT_MS")
}

func LeaseTTLSeconds() int {
	return viper.GetInt("LEASE_TTL_SECONDS")
}

func OwnerID() string {
	return viper.GetString("OWNER_ID")
}

func StorageConnectionFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("storage-uri", "", "Storage URI (sqlite:///<path> or s3://<bucket>/<prefix>)")
	cmd.PersistentFlags().Int("lock-timeout-ms", 5000, "Write-lease acquisition timeout in milliseconds (recorded only: acquisition waits up to the lease TTL)")
	cmd.PersistentFlags().Int("lease-ttl-seconds", 30, "Write-lease time-to-live in seconds")
	cmd.PersistentFlags().String("owner-id", "ontologia-cli", "Identity this process acquires the write lease under")

	viper.BindPFlag("STORAGE_URI", cmd.PersistentFlags().Lookup("storage-uri"))
	viper.BindPFlag("LOCK_TIMEOUT_MS", cmd.PersistentFlags().Lookup("lock-timeout-ms"))
	viper.BindPFlag("LEASE_TTL_SECONDS", cmd.PersistentFlags().Lookup("lease-ttl-seconds"))
	viper.BindPFlag("OWNER_ID", cmd.PersistentFlags().Lookup("owner-id"))
}
