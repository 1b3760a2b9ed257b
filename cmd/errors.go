// SPDX-License-Identifier: Apache-2.0

package cmd

import "errors"

var errStorageURIRequired = errors.New("a storage URI is required: pass --storage-uri or set ONTOLOGIA_STORAGE_URI")
