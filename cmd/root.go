// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// A caching fuse file system for slow remote directories.
//
// Usage:
//
//	cache-fs [flags] remote_dir mountpoint -o cache_dir=/path/to/cache
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moparisthebest/cache-fs/cfg"
	"github.com/moparisthebest/cache-fs/internal/util"
)

var (
	bindErr      error
	unmarshalErr error
	mountConfig  cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "cache-fs [flags] remote_dir mountpoint",
	Short: "Mount a read-only caching view of a directory tree",
	Long: `cache-fs mounts a snapshot of a remote directory tree as a local
read-only file system. Directory structure is scanned once and persisted
under the cache directory; file content is copied into the cache the first
time each file is opened and served from there afterwards.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}

		remoteDir, mountPoint, err := populateArgs(args)
		if err != nil {
			return err
		}

		return runMount(remoteDir, mountPoint, &mountConfig)
	},
}

// populateArgs canonicalizes the two positional arguments, making them
// absolute. This is important when daemonizing, since the daemon changes
// its working directory before running this code again.
func populateArgs(args []string) (remoteDir string, mountPoint string, err error) {
	remoteDir, err = util.GetResolvedPath(args[0])
	if err != nil {
		err = fmt.Errorf("canonicalizing remote dir: %w", err)
		return
	}

	mountPoint, err = util.GetResolvedPath(args[1])
	if err != nil {
		err = fmt.Errorf("canonicalizing mount point: %w", err)
		return
	}

	return
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	bindErr = cfg.BindFlags(viper.GetViper(), rootCmd.PersistentFlags())
}

func initConfig() {
	unmarshalErr = viper.Unmarshal(&mountConfig)
}
