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

package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/jacobsa/daemonize"
	"github.com/jacobsa/fuse"
	"github.com/jacobsa/timeutil"
	"github.com/kardianos/osext"
	"golang.org/x/net/context"

	"github.com/moparisthebest/cache-fs/cfg"
	"github.com/moparisthebest/cache-fs/internal/cachefs"
	"github.com/moparisthebest/cache-fs/internal/fstree"
	"github.com/moparisthebest/cache-fs/internal/logger"
	"github.com/moparisthebest/cache-fs/internal/mount"
	"github.com/moparisthebest/cache-fs/internal/perms"
)

const (
	SuccessfulMountMessage         = "File system has been successfully mounted."
	UnsuccessfulMountMessagePrefix = "Error while mounting cache-fs"
)

// registerSIGINTHandler lets the user unmount with Ctrl-C (SIGINT).
func registerSIGINTHandler(mountPoint string) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for {
			<-signalChan
			logger.Info("Received SIGINT, attempting to unmount...")

			err := fuse.Unmount(mountPoint)
			if err != nil {
				logger.Errorf("Failed to unmount in response to SIGINT: %v", err)
			} else {
				logger.Infof("Successfully unmounted in response to SIGINT.")
				return
			}
		}
	}()
}

// daemonizeMount re-runs this binary in the background in foreground mode,
// with the canonicalized paths substituted for the original positional
// arguments, and waits for it to report the mount outcome.
func daemonizeMount(remoteDir, mountPoint string, c *cfg.Config) error {
	path, err := osext.Executable()
	if err != nil {
		return fmt.Errorf("osext.Executable: %w", err)
	}

	args := []string{
		"--foreground",
		"--log-severity", c.LogSeverity,
		"--log-format", c.LogFormat,
	}
	for _, o := range c.MountOptions {
		args = append(args, "-o", o)
	}
	args = append(args, remoteDir, mountPoint)

	// Pass along PATH so that the daemon can find fusermount.
	env := []string{
		fmt.Sprintf("PATH=%s", os.Getenv("PATH")),
	}

	err = daemonize.Run(path, args, env, os.Stdout)
	if err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}

	logger.Infof(SuccessfulMountMessage)
	return nil
}

// mountFS builds or loads the file tree and mounts the file system,
// returning a fuse.MountedFileSystem that can be joined to wait for
// unmounting.
func mountFS(remoteDir, mountPoint string, opts *mount.Options, c *cfg.Config) (*fuse.MountedFileSystem, error) {
	if err := os.MkdirAll(opts.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("could not create cache_dir: %w", err)
	}

	tree, err := fstree.LoadOrBuild(remoteDir, opts.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("could not build file tree: %w", err)
	}

	server, err := cachefs.NewServer(&cachefs.ServerConfig{
		RemoteDir: remoteDir,
		CacheDir:  opts.CacheDir,
		Tree:      tree,
		Clock:     timeutil.RealClock(),
	})
	if err != nil {
		return nil, fmt.Errorf("cachefs.NewServer: %w", err)
	}

	logger.Infof("Mounting file system %q...", opts.FSName)

	mfs, err := fuse.Mount(mountPoint, server, getFuseMountConfig(opts, c))
	if err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}

	return mfs, nil
}

func getFuseMountConfig(opts *mount.Options, c *cfg.Config) *fuse.MountConfig {
	mountCfg := &fuse.MountConfig{
		FSName:      opts.FSName,
		ReadOnly:    true,
		Options:     opts.FuseOptions,
		ErrorLogger: logger.NewLegacyLogger(logger.LevelError, "fuse: "),
	}

	if c.LogSeverity == "trace" {
		mountCfg.DebugLogger = logger.NewLegacyLogger(logger.LevelTrace, "fuse_debug: ")
	}

	return mountCfg
}

func runMount(remoteDir, mountPoint string, c *cfg.Config) error {
	logger.Setup(c.LogSeverity, c.LogFormat)

	opts, err := mount.ParseArgs(c.MountOptions)
	if err != nil {
		return err
	}

	if !c.Foreground && !opts.Foreground {
		return daemonizeMount(remoteDir, mountPoint, c)
	}

	// If invoked as root, everything served will be owned by root, which is
	// rarely what the user wants with default_permissions in play.
	if uid, _, err := perms.MyUserAndGroup(); err == nil && uid == 0 {
		fmt.Fprintln(os.Stdout, `
WARNING: cache-fs invoked as root. This will cause all files to be owned by
root. If this is not what you intended, invoke cache-fs as the user that will
be interacting with the file system.`)
	}

	// Mount, telling the daemonize status channel about the outcome in case
	// a parent process is waiting on it.
	callDaemonizeSignalOutcome := func(err error) {
		if err2 := daemonize.SignalOutcome(err); err2 != nil {
			logger.Errorf("Failed to signal outcome to parent process: %v", err2)
		}
	}

	mfs, err := mountFS(remoteDir, mountPoint, opts, c)
	if err != nil {
		logger.Errorf("%s: %v", UnsuccessfulMountMessagePrefix, err)
		err = fmt.Errorf("%s: %w", UnsuccessfulMountMessagePrefix, err)
		callDaemonizeSignalOutcome(err)
		return err
	}

	logger.Info(SuccessfulMountMessage)
	callDaemonizeSignalOutcome(nil)

	registerSIGINTHandler(mfs.Dir())

	// Wait for the file system to be unmounted.
	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("MountedFileSystem.Join: %w", err)
	}

	return nil
}
