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

// Package mount interprets the -o option lists accepted on the command
// line, in the format accepted by mount(8).
package mount

import (
	"errors"
	"fmt"
	"strings"
)

// Options is the parsed form of the -o option lists.
type Options struct {
	// CacheDir is the directory holding the cache tree and the snapshot.
	// Always set; its absence is a parse error.
	CacheDir string

	// FSName is the file system name reported to the kernel: the value of a
	// user-supplied fsname option, "cachefs" otherwise.
	FSName string

	// Foreground is set by the no_daemon family of options.
	Foreground bool

	// FuseOptions is everything passed through verbatim to the kernel mount
	// layer, plus default_permissions unless disabled.
	FuseOptions map[string]string
}

// ParseOptions parses one comma-separated option list into m, splitting
// each option on its first equals sign.
//
// NOTE: The man pages don't define how escaping works, and as far as anyone
// can tell there is no way to properly quote a comma in an fstab options
// list, so commas in values are not supported.
func ParseOptions(m map[string]string, s string) {
	for _, p := range strings.Split(s, ",") {
		var name string
		var value string

		if equalsIndex := strings.IndexByte(p, '='); equalsIndex != -1 {
			name = p[:equalsIndex]
			value = p[equalsIndex+1:]
		} else {
			name = p
		}

		m[name] = value
	}
}

// ParseArgs interprets the -o lists from the command line. Options with
// mount semantics of their own (cache_dir, ro/rw, no_default_permissions,
// the no_daemon family) are consumed; everything else passes through to the
// kernel. rw is rejected, and cache_dir is required.
func ParseArgs(oFlags []string) (*Options, error) {
	opts := &Options{
		FuseOptions: make(map[string]string),
	}
	defaultPermissions := true

	raw := make(map[string]string)
	for _, list := range oFlags {
		ParseOptions(raw, list)
	}

	for name, value := range raw {
		switch name {
		case "cache_dir":
			if value == "" {
				return nil, errors.New("cache_dir requires a value")
			}
			opts.CacheDir = value

		case "ro":
			// Read-only is the only supported mode.

		case "rw":
			return nil, errors.New("rw is not supported")

		case "no_default_permissions":
			defaultPermissions = false

		case "no_daemon", "no_fork", "nodaemon", "nofork":
			opts.Foreground = true

		default:
			opts.FuseOptions[name] = value
		}
	}

	if opts.CacheDir == "" {
		return nil, fmt.Errorf("must supply cache_dir=/path/to/cache to -o")
	}

	opts.FSName = "cachefs"
	if fsname, ok := opts.FuseOptions["fsname"]; ok {
		opts.FSName = fsname
		delete(opts.FuseOptions, "fsname")
	}

	if defaultPermissions {
		opts.FuseOptions["default_permissions"] = ""
	}

	return opts, nil
}
