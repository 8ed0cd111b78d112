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

// Package util holds small helpers shared across the command layer.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// GetResolvedPath expands a leading ~/ to the user's home directory and
// makes the path absolute. Resolving paths up front matters because the
// daemonized child runs with a different working directory than the shell
// that invoked us. The empty string resolves to itself.
func GetResolvedPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || len(path) >= 2 && path[:2] == "~/" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("fetching home dir: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}

	resolved, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", path, err)
	}

	return resolved, nil
}
