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

// Package perms provides utilities around user and group permissions.
package perms

import (
	"fmt"
	"os/user"
	"strconv"
)

// MyUserAndGroup returns the UID and GID of this process.
func MyUserAndGroup() (uid uint32, gid uint32, err error) {
	user, err := user.Current()
	if err != nil {
		err = fmt.Errorf("fetching current user: %w", err)
		return
	}

	uid64, err := strconv.ParseUint(user.Uid, 10, 32)
	if err != nil {
		err = fmt.Errorf("parsing UID (%s): %w", user.Uid, err)
		return
	}

	gid64, err := strconv.ParseUint(user.Gid, 10, 32)
	if err != nil {
		err = fmt.Errorf("parsing GID (%s): %w", user.Gid, err)
		return
	}

	uid = uint32(uid64)
	gid = uint32(gid64)

	return
}
