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

package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type UtilTest struct {
	suite.Suite
}

func TestUtilSuite(t *testing.T) {
	suite.Run(t, new(UtilTest))
}

func (t *UtilTest) TestResolveHomeDirPath() {
	resolvedPath, err := GetResolvedPath("~/test.txt")

	assert.NoError(t.T(), err)
	home, err := os.UserHomeDir()
	assert.NoError(t.T(), err)
	assert.Equal(t.T(), filepath.Join(home, "test.txt"), resolvedPath)
}

func (t *UtilTest) TestResolveBareTilde() {
	resolvedPath, err := GetResolvedPath("~")

	assert.NoError(t.T(), err)
	home, err := os.UserHomeDir()
	assert.NoError(t.T(), err)
	assert.Equal(t.T(), home, resolvedPath)
}

func (t *UtilTest) TestResolveRelativePath() {
	resolvedPath, err := GetResolvedPath("./test.txt")

	assert.NoError(t.T(), err)
	wd, err := os.Getwd()
	assert.NoError(t.T(), err)
	assert.Equal(t.T(), filepath.Join(wd, "test.txt"), resolvedPath)
}

func (t *UtilTest) TestResolveParentRelativePath() {
	resolvedPath, err := GetResolvedPath("../test.txt")

	assert.NoError(t.T(), err)
	wd, err := os.Getwd()
	assert.NoError(t.T(), err)
	assert.Equal(t.T(), filepath.Join(filepath.Dir(wd), "test.txt"), resolvedPath)
}

func (t *UtilTest) TestResolveAbsolutePath() {
	resolvedPath, err := GetResolvedPath("/var/dir/test.txt")

	assert.NoError(t.T(), err)
	assert.Equal(t.T(), "/var/dir/test.txt", resolvedPath)
}

func (t *UtilTest) TestResolveEmptyPath() {
	resolvedPath, err := GetResolvedPath("")

	assert.NoError(t.T(), err)
	assert.Equal(t.T(), "", resolvedPath)
}
