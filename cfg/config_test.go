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

package cfg

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseConfig(t *testing.T, args []string) Config {
	t.Helper()

	v := viper.New()
	flagSet := pflag.NewFlagSet("cache-fs", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, flagSet))
	require.NoError(t, flagSet.Parse(args))

	var c Config
	require.NoError(t, v.Unmarshal(&c))
	return c
}

func TestDefaults(t *testing.T) {
	c := parseConfig(t, nil)

	assert.False(t, c.Foreground)
	assert.Equal(t, "info", c.LogSeverity)
	assert.Equal(t, "text", c.LogFormat)
	assert.Empty(t, c.MountOptions)
}

func TestFlagsAreBound(t *testing.T) {
	c := parseConfig(t, []string{
		"--foreground",
		"--log-severity", "debug",
		"--log-format", "json",
		"-o", "cache_dir=/c,ro",
		"-o", "allow_other",
	})

	assert.True(t, c.Foreground)
	assert.Equal(t, "debug", c.LogSeverity)
	assert.Equal(t, "json", c.LogFormat)

	// Each -o occurrence stays one unsplit option list.
	assert.Equal(t, []string{"cache_dir=/c,ro", "allow_other"}, c.MountOptions)
}
