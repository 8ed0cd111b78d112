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

// Package cfg defines the command line surface and its binding into a
// config struct.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds everything configurable from the command line apart from the
// two positional arguments.
type Config struct {
	// Foreground keeps the process attached to the terminal instead of
	// daemonizing before mounting.
	Foreground bool `mapstructure:"foreground"`

	// LogSeverity is one of trace, debug, info, warning, error, off.
	LogSeverity string `mapstructure:"log-severity"`

	// LogFormat is text or json.
	LogFormat string `mapstructure:"log-format"`

	// MountOptions holds the raw -o values, one per occurrence of the flag,
	// each a comma-separated option list.
	MountOptions []string `mapstructure:"o"`
}

// BindFlags declares the flags on the given flag set and binds them into
// the given viper instance, so that viper.Unmarshal populates a Config.
func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	flagSet.Bool("foreground", false, "Stay in the foreground after mounting.")

	flagSet.String("log-severity", "info", "Severity of log messages to emit: trace, debug, info, warning, error or off.")

	flagSet.String("log-format", "text", "The format of log messages: text or json.")

	flagSet.StringArrayP("o", "o", nil, "Mount options in the format accepted by mount(8). May be repeated.")

	return v.BindPFlags(flagSet)
}
