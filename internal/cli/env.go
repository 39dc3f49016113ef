// Copyright 2025 The zipkit Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cli

import (
	"os"
	"strings"
)

// EnvOptions returns extra options taken from the named environment
// variable, split on whitespace. The classic personalities honor
// ZIPOPT and UNZIP ahead of the real command line.
func EnvOptions(name string) []string {
	return strings.Fields(os.Getenv(name))
}

// ArgsWithEnv prepends the variable's options to args, so explicit
// flags win when both set the same option.
func ArgsWithEnv(name string, args []string) []string {
	env := EnvOptions(name)
	if len(env) == 0 {
		return args
	}
	return append(env, args...)
}
