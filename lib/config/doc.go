// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads sender configuration for the forward commands.
//
// Configuration is read from a single file named by either the
// FORWARD_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no search path and no per-key environment
// overrides; command-line flags are the only layer above the file.
//
// Files ending in .json or .jsonc are parsed as JSON with comments and
// trailing commas; anything else is YAML. Both go through the same
// YAML decoder, so durations are written the same way ("500ms", "3s")
// in either syntax, and unknown keys are rejected in both.
//
// The host field supports ${VAR} and ${VAR:-default} expansion so one
// file can serve several deployments.
//
// Key exports:
//
//   - [Config] -- host, port, timeouts, buffer and reconnect settings
//   - [Default] -- the values a missing key takes
//   - [Load], [LoadFile], and [Parse] -- the entry points for loading
//   - [Config.SenderConfig] -- conversion to a [sender.Config]
package config
