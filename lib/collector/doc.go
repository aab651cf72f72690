// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector implements the receiving end of the forward
// protocol: a TCP server that decodes back-to-back event frames from
// each client connection and publishes the decoded events on a
// channel.
//
// It is small enough to embed in tests of the sender, and it backs the
// forward-collector command used for local development. It does not
// acknowledge frames, persist events, or forward them anywhere.
package collector
