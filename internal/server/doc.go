// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package server manages the lifecycle of the HTTP(S) listener.

Manager wraps net/http.Server: Start binds and serves in the background,
Run serves until the context is cancelled, and Shutdown drains in-flight
requests within the configured timeout. When both certificate files are
configured the listener serves TLS with the hardened settings from
internal/tlsutil. Asynchronous serve failures are reported on Errors.
*/
package server
