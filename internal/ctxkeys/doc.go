// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

// Package ctxkeys defines the request-scoped values carried in a
// context.Context: request id, trace id, authenticated principal and the
// conversation being dispatched.
package ctxkeys
