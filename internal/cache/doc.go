// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

// Package cache manages the shared Redis connection and offers small
// string/JSON helpers with a default TTL.
package cache
