// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package database opens the SQL database behind the conversation and
escalation stores and manages its connection pool.

# Drivers

Open accepts postgres, mysql and sqlite. The sqlite dialect is pure Go, so
a single-node deployment needs no cgo toolchain. Statements are logged
through zap by GormLogger and, when a QueryObserver is set, timed per verb.

# Pool

PoolManager applies PoolConfig to the pool, pings it on an interval and
publishes open/idle counts to a StatsRecorder.

# Transactions

TransactionRetry wraps gorm transactions with exponential backoff for
deadlocks, serialization failures, lock timeouts and dropped connections.
*/
package database
