// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package migration owns the SQL schema of the conversation and escalation
stores: the conversations and escalation_tickets tables, for postgres,
mysql and sqlite.

The dialect-specific migrations are embedded and applied with
golang-migrate. DefaultMigrator exposes up, down, steps, goto, force,
version and status; CLI formats them for the "switchboard migrate"
command. Cancelling the context passed to a migration stops it after the
statement file in progress.
*/
package migration
