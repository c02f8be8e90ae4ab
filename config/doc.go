// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package config loads the Switchboard configuration and keeps it current.

Sources are applied in order: defaults, the YAML file, then environment
variables named PREFIX_SECTION_FIELD (SWITCHBOARD_LLM_API_KEY,
SWITCHBOARD_ORCHESTRATOR_MAX_HOPS, ...):

	cfg, err := config.NewLoader().
		WithConfigPath("switchboard.yaml").
		WithValidator((*config.Config).Validate).
		Load()

HotReloadManager watches the file with a polling FileWatcher and re-applies
it. Only the log level and the knowledge-base settings take effect without a
restart; every other change is recorded and flagged as needing one.
*/
package config
