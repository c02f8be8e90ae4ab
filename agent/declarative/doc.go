// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package declarative builds the responder registry from a YAML or JSON
manifest instead of Go code.

# Manifest

	entry_agent: triage
	entities:
	  - name: order_id
	    pattern: 'order\s+#?(\d+)'
	responders:
	  - name: triage
	    kind: triage
	    tier: frontline
	    category: routing
	    capabilities: [entity_extraction]
	    confidence: 0.9
	    routes:
	      - responder: billing
	        keywords: [refund, invoice, charge]
	    default_route: general
	  - name: billing
	    tier: specialist
	    category: billing
	    capabilities: [kb_search, context_aware]
	    system_prompt: You resolve billing questions.
	    confidence: 0.8
	    kb_miss_confidence: 0.4
	    escalate_keywords: [lawyer, chargeback]

# Kinds

  - generated (default): phrases a reply with an llm.Generator and reports the
    configured confidence; may hand off with next_agent.
  - triage: routes by extracted intent or keyword, never replies.

# Usage

	def, err := declarative.NewYAMLLoader().LoadFile("responders.yaml")
	factory := declarative.NewResponderFactory(generator, logger)
	registry, err := agent.Bootstrap(logger, factory.Manifest(def)...)
*/
package declarative
