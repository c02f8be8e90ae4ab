// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package llm is the text-generation collaborator responders use to phrase
replies.

# Generators

  - [OpenAIGenerator]: any OpenAI-compatible chat completions endpoint.
  - [TemplateGenerator]: offline replies rendered from a text/template, used in
    development and as the last fallback.
  - [ResilientGenerator]: timeout, circuit breaker and fallback around another
    Generator.

# Errors

Every failure is an [*Error]. [Classify] reduces it to the two classes the
engine distinguishes: a timeout or a provider error. Generators never retry;
the orchestrator fails the hop and the policy decides what happens next.
*/
package llm
