// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types holds the structured error vocabulary shared by the engine,
its collaborators and the HTTP transport.

# Error model

  - ErrorCode names a failure class (LOOKUP_FAILURE, LOOP_GUARD_TRIPPED,
    GENERATION_FAILURE, CAPABILITY_MISMATCH, VALIDATION_FAILURE, ...).
  - Error carries the code, a message, an optional HTTP status, a retryable
    flag, the producing component and the wrapped cause.
  - AsError / GetErrorCode / IsErrorCode / IsRetryable walk the wrap chain.

types depends on no other package in the module.
*/
package types
