// Copyright (c) BusyFlow Authors.
// Licensed under the MIT License.

/*
Package types provides the shared value types used at every execution
boundary of the runtime.

  - JSONSchema            - schema descriptor with fluent builders
  - Validate              - recursive validator producing dotted/indexed paths
  - ValidatedInput/Output - schema-checked value wrappers (shared validator)
  - Error / ErrorCode     - structured error taxonomy with Unwrap support
  - Context helpers       - process/step/user/execution IDs on context.Context
*/
package types
