// Copyright (c) BusyFlow Authors.
// Licensed under the MIT License.

/*
Package process implements the business-process execution core: an ordered
sequence of steps run inside a Process with flexible navigation and an
event-sourced, append-only audit history.

# Step variants

  - HumanStep     - UI-driven form input with per-field validation and a
    free-form alternative UI for overrides
  - AgentStep     - prompt-template invocation of an external AI backend
    with confidence gating
  - AlgorithmStep - code-driven work with schema-checked input and output
  - FallbackStep  - algorithm + human composition triggered by recognized
    domain failure codes

# State

State is an immutable value. Every transition (WithStatus,
WithStepNavigation, WithStepSkip, WithStepData, WithException) returns a
new handle whose history extends the previous one; entries are never
reordered or removed. The Process holds only the latest handle, so
correctness rests entirely on this copy-on-write discipline and no locking
is needed across Process instances.

# Policy

The runtime facilitates, never constrains: every step is skippable, manual
override data that fails validation produces a warning rather than a
rejection, and failures are additive audit events that never erase history.
*/
package process
