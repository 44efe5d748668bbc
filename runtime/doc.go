// Copyright (c) BusyFlow Authors.
// Licensed under the MIT License.

/*
Package runtime provides the per-invocation execution environment (the
microruntime) behind step execution.

A Context carries a capability map, a resource injector, and an execution
trace. SendInput runs the full dispatch pipeline - validate input,
authorize, inject resources, execute under a cancellable deadline, validate
output - and records a trace entry for every call.

Contexts form a tree through Spawn: children are owned strongly, parents
are referenced weakly by ID through a shared Registry arena, so discarding
a parent never leaks its subtree through reference cycles. Broadcast fans
out concurrently to PARENT, SIBLINGS, CHILDREN, or ALL.
*/
package runtime
