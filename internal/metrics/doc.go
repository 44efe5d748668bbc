// Copyright (c) BusyFlow Authors.
// Licensed under the MIT License.

/*
Package metrics provides Prometheus-based metrics collection for
process execution, step outcomes, context operation dispatch, and
audit store writes.

The Collector registers its vectors through promauto against a caller
supplied Registerer, so production code can use the default registry
while tests register against a fresh one. All metrics are grouped
under a configurable namespace.
*/
package metrics
