// Copyright (c) BusyFlow Authors.
// Licensed under the MIT License.

// Package telemetry wraps OpenTelemetry SDK initialization, providing
// centralized TracerProvider and MeterProvider configuration for
// BusyFlow. When telemetry is disabled the package installs nothing
// and global providers remain noop.
package telemetry
