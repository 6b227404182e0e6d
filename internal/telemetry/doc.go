// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry records exchange statistics for aidchat.
//
// Recorder implements exchange.Metrics. It feeds Prometheus collectors on a
// private registry and keeps a small in-process session summary that the
// UI shows with /stats.
//
// # Usage
//
//	rec := telemetry.NewRecorder()
//	ctrl := exchange.New(conv, svc, exchange.Options{Metrics: rec})
//	go telemetry.Serve(ctx, "127.0.0.1:9464", rec, logger)
//
// # Privacy
//
// Telemetry is local-only. Message content is never recorded, only counts
// and durations. The /metrics listener binds to localhost by default.
package telemetry
