// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export turns a conversation into shareable output.
//
// Every surface starts from the same snapshot of messages:
//
//   - PlainText: the canonical text form, "<Role>: <text>" blocks separated by
//     "---", with a Sources line under answers that cite the web
//   - Clipboard: copies PlainText to the system clipboard
//   - File: saves PlainText to a timestamped .txt file
//   - Email: opens the mail client with a mailto: draft
//   - Print: writes a print-styled HTML page and opens it in the browser
//
// Markdown and JSON exporters are available for the export subcommand.
//
// # Usage
//
//	text := export.PlainText(conv.Messages())
//	path, err := export.File(conv.Messages(), export.DefaultOptions())
package export
