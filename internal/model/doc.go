// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: ordered, append-only log of messages with truncation on retry
//   - Message: single turn with role, text, citations and streaming/error state
//   - Citation: web source record attached to assistant messages
//   - IDGenerator: ULID-based message IDs (timestamp + monotonic sequence)
//
// # Usage
//
//	conv := model.NewConversation()
//	conv.SetPersister(history)
//	_ = conv.Append(model.NewUserMessage("Hello!"))
package model
