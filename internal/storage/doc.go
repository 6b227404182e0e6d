// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides durable persistence for the chat history.
//
// A Slot is a tiny key-value store holding one serialized value per key.
// Three backends implement it:
//
//   - FileSlot: one JSON file per key, written atomically
//   - SQLiteSlot: a single kv table in a SQLite database
//   - PebbleSlot: a Pebble LSM directory
//
// History sits on top of a Slot and stores the message sequence of the
// conversation under a single named key:
//
//	slot, err := storage.Open(storage.BackendFile, dir)
//	history := storage.NewHistory(slot, "conversation", logger)
//	msgs := history.Load()            // never fails; corrupt data reads as empty
//	conv := model.NewConversationFrom(msgs, history)
//
// # Storage Location
//
// The default directory is ~/.aidchat/history/.
package storage
