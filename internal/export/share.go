// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/util"
)

// ErrClipboardUnavailable is returned when the platform has no clipboard
// utility (for example a Linux session without xclip, xsel or wl-copy).
var ErrClipboardUnavailable = errors.New("clipboard is not available")

// maxMailBody keeps mailto URLs under the length most mail clients accept.
const maxMailBody = 1800

var writeClipboard = clipboard.WriteAll

// Clipboard copies the plain-text conversation to the system clipboard.
func Clipboard(msgs []*model.Message) error {
	if len(msgs) == 0 {
		return ErrEmpty
	}
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	if err := writeClipboard(PlainText(msgs)); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

// File saves the plain-text conversation under opts.OutputDir and returns
// the file path.
func File(msgs []*model.Message, opts *Options) (string, error) {
	return ExportToFile(msgs, NewTextExporter(), opts)
}

// EmailURL builds a mailto: draft with the title as subject and the
// plain-text conversation as body. Long bodies are truncated.
func EmailURL(msgs []*model.Message, title string) string {
	body := util.TruncateRunes(PlainText(msgs), maxMailBody)
	// Mail clients expect CRLF line breaks in mailto bodies
	body = strings.ReplaceAll(body, "\n", "\r\n")
	return "mailto:?subject=" + mailEscape(title) + "&body=" + mailEscape(body)
}

// mailEscape percent-encodes s for a mailto header value. Spaces become
// %20 since "+" is shown literally by most clients.
func mailEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Email opens the default mail client with the conversation as a draft.
func Email(msgs []*model.Message, opts *Options) error {
	if len(msgs) == 0 {
		return ErrEmpty
	}
	opts = opts.withDefaults()
	if err := opener(EmailURL(msgs, opts.Title)); err != nil {
		return fmt.Errorf("open mail client: %w", err)
	}
	return nil
}

// Print writes a print-styled HTML page and opens it in the browser, which
// shows its print dialog. It returns the page path.
func Print(msgs []*model.Message, opts *Options) (string, error) {
	opts = opts.withDefaults()
	opts.OpenAfterExport = false

	path, err := ExportToFile(msgs, NewPrintExporter(opts), opts)
	if err != nil {
		return "", err
	}
	if err := opener(path); err != nil {
		return path, fmt.Errorf("open browser: %w", err)
	}
	return path, nil
}
