// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot question command.
//
// Command: ask
// Short:   Ask a single question and print the answer
//
// Examples:
//
//	aidchat ask "Can I get help paying my heating bill?"
//	echo "What is WIC?" | aidchat ask
//	aidchat ask --json "What is SNAP?"
//
// The question is not added to the saved conversation.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/model"
)

// MaxStdinQuery bounds a question read from stdin.
const MaxStdinQuery = 16 * 1024

// ErrNoQuery is returned when ask has nothing to ask.
var ErrNoQuery = errors.New(`no question given, usage: aidchat ask "question"`)

// AskResult is the --json output of ask.
type AskResult struct {
	Question  string           `json:"question"`
	Answer    string           `json:"answer"`
	Citations []model.Citation `json:"citations,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	ElapsedMs int64            `json:"elapsed_ms"`
}

// readQuery returns the question from the arguments, or from stdin when the
// arguments are empty (or "-") and stdin is not a terminal.
func readQuery(query string, stdin io.Reader, stdinTTY bool) (string, error) {
	query = strings.TrimSpace(query)
	if query != "" && query != "-" {
		return query, nil
	}
	if stdinTTY {
		return "", ErrNoQuery
	}
	data, err := io.ReadAll(io.LimitReader(stdin, MaxStdinQuery))
	if err != nil {
		return "", fmt.Errorf("failed to read question: %w", err)
	}
	if q := strings.TrimSpace(string(data)); q != "" {
		return q, nil
	}
	return "", ErrNoQuery
}

// Ask sends one question through ctrl and writes the answer to out, as it
// streams or as JSON when jsonMode is set. A failed reply returns an error
// after the partial answer has been written.
func Ask(ctx context.Context, ctrl *exchange.Controller, query string, out io.Writer, jsonMode bool) error {
	ex, err := ctrl.Submit(ctx, query)
	if err != nil {
		return err
	}
	if ex == nil {
		return ErrNoQuery
	}

	var printed string
	runErr := ctrl.Run(ctx, ex, func(msg *model.Message) {
		if jsonMode || !strings.HasPrefix(msg.Text, printed) {
			return
		}
		fmt.Fprint(out, msg.Text[len(printed):])
		printed = msg.Text
	})
	reply := ex.Message()

	if jsonMode {
		res := AskResult{
			Question:  query,
			Answer:    reply.Text,
			Citations: reply.DisplayCitations(),
			ElapsedMs: reply.TotalDuration.Milliseconds(),
		}
		if runErr != nil {
			res.Error = runErr.Error()
			res.ErrorKind = exchange.Classify(runErr).String()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		return runErr
	}

	if strings.HasPrefix(reply.Text, printed) {
		fmt.Fprintln(out, reply.Text[len(printed):])
	} else {
		fmt.Fprintln(out, "\n"+reply.Text)
	}
	if cites := reply.DisplayCitations(); len(cites) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, DimStyle.Render("Sources:"))
		for i, c := range cites {
			fmt.Fprintln(out, DimStyle.Render(fmt.Sprintf("  %d. %s  %s", i+1, c.Label(), c.URI)))
		}
	}
	return runErr
}

// HandleAsk runs the ask command on a fresh, unsaved conversation.
func HandleAsk(ctx context.Context, rt *Runtime, args Args) error {
	query, err := readQuery(args.Query, os.Stdin, IsTTY())
	if err != nil {
		return err
	}

	ctrl := rt.NewController(model.NewConversation())
	defer ctrl.Close()

	if err := Ask(ctx, ctrl, query, os.Stdout, args.JSON); err != nil {
		if b := exchange.BannerFor(exchange.Classify(err)); b != nil && !args.JSON {
			return &CommandError{Message: b.Text, Err: err}
		}
		return err
	}
	return nil
}
