// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// export_cmd.go - Export command.
//
// Command: export
//
// Examples:
//
//	aidchat export                         Text file in the current directory
//	aidchat export --format md -o ~/Docs   Markdown file in ~/Docs
//	aidchat export --format json --stdout  JSON on stdout
package cli

import (
	"fmt"
	"io"

	"github.com/jeranaias/aidchat/internal/config"
	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/model"
)

// HandleExport writes the saved conversation in the requested format.
func HandleExport(cfg *config.Config, args Args, out io.Writer) error {
	history, slot, err := OpenHistory(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer slot.Close()

	msgs, err := history.LoadStrict()
	if err != nil {
		return fmt.Errorf("saved conversation is unreadable: %w", err)
	}
	return exportMessages(msgs, args, out)
}

func exportMessages(msgs []*model.Message, args Args, out io.Writer) error {
	if len(msgs) == 0 {
		return export.ErrEmpty
	}

	opts := export.DefaultOptions()
	if args.Output != "" {
		opts.OutputDir = args.Output
	}
	opts.Title = model.NewConversationFrom(msgs, nil).GetTitle()

	exporter, err := export.ByFormat(args.Format, opts)
	if err != nil {
		return err
	}

	if args.Stdout {
		data, err := exporter.Export(msgs)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	path, err := export.ExportToFile(msgs, exporter, opts)
	if err != nil {
		return err
	}
	if !args.Quiet {
		fmt.Fprintln(out, SuccessStyle.Render("[OK]")+" Saved to "+path)
	} else {
		fmt.Fprintln(out, path)
	}
	return nil
}
