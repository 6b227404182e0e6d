// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/model"
)

// Command describes one slash command.
type Command struct {
	Name        string
	Description string
}

// Commands lists the slash commands understood by the input line.
var Commands = []Command{
	{"/help", "Show key bindings"},
	{"/retry", "Edit and resend your last message"},
	{"/reset", "Clear the conversation"},
	{"/copy", "Copy the conversation to the clipboard"},
	{"/save", "Save the conversation as a text file"},
	{"/email", "Open an email draft with the conversation"},
	{"/print", "Open a printable page of the conversation"},
	{"/stats", "Show session statistics"},
	{"/quit", "Exit aidchat"},
}

// runCommand executes a slash command typed into the input line.
func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	m.input.SetValue("")
	m.ctrl.SetInput("")

	switch name {
	case "/help", "/?":
		m.showHelp = !m.showHelp
		m.refresh()
		return m, nil

	case "/retry":
		return m.retryLast()

	case "/reset", "/clear", "/new":
		if err := m.ctrl.Reset(); err != nil {
			m.logger.Warn("reset failed to clear history", "error", err)
		}
		m.renderer.forget()
		m.setFocus(focusInput)
		cmd := m.setNotice("Conversation cleared")
		m.refresh()
		return m, cmd

	case "/copy", "/save", "/email", "/print":
		return m, m.exportCmd(name)

	case "/stats":
		text := "Statistics are not available"
		if m.stats != nil {
			text = m.stats()
		}
		cmd := m.setNotice(text)
		m.refresh()
		return m, cmd

	case "/quit", "/exit", "/q":
		m.quitting = true
		if err := m.ctrl.Close(); err != nil {
			m.logger.Warn("closing session", "error", err)
		}
		return m, tea.Quit
	}

	cmd := m.setNotice("Unknown command " + name + ", type /help")
	m.refresh()
	return m, cmd
}

// exportCmd runs an export surface off the UI goroutine on a snapshot of
// the conversation.
func (m Model) exportCmd(action string) tea.Cmd {
	conv := m.ctrl.Conversation()
	msgs := conv.Snapshot()
	opts := export.DefaultOptions()
	if m.exportOpts != nil {
		c := *m.exportOpts
		opts = &c
	}
	if conv.Title != "" {
		opts.Title = conv.Title
	}

	return func() tea.Msg {
		return runExport(action, msgs, opts)
	}
}

func runExport(action string, msgs []*model.Message, opts *export.Options) exportDoneMsg {
	done := exportDoneMsg{action: action}
	switch action {
	case "/copy":
		done.err = export.Clipboard(msgs)
	case "/save":
		done.path, done.err = export.File(msgs, opts)
	case "/email":
		done.err = export.Email(msgs, opts)
	case "/print":
		done.path, done.err = export.Print(msgs, opts)
	}
	return done
}

func (m Model) handleExportDone(msg exportDoneMsg) (tea.Model, tea.Cmd) {
	var text string
	switch {
	case msg.err != nil:
		m.logger.Warn("export failed", "action", msg.action, "error", msg.err)
		text = "Could not " + strings.TrimPrefix(msg.action, "/") + ": " + msg.err.Error()
	case msg.action == "/copy":
		text = "Conversation copied to the clipboard"
	case msg.action == "/save":
		text = "Saved to " + msg.path
	case msg.action == "/email":
		text = "Opened an email draft"
	case msg.action == "/print":
		text = "Opened a printable page"
	}
	cmd := m.setNotice(text)
	m.refresh()
	return m, cmd
}
