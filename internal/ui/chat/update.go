// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/suggest"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.renderer.setWidth(m.theme.BubbleWidth() - 2)
		m.input.Width = msg.Width - 4
		m.help.Width = msg.Width
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.followTail = m.viewport.AtBottom()
		return m, cmd

	case fragmentMsg:
		return m.handleFragment(msg)

	case spinner.TickMsg:
		if !m.ctrl.Processing() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case exportDoneMsg:
		return m.handleExportDone(msg)

	case noticeExpiredMsg:
		if msg.id == m.noticeID {
			m.notice = ""
			m.refresh()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// STREAMING
// =============================================================================

func (m Model) handleFragment(msg fragmentMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.err != nil:
		m.ctrl.Fail(msg.ex, msg.err)
	case !msg.more:
		m.ctrl.Complete(msg.ex)
	default:
		if m.ctrl.Apply(msg.ex, msg.frag) {
			m.refresh()
			return m, nextFragment(msg.ex)
		}
		return m, nil
	}

	m.chipIndex = 0
	m.answerIdx = 0
	m.refresh()
	return m, nil
}

// started switches the view to a freshly accepted exchange.
func (m *Model) started(ex *exchange.Exchange) tea.Cmd {
	m.input.SetValue("")
	m.setFocus(focusInput)
	m.followTail = true
	m.refresh()
	return tea.Batch(nextFragment(ex), m.spinner.Tick)
}

// submit sends text through the controller. Dropped submissions change
// nothing, including the input line.
func (m *Model) submit(text string) tea.Cmd {
	ex, err := m.ctrl.Submit(m.ctx, text)
	if err != nil {
		m.logger.Debug("submission failed", "error", err)
		m.refresh()
		return nil
	}
	if ex == nil {
		return nil
	}
	return m.started(ex)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		if err := m.ctrl.Close(); err != nil {
			m.logger.Warn("closing session", "error", err)
		}
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		m.followTail = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		m.followTail = m.viewport.AtBottom()
		return m, nil

	case key.Matches(msg, m.keys.NextFocus):
		m.cycleFocus(1)
		m.refresh()
		return m, nil

	case key.Matches(msg, m.keys.PrevFocus):
		m.cycleFocus(-1)
		m.refresh()
		return m, nil
	}

	switch m.focus {
	case focusAnswers:
		return m.handleAnswersKey(msg)
	case focusChips:
		return m.handleChipsKey(msg)
	default:
		return m.handleInputKey(msg)
	}
}

func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		text := m.input.Value()
		if strings.HasPrefix(strings.TrimSpace(text), "/") {
			return m.runCommand(text)
		}
		cmd := m.submit(text)
		return m, cmd

	case key.Matches(msg, m.keys.Dismiss):
		if m.ctrl.Banner() != nil {
			m.ctrl.DismissBanner()
			m.refresh()
		}
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		return m.retryLast()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.ctrl.SetInput(m.input.Value())
	return m, cmd
}

func (m Model) handleChipsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	chips := m.chips()
	if len(chips) == 0 {
		m.setFocus(focusInput)
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Left):
		m.chipIndex = (m.chipIndex - 1 + len(chips)) % len(chips)
	case key.Matches(msg, m.keys.Right):
		m.chipIndex = (m.chipIndex + 1) % len(chips)
	case key.Matches(msg, m.keys.Submit):
		cmd := m.submit(chips[m.chipIndex%len(chips)].value)
		return m, cmd
	case key.Matches(msg, m.keys.Dismiss):
		m.setFocus(focusInput)
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

func (m Model) handleAnswersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sheet := m.ctrl.Answers()
	if sheet == nil {
		m.setFocus(focusInput)
		return m.handleInputKey(msg)
	}
	answers := sheet.Answers()

	switch {
	case key.Matches(msg, m.keys.Up):
		m.answerIdx = (m.answerIdx - 1 + len(answers)) % len(answers)
	case key.Matches(msg, m.keys.Down):
		m.answerIdx = (m.answerIdx + 1) % len(answers)
	case key.Matches(msg, m.keys.Yes), key.Matches(msg, m.keys.No):
		v := suggest.AnswerYes
		if key.Matches(msg, m.keys.No) {
			v = suggest.AnswerNo
		}
		if err := m.ctrl.SetAnswer(answers[m.answerIdx].QuestionID, v); err != nil {
			m.logger.Debug("set answer", "error", err)
		}
		if m.answerIdx < len(answers)-1 {
			m.answerIdx++
		}
	case key.Matches(msg, m.keys.SendAnswers):
		ex, err := m.ctrl.SubmitAnswers(m.ctx)
		switch {
		case errors.Is(err, exchange.ErrAnswersIncomplete):
			cmd := m.setNotice(fmt.Sprintf("Answer every question first (%d of %d answered)", sheet.Answered(), len(answers)))
			m.refresh()
			return m, cmd
		case err != nil:
			m.refresh()
			return m, nil
		case ex != nil:
			cmd := m.started(ex)
			return m, cmd
		}
		return m, nil
	case key.Matches(msg, m.keys.Dismiss):
		m.setFocus(focusInput)
	default:
		return m, nil
	}
	m.refresh()
	return m, nil
}

// retryLast puts the most recent user message back into the input and
// removes it and everything after it.
func (m Model) retryLast() (tea.Model, tea.Cmd) {
	msgs := m.ctrl.Conversation().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != model.RoleUser {
			continue
		}
		text, err := m.ctrl.Retry(i)
		if err != nil {
			m.logger.Debug("retry refused", "error", err)
			return m, nil
		}
		m.input.SetValue(text)
		m.input.CursorEnd()
		m.setFocus(focusInput)
		m.refresh()
		return m, nil
	}
	return m, nil
}

// =============================================================================
// FOCUS
// =============================================================================

// focusAreas lists the areas that currently have something to focus.
func (m Model) focusAreas() []focusArea {
	areas := []focusArea{focusInput}
	if m.ctrl.Answers() != nil {
		areas = append(areas, focusAnswers)
	}
	if len(m.chips()) > 0 {
		areas = append(areas, focusChips)
	}
	return areas
}

func (m *Model) cycleFocus(step int) {
	areas := m.focusAreas()
	cur := 0
	for i, a := range areas {
		if a == m.focus {
			cur = i
		}
	}
	m.setFocus(areas[(cur+step+len(areas))%len(areas)])
}

func (m *Model) setFocus(f focusArea) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
	} else {
		m.input.Blur()
	}
}
