// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/suggest"
	"github.com/jeranaias/aidchat/internal/ui/styles"
	"github.com/jeranaias/aidchat/internal/util"
)

// maxChipWidth keeps long option labels from filling the row.
const maxChipWidth = 36

// chip is one selectable entry in the replies row.
type chip struct {
	label string
	value string
}

// chips returns the extracted options followed by the quick replies.
func (m Model) chips() []chip {
	if m.ctrl.Processing() {
		return nil
	}
	var out []chip
	for _, o := range m.ctrl.Options() {
		out = append(out, chip{label: o.Label, value: o.Value})
	}
	for _, r := range m.ctrl.QuickReplies() {
		out = append(out, chip{label: r.Label, value: r.Value})
	}
	return out
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderFooter(),
	)
}

// refresh re-lays out the screen and re-renders the conversation.
func (m *Model) refresh() {
	if !m.ready {
		return
	}
	if m.focus != focusInput {
		found := false
		for _, a := range m.focusAreas() {
			found = found || a == m.focus
		}
		if !found {
			m.setFocus(focusInput)
		}
	}

	vpHeight := m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderFooter())
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = vpHeight
	m.viewport.SetContent(m.renderConversation())
	if m.followTail {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// HEADER
// =============================================================================

func (m Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("aidchat")
	if m.subtitle != "" {
		title += "  " + m.theme.HeaderSubtitle.Render(m.subtitle)
	}
	return m.theme.Header.Width(m.width).Render(title)
}

// =============================================================================
// CONVERSATION
// =============================================================================

func (m Model) renderConversation() string {
	msgs := m.ctrl.Conversation().Messages()
	if len(msgs) == 0 {
		return m.theme.Muted.Render("\n  Ask a question about assistance programs to get started.\n  Type /help for commands.")
	}

	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, m.renderMessage(msg))
	}
	return strings.Join(parts, "\n\n")
}

func (m Model) renderMessage(msg *model.Message) string {
	label := msg.Role.DisplayName()
	if !msg.Timestamp.IsZero() {
		label += "  " + m.theme.Muted.Render(msg.Timestamp.Format("15:04"))
	}

	var body string
	switch {
	case msg.IsStreaming && msg.Text == "":
		body = m.spinner.View() + " " + m.theme.ThinkingText.Render("Thinking...")
	case msg.IsStreaming:
		body = m.renderer.text(msg) + " " + m.spinner.View()
	default:
		body = m.renderer.text(msg)
	}

	width := m.theme.BubbleWidth()
	var bubble string
	switch {
	case msg.Role == model.RoleUser:
		bubble = m.theme.UserBubble.Width(width).Render(body)
		label = lipgloss.NewStyle().MarginLeft(4).Render(m.theme.RoleLabel.Render(label))
	case msg.HasError:
		bubble = m.theme.ErrorBubble.Width(width).Render(styles.StatusIndicators.Error + " " + body)
		label = m.theme.RoleLabel.Render(label)
	default:
		bubble = m.theme.AssistantBubble.Width(width).Render(body)
		label = m.theme.RoleLabel.Render(label)
	}

	out := []string{label, bubble}
	if cites := msg.DisplayCitations(); len(cites) > 0 {
		out = append(out, m.renderSources(cites))
	}
	if stats := msg.FormatStats(); stats != "" {
		out = append(out, m.theme.Stats.Render("  "+stats))
	}
	return lipgloss.JoinVertical(lipgloss.Left, out...)
}

func (m Model) renderSources(cites []model.Citation) string {
	lines := []string{"Sources:"}
	for i, c := range cites {
		entry := fmt.Sprintf("%d. %s", i+1, util.TruncateWidth(c.Label(), m.theme.BubbleWidth()-6))
		if c.Label() != c.URI {
			entry += " " + m.theme.Link.Render(c.URI)
		}
		lines = append(lines, entry)
	}
	return m.theme.Sources.Render(strings.Join(lines, "\n"))
}

// =============================================================================
// FOOTER
// =============================================================================

func (m Model) renderFooter() string {
	var sections []string

	if b := m.ctrl.Banner(); b != nil {
		sections = append(sections, m.renderBanner(b))
	}
	if sheet := m.ctrl.Answers(); sheet != nil {
		sections = append(sections, m.renderAnswers(sheet))
	}
	if chips := m.chips(); len(chips) > 0 {
		sections = append(sections, m.renderChips(chips))
	}
	if m.notice != "" {
		sections = append(sections, m.theme.Notice.Render(styles.StatusIndicators.Info+" "+m.notice))
	}

	inputStyle := m.theme.InputContainer
	if m.focus == focusInput {
		inputStyle = m.theme.InputFocused
	}
	sections = append(sections, inputStyle.Width(m.width).Render(m.input.View()))
	sections = append(sections, m.renderStatusBar())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderBanner(b *exchange.Banner) string {
	style := m.theme.BannerError
	indicator := styles.StatusIndicators.Error
	if b.Kind == exchange.KindRateLimited {
		style = m.theme.BannerWarning
		indicator = styles.StatusIndicators.Warning
	}
	text := indicator + " " + b.Text + "  " + m.theme.Muted.Render("(Esc to dismiss)")
	return style.Width(m.width).Render(text)
}

func (m Model) renderAnswers(sheet *suggest.AnswerSheet) string {
	answers := sheet.Answers()
	lines := []string{m.theme.SectionHeader.Render(fmt.Sprintf("Your answers (%d of %d)", sheet.Answered(), len(answers)))}

	for i, a := range answers {
		cursor := "  "
		if m.focus == focusAnswers && i == m.answerIdx {
			cursor = styles.StatusIndicators.Selected + " "
		}
		var mark string
		switch a.Value {
		case suggest.AnswerYes:
			mark = m.theme.AnswerYes.Render(styles.StatusIndicators.Yes)
		case suggest.AnswerNo:
			mark = m.theme.AnswerNo.Render(styles.StatusIndicators.No)
		default:
			mark = m.theme.AnswerUnset.Render(styles.StatusIndicators.Unset)
		}
		text := util.TruncateWidth(a.QuestionText, m.width-10)
		lines = append(lines, cursor+mark+" "+m.theme.Question.Render(text))
	}

	hint := "Tab to answer"
	if m.focus == focusAnswers {
		hint = "y/n to answer, Enter to send"
	}
	lines = append(lines, m.theme.Muted.Render(hint))
	return strings.Join(lines, "\n")
}

func (m Model) renderChips(chips []chip) string {
	rendered := make([]string, len(chips))
	for i, c := range chips {
		style := m.theme.Chip
		if m.focus == focusChips && i == m.chipIndex {
			style = m.theme.ChipSelected
		}
		rendered[i] = style.Render(util.TruncateWidth(c.label, maxChipWidth))
	}

	// wrap chips onto as many rows as the width needs
	var rows []string
	var row []string
	rowWidth := 0
	for _, r := range rendered {
		w := lipgloss.Width(r)
		if rowWidth > 0 && rowWidth+w > m.width {
			rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
			row, rowWidth = nil, 0
		}
		row = append(row, r)
		rowWidth += w
	}
	if len(row) > 0 {
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, row...))
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderStatusBar() string {
	if m.showHelp {
		m.help.ShowAll = true
		return m.help.View(m.keys) + "\n" + m.renderCommandHelp()
	}

	state := "Ready"
	if m.ctrl.Processing() {
		state = m.spinner.View() + " Replying"
	}
	left := m.theme.StatusBar.Render(state + " | " + m.Focus())
	right := m.help.View(m.keys)
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderCommandHelp() string {
	lines := make([]string, len(Commands))
	for i, c := range Commands {
		lines[i] = fmt.Sprintf("  %-8s %s", c.Name, m.theme.Muted.Render(c.Description))
	}
	return strings.Join(lines, "\n")
}
