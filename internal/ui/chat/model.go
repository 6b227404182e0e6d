// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/ui/styles"
)

// inputCharLimit caps a single message.
const inputCharLimit = 4096

// defaultNoticeTTL is how long transient notices stay on screen.
const defaultNoticeTTL = 4 * time.Second

// focusArea is the part of the screen receiving keys.
type focusArea int

const (
	focusInput focusArea = iota
	focusAnswers
	focusChips
)

// Config wires a Model to the rest of the application.
type Config struct {
	Controller *exchange.Controller
	Theme      *styles.Theme

	// Subtitle is shown next to the title, typically provider and model.
	Subtitle string

	// RenderMarkdown renders assistant replies with glamour.
	RenderMarkdown bool

	// WordWrap caps the text width; 0 follows the terminal.
	WordWrap int

	// Export configures /save and /print output.
	Export *export.Options

	// Stats returns the session summary for /stats. Optional.
	Stats func() string

	Logger *slog.Logger
}

// Model is the chat view.
type Model struct {
	ctx    context.Context
	ctrl   *exchange.Controller
	theme  *styles.Theme
	keys   KeyMap
	logger *slog.Logger

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	help     help.Model
	renderer *renderer

	subtitle   string
	exportOpts *export.Options
	stats      func() string

	focus      focusArea
	chipIndex  int
	answerIdx  int
	showHelp   bool
	notice     string
	noticeID   int
	noticeTTL  time.Duration
	width      int
	height     int
	ready      bool
	quitting   bool
	followTail bool
}

// New creates the chat view. ctx bounds every exchange the view starts;
// cancelling it detaches the one in flight.
func New(ctx context.Context, cfg Config) Model {
	theme := cfg.Theme
	if theme == nil {
		theme = styles.NewTheme(styles.ModeAuto)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about benefits, or type /help"
	ti.CharLimit = inputCharLimit
	ti.SetValue(cfg.Controller.Input())
	ti.Focus()

	vp := viewport.New(80, 20)

	// ASCII frames render on every terminal
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = theme.Spinner

	return Model{
		ctx:        ctx,
		ctrl:       cfg.Controller,
		theme:      theme,
		keys:       DefaultKeyMap(),
		logger:     logger,
		input:      ti,
		viewport:   vp,
		spinner:    sp,
		help:       help.New(),
		renderer:   newRenderer(theme, cfg.RenderMarkdown, cfg.WordWrap),
		subtitle:   cfg.Subtitle,
		exportOpts: cfg.Export,
		stats:      cfg.Stats,
		noticeTTL:  defaultNoticeTTL,
		followTail: true,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Controller returns the controller driven by the view.
func (m Model) Controller() *exchange.Controller {
	return m.ctrl
}

// Focus returns the name of the focused area, for tests and the status bar.
func (m Model) Focus() string {
	switch m.focus {
	case focusAnswers:
		return "answers"
	case focusChips:
		return "replies"
	default:
		return "input"
	}
}

// Notice returns the current transient notice.
func (m Model) Notice() string {
	return m.notice
}

// InputValue returns the text in the input line.
func (m Model) InputValue() string {
	return m.input.Value()
}

// setNotice shows a transient notice and schedules its expiry.
func (m *Model) setNotice(text string) tea.Cmd {
	m.noticeID++
	m.notice = text
	id := m.noticeID
	return tea.Tick(m.noticeTTL, func(time.Time) tea.Msg {
		return noticeExpiredMsg{id: id}
	})
}
