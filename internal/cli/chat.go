// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-mode chat for aidchat.
//
// Handles "aidchat chat" and the fallback used when stdin or stdout is not a
// terminal. Replies stream to stdout as they arrive (or are rendered as
// markdown once finished on a color terminal). Suggested replies are listed
// by number; typing the number sends the suggestion.
//
// Interactive Commands:
//
//	/help, /?           Show available commands
//	/answer y n ...     Answer the assistant's numbered questions in order
//	/retry              Edit and resend your last message
//	/reset, /clear      Clear the conversation
//	/copy /save /email /print
//	                    Share the conversation
//	/history            Print the conversation
//	/stats              Show session statistics
//	/quit, /q           Exit chat
//	Ctrl+C              Cancel the current reply (exit at the prompt)
//	Ctrl+D              Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/peterh/liner"

	"github.com/jeranaias/aidchat/internal/config"
	"github.com/jeranaias/aidchat/internal/exchange"
	"github.com/jeranaias/aidchat/internal/export"
	"github.com/jeranaias/aidchat/internal/model"
	"github.com/jeranaias/aidchat/internal/suggest"
	"github.com/jeranaias/aidchat/internal/ui/styles"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineReader reads input lines for the REPL. *ChatCLI implements it on top
// of liner; tests use a scripted reader.
type LineReader interface {
	Prompt(prompt string) (string, error)
	PromptWithSuggestion(prompt, text string, pos int) (string, error)
	AppendHistory(item string)
}

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	*liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history persists in historyFile.
// An empty historyFile keeps history in memory only.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{State: line, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			_, _ = line.ReadHistory(f)
			f.Close()
		}
	}
	return c
}

// DefaultHistoryFile returns ~/.aidchat/chat_history, or "" when the config
// directory is unknown.
func DefaultHistoryFile() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "chat_history")
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() error {
	if c.historyFile != "" {
		if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err == nil {
			// SECURITY: history holds personal circumstances, owner-only
			if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
				_, _ = c.WriteHistory(f)
				f.Close()
			}
		}
	}
	return c.State.Close()
}

// =============================================================================
// REPL
// =============================================================================

// REPLConfig configures a REPL.
type REPLConfig struct {
	Controller *exchange.Controller
	In         LineReader
	Out        io.Writer

	// MarkdownStyle is a glamour standard style ("dark", "light"). Empty
	// streams raw text as it arrives.
	MarkdownStyle string
	Width         int

	Export *export.Options
	Stats  func() string
	Quiet  bool
	Logger *slog.Logger

	// Interrupt derives the context for one reply. The default cancels it
	// on SIGINT so Ctrl+C stops the reply without leaving the REPL.
	Interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
}

// REPL is the line-mode chat loop. Like the full-screen UI it is the only
// writer of its controller.
type REPL struct {
	ctrl      *exchange.Controller
	in        LineReader
	out       io.Writer
	md        *glamour.TermRenderer
	exportOpt *export.Options
	stats     func() string
	quiet     bool
	logger    *slog.Logger
	interrupt func(ctx context.Context) (context.Context, context.CancelFunc)
	width     int
	prefill   string
}

// NewREPL creates a REPL.
func NewREPL(cfg REPLConfig) *REPL {
	r := &REPL{
		ctrl:      cfg.Controller,
		in:        cfg.In,
		out:       cfg.Out,
		exportOpt: cfg.Export,
		stats:     cfg.Stats,
		quiet:     cfg.Quiet,
		logger:    cfg.Logger,
		interrupt: cfg.Interrupt,
		width:     cfg.Width,
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.exportOpt == nil {
		r.exportOpt = export.DefaultOptions()
	}
	if r.interrupt == nil {
		r.interrupt = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}
	if cfg.MarkdownStyle != "" {
		width := cfg.Width
		if width <= 0 {
			width = DefaultTerminalWidth
		}
		md, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(cfg.MarkdownStyle),
			glamour.WithWordWrap(width-4),
		)
		if err != nil {
			r.logger.Warn("markdown rendering disabled", "error", err)
		} else {
			r.md = md
		}
	}
	return r
}

// Run reads and handles lines until /quit, Ctrl+D, Ctrl+C at the prompt or
// ctx cancellation.
func (r *REPL) Run(ctx context.Context) error {
	if !r.quiet {
		r.printWelcome()
	}

	for ctx.Err() == nil {
		line, err := r.readLine()
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out)
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.in.AppendHistory(line)

		if strings.HasPrefix(line, "/") {
			if quit := r.runCommand(ctx, line); quit {
				return nil
			}
			continue
		}
		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}
		if c, ok := r.choice(line); ok {
			line = c.value
		}
		r.send(ctx, line)
	}
	return nil
}

func (r *REPL) readLine() (string, error) {
	prompt := PromptStyle.Render("you>") + " "
	if r.prefill != "" {
		text := r.prefill
		r.prefill = ""
		return r.in.PromptWithSuggestion(prompt, text, -1)
	}
	return r.in.Prompt(prompt)
}

// =============================================================================
// EXCHANGES
// =============================================================================

// send submits text and streams the reply.
func (r *REPL) send(ctx context.Context, text string) {
	ex, err := r.ctrl.Submit(ctx, text)
	if err != nil {
		r.printBanner()
		r.prefill = text
		return
	}
	if ex == nil {
		fmt.Fprintln(r.out, WarningStyle.Render(styles.StatusIndicators.Warning+" Not sent. Wait a moment and try again."))
		r.prefill = text
		return
	}
	r.stream(ctx, ex)
}

func (r *REPL) stream(ctx context.Context, ex *exchange.Exchange) {
	rctx, stop := r.interrupt(ctx)
	defer stop()

	fmt.Fprintln(r.out)
	fmt.Fprint(r.out, SpeakerStyle.Render("Assistant:")+" ")
	if r.md != nil {
		fmt.Fprint(r.out, DimStyle.Render("..."))
	}

	var printed string
	err := r.ctrl.Run(rctx, ex, func(msg *model.Message) {
		if r.md != nil || !strings.HasPrefix(msg.Text, printed) {
			return
		}
		fmt.Fprint(r.out, msg.Text[len(printed):])
		printed = msg.Text
	})

	reply := ex.Message()
	switch {
	case r.md != nil:
		fmt.Fprint(r.out, "\r\033[K")
		fmt.Fprintln(r.out, SpeakerStyle.Render("Assistant:"))
		fmt.Fprint(r.out, r.render(reply.Text))
	case strings.HasPrefix(reply.Text, printed):
		fmt.Fprintln(r.out, reply.Text[len(printed):])
	default:
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, reply.Text)
	}

	if errors.Is(err, context.Canceled) && ctx.Err() == nil {
		fmt.Fprintln(r.out, WarningStyle.Render("[Cancelled]"))
	}
	r.printBanner()
	r.printSources(reply)
	if stats := reply.FormatStats(); stats != "" && !r.quiet {
		fmt.Fprintln(r.out, DimStyle.Render(stats))
	}
	r.printSuggestions()
	fmt.Fprintln(r.out)
}

func (r *REPL) render(text string) string {
	out, err := r.md.Render(text)
	if err != nil {
		r.logger.Debug("markdown render failed", "error", err)
		return text + "\n"
	}
	return out
}

// =============================================================================
// SUGGESTIONS
// =============================================================================

type replyChoice struct {
	label string
	value string
}

// choices lists options first, then quick replies, numbered from 1.
func (r *REPL) choices() []replyChoice {
	var out []replyChoice
	for _, o := range r.ctrl.Options() {
		out = append(out, replyChoice{label: o.Label, value: o.Value})
	}
	for _, q := range r.ctrl.QuickReplies() {
		out = append(out, replyChoice{label: q.Label, value: q.Value})
	}
	return out
}

// choice maps a bare number to the matching suggestion.
func (r *REPL) choice(line string) (replyChoice, bool) {
	n, err := strconv.Atoi(line)
	if err != nil {
		return replyChoice{}, false
	}
	cs := r.choices()
	if n < 1 || n > len(cs) {
		return replyChoice{}, false
	}
	return cs[n-1], true
}

func (r *REPL) printSuggestions() {
	if sheet := r.ctrl.Answers(); sheet != nil {
		n := len(sheet.Answers())
		example := strings.TrimSpace(strings.Repeat("y ", n))
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("Answer all %d questions at once with /answer, e.g. /answer %s", n, example)))
	}

	cs := r.choices()
	if len(cs) == 0 {
		return
	}
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = ChoiceStyle.Render(fmt.Sprintf("[%d]", i+1)) + " " + c.label
	}
	fmt.Fprintln(r.out, DimStyle.Render("Reply with a number:")+" "+strings.Join(parts, "  "))
}

func (r *REPL) printSources(msg *model.Message) {
	cites := msg.DisplayCitations()
	if len(cites) == 0 {
		return
	}
	fmt.Fprintln(r.out, DimStyle.Render("Sources:"))
	for i, c := range cites {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("  %d. %s  %s", i+1, c.Label(), c.URI)))
	}
}

// printBanner shows the conversation banner once, then dismisses it.
func (r *REPL) printBanner() {
	b := r.ctrl.Banner()
	if b == nil {
		return
	}
	if b.Kind == exchange.KindRateLimited {
		fmt.Fprintln(r.out, WarningStyle.Render(styles.StatusIndicators.Warning+" "+b.Text))
	} else {
		fmt.Fprintln(r.out, ErrorStyle.Render(styles.StatusIndicators.Error+" "+b.Text))
	}
	r.ctrl.DismissBanner()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// replCommands lists the slash commands for /help and typo suggestions.
var replCommands = []struct {
	name string
	desc string
}{
	{"/help", "Show this help"},
	{"/answer", "Answer numbered questions in order: /answer y n y"},
	{"/retry", "Edit and resend your last message"},
	{"/reset", "Clear the conversation"},
	{"/copy", "Copy the conversation to the clipboard"},
	{"/save", "Save the conversation as a text file"},
	{"/email", "Open an email draft with the conversation"},
	{"/print", "Open a printable page of the conversation"},
	{"/history", "Print the conversation"},
	{"/stats", "Show session statistics"},
	{"/quit", "Exit chat"},
}

// runCommand executes a slash command and reports whether to quit.
func (r *REPL) runCommand(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name := strings.ToLower(fields[0])
	args := fields[1:]

	switch name {
	case "/help", "/h", "/?", "/":
		r.printHelp()

	case "/quit", "/q", "/exit":
		return true

	case "/answer", "/a":
		r.answer(ctx, args)

	case "/retry":
		r.retry()

	case "/reset", "/clear", "/new":
		if err := r.ctrl.Reset(); err != nil {
			r.logger.Warn("reset failed to clear history", "error", err)
		}
		fmt.Fprintln(r.out, SuccessStyle.Render("[Conversation cleared]"))

	case "/copy", "/save", "/email", "/print":
		r.share(name)

	case "/history":
		msgs := r.ctrl.Conversation().Snapshot()
		if len(msgs) == 0 {
			fmt.Fprintln(r.out, DimStyle.Render("No messages yet."))
			break
		}
		fmt.Fprintln(r.out, WrapText(export.PlainText(msgs), r.width))

	case "/stats":
		if r.stats != nil {
			fmt.Fprintln(r.out, r.stats())
		}

	default:
		msg := "Unknown command " + name
		names := make([]string, len(replCommands))
		for i, c := range replCommands {
			names[i] = c.name
		}
		if s := SuggestCommand(name, names); s != "" {
			msg += ", did you mean " + s + "?"
		} else {
			msg += ", type /help"
		}
		fmt.Fprintln(r.out, ErrorStyle.Render(msg))
	}
	return false
}

// answer records one yes/no per question, in order, and sends the
// composed reply.
func (r *REPL) answer(ctx context.Context, args []string) {
	sheet := r.ctrl.Answers()
	if sheet == nil {
		fmt.Fprintln(r.out, ErrorStyle.Render("There are no questions to answer."))
		return
	}

	values := parseAnswers(args)
	answers := sheet.Answers()
	if len(values) != len(answers) {
		fmt.Fprintln(r.out, ErrorStyle.Render(fmt.Sprintf("Give one y or n for each of the %d questions.", len(answers))))
		return
	}
	for i, a := range answers {
		if err := r.ctrl.SetAnswer(a.QuestionID, values[i]); err != nil {
			fmt.Fprintln(r.out, ErrorStyle.Render(err.Error()))
			return
		}
	}

	ex, err := r.ctrl.SubmitAnswers(ctx)
	switch {
	case err != nil && !errors.Is(err, exchange.ErrAnswersIncomplete):
		r.printBanner()
	case ex == nil:
		fmt.Fprintln(r.out, WarningStyle.Render(styles.StatusIndicators.Warning+" Not sent. Wait a moment and try /answer again."))
	default:
		r.stream(ctx, ex)
	}
}

// parseAnswers accepts "y n y", "yny" or "yes no yes". Anything else makes
// the result nil.
func parseAnswers(args []string) []suggest.AnswerValue {
	var tokens []string
	for _, a := range args {
		a = strings.ToLower(strings.Trim(a, ","))
		switch a {
		case "yes", "no":
			tokens = append(tokens, a[:1])
		default:
			for _, c := range a {
				tokens = append(tokens, string(c))
			}
		}
	}

	out := make([]suggest.AnswerValue, 0, len(tokens))
	for _, t := range tokens {
		switch t {
		case "y":
			out = append(out, suggest.AnswerYes)
		case "n":
			out = append(out, suggest.AnswerNo)
		default:
			return nil
		}
	}
	return out
}

func (r *REPL) retry() {
	msgs := r.ctrl.Conversation().Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != model.RoleUser {
			continue
		}
		text, err := r.ctrl.Retry(i)
		if err != nil {
			fmt.Fprintln(r.out, ErrorStyle.Render(err.Error()))
			return
		}
		r.prefill = text
		fmt.Fprintln(r.out, DimStyle.Render("Edit your message and press Enter to resend."))
		return
	}
	fmt.Fprintln(r.out, DimStyle.Render("Nothing to retry."))
}

func (r *REPL) share(action string) {
	msgs := r.ctrl.Conversation().Snapshot()
	opts := *r.exportOpt
	opts.Title = r.ctrl.Conversation().GetTitle()

	var path string
	var err error
	switch action {
	case "/copy":
		err = export.Clipboard(msgs)
	case "/save":
		path, err = export.File(msgs, &opts)
	case "/email":
		err = export.Email(msgs, &opts)
	case "/print":
		path, err = export.Print(msgs, &opts)
	}

	if err != nil {
		r.logger.Warn("export failed", "action", action, "error", err)
		fmt.Fprintln(r.out, ErrorStyle.Render("Could not "+strings.TrimPrefix(action, "/")+": "+err.Error()))
		return
	}
	switch action {
	case "/copy":
		fmt.Fprintln(r.out, SuccessStyle.Render("Conversation copied to the clipboard"))
	case "/email":
		fmt.Fprintln(r.out, SuccessStyle.Render("Opened an email draft"))
	default:
		fmt.Fprintln(r.out, SuccessStyle.Render("Saved to "+path))
	}
}

// =============================================================================
// OUTPUT
// =============================================================================

func (r *REPL) printWelcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("aidchat"))
	fmt.Fprintln(r.out, RenderSeparator(30))
	if n := r.ctrl.Conversation().Len(); n > 0 {
		fmt.Fprintln(r.out, DimStyle.Render(fmt.Sprintf("Continuing your conversation (%d messages). /history shows it, /reset starts over.", n)))
	}
	fmt.Fprintln(r.out, DimStyle.Render("Ask about housing, food, utility or medical help. Commands: /help, /quit"))
	fmt.Fprintln(r.out)
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, TitleStyle.Render("Available Commands"))
	fmt.Fprintln(r.out, RenderSeparator(20))
	for _, c := range replCommands {
		fmt.Fprintf(r.out, "  %s  %s\n", ChoiceStyle.Render(fmt.Sprintf("%-10s", c.name)), DimStyle.Render(c.desc))
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, DimStyle.Render("Tip: type a suggestion's number to send it. Ctrl+C stops a reply, Ctrl+D exits."))
	fmt.Fprintln(r.out)
}

// =============================================================================
// COMMAND HANDLER
// =============================================================================

// HandleChat runs line-mode chat on rt until the user quits or ctx ends.
func HandleChat(ctx context.Context, rt *Runtime, args Args) error {
	line := NewChatCLI(DefaultHistoryFile())
	defer line.Close()

	mdStyle := ""
	if rt.Config.UI.RenderMarkdown && IsStdoutTTY() && ColorsEnabled() {
		mdStyle = styles.NewTheme(rt.Config.UI.Theme).GlamourStyle()
	}

	repl := NewREPL(REPLConfig{
		Controller:    rt.Controller,
		In:            line,
		Out:           os.Stdout,
		MarkdownStyle: mdStyle,
		Width:         GetTerminalWidth(),
		Export:        export.DefaultOptions(),
		Stats:         rt.Stats,
		Quiet:         args.Quiet,
		Logger:        rt.Logger,
	})
	return repl.Run(ctx)
}
