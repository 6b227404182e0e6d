// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/aidchat/internal/model"
)

// PERFORMANCE: compiled once
var (
	codeBlockRegex  = regexp.MustCompile("```([a-zA-Z0-9_+-]*)\n([\\s\\S]*?)```")
	inlineCodeRegex = regexp.MustCompile("`([^`]+)`")
	boldRegex       = regexp.MustCompile(`\*\*([^*\n]+)\*\*`)
)

// =============================================================================
// PRINT EXPORTER
// =============================================================================

// PrintExporter renders a standalone HTML page laid out for paper. The page
// opens the browser's print dialog once it has loaded.
type PrintExporter struct {
	options *Options
}

// NewPrintExporter creates a new print exporter.
func NewPrintExporter(opts *Options) *PrintExporter {
	return &PrintExporter{options: opts.withDefaults()}
}

// Export converts messages to a print-ready HTML document.
func (e *PrintExporter) Export(msgs []*model.Message) ([]byte, error) {
	if len(msgs) == 0 {
		return nil, ErrEmpty
	}

	now := e.options.Now()
	title := html.EscapeString(e.options.Title)
	var sb strings.Builder

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("    <meta charset=\"UTF-8\">\n")
	sb.WriteString("    <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("    <title>%s</title>\n", title))
	sb.WriteString("    <meta name=\"generator\" content=\"aidchat\">\n")
	sb.WriteString(fmt.Sprintf("    <meta name=\"date\" content=\"%s\">\n", now.Format(time.RFC3339)))
	sb.WriteString(printCSS)
	sb.WriteString("</head>\n")
	sb.WriteString("<body>\n")

	sb.WriteString("    <header>\n")
	sb.WriteString(fmt.Sprintf("        <h1>%s</h1>\n", title))
	sb.WriteString(fmt.Sprintf("        <p class=\"meta\">%d messages &middot; printed %s</p>\n", len(msgs), formatTimestamp(now)))
	sb.WriteString("    </header>\n")

	sb.WriteString("    <main>\n")
	for _, msg := range msgs {
		sb.WriteString(e.renderMessage(msg))
	}
	sb.WriteString("    </main>\n")

	sb.WriteString(printScript)
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	return []byte(sb.String()), nil
}

func (e *PrintExporter) FileExtension() string { return ".html" }

func (e *PrintExporter) MimeType() string { return "text/html" }

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *PrintExporter) renderMessage(msg *model.Message) string {
	var sb strings.Builder

	class := "message " + html.EscapeString(msg.Role.String())
	if msg.HasError {
		class += " error"
	}
	sb.WriteString(fmt.Sprintf("        <section class=\"%s\">\n", class))
	sb.WriteString("            <div class=\"message-header\">\n")
	sb.WriteString(fmt.Sprintf("                <span class=\"role\">%s</span>\n", html.EscapeString(msg.Role.DisplayName())))
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		sb.WriteString(fmt.Sprintf("                <span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Timestamp)))
	}
	sb.WriteString("            </div>\n")

	sb.WriteString("            <div class=\"content\">\n")
	sb.WriteString(formatContent(msg.Text))
	sb.WriteString("\n            </div>\n")

	if cites := msg.DisplayCitations(); len(cites) > 0 {
		sb.WriteString("            <div class=\"sources\"><strong>Sources</strong>\n                <ol>\n")
		for _, c := range cites {
			label := html.EscapeString(c.Label())
			if safeLink(c.URI) {
				sb.WriteString(fmt.Sprintf("                    <li><a href=\"%s\">%s</a> <span class=\"uri\">%s</span></li>\n",
					html.EscapeString(c.URI), label, html.EscapeString(c.URI)))
			} else {
				sb.WriteString(fmt.Sprintf("                    <li>%s <span class=\"uri\">%s</span></li>\n", label, html.EscapeString(c.URI)))
			}
		}
		sb.WriteString("                </ol>\n            </div>\n")
	}

	sb.WriteString("        </section>\n")
	return sb.String()
}

// SECURITY: only http(s) sources become links; anything else prints as text
func safeLink(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// formatContent escapes the text and renders fenced code, inline code, bold
// spans and paragraphs.
func formatContent(content string) string {
	content = html.EscapeString(content)

	content = codeBlockRegex.ReplaceAllStringFunc(content, func(match string) string {
		parts := codeBlockRegex.FindStringSubmatch(match)
		if len(parts) != 3 {
			return match
		}
		return fmt.Sprintf("<pre><code>%s</code></pre>", strings.TrimSpace(parts[2]))
	})
	content = inlineCodeRegex.ReplaceAllString(content, "<code>$1</code>")
	content = boldRegex.ReplaceAllString(content, "<strong>$1</strong>")

	var formatted []string
	inParagraph := false
	inPre := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if inPre || strings.HasPrefix(trimmed, "<pre>") {
			if inParagraph {
				formatted = append(formatted, "</p>")
				inParagraph = false
			}
			formatted = append(formatted, line)
			inPre = !strings.Contains(trimmed, "</pre>")
			continue
		}

		switch {
		case trimmed == "":
			if inParagraph {
				formatted = append(formatted, "</p>")
				inParagraph = false
			}
		case !inParagraph:
			formatted = append(formatted, "<p>"+trimmed)
			inParagraph = true
		default:
			formatted = append(formatted, "<br>"+trimmed)
		}
	}
	if inParagraph {
		formatted = append(formatted, "</p>")
	}

	return strings.Join(formatted, "\n")
}

// =============================================================================
// EMBEDDED CSS AND SCRIPT
// =============================================================================

const printCSS = `    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        body {
            font-family: Georgia, "Times New Roman", serif;
            font-size: 12pt;
            line-height: 1.5;
            color: #111;
            background: #fff;
            max-width: 720px;
            margin: 0 auto;
            padding: 32px 24px;
        }

        header { border-bottom: 2px solid #111; margin-bottom: 24px; padding-bottom: 8px; }
        h1 { font-size: 20pt; }
        .meta { color: #555; font-size: 10pt; }

        .message { padding: 12px 0; border-bottom: 1px solid #ccc; page-break-inside: avoid; }
        .message-header { display: flex; justify-content: space-between; margin-bottom: 6px; }
        .role { font-weight: bold; text-transform: uppercase; font-size: 10pt; letter-spacing: 0.05em; }
        .user .role { color: #1a4d8f; }
        .assistant .role { color: #2d6a2d; }
        .error .content { color: #8a1c1c; font-style: italic; }
        .timestamp { color: #777; font-size: 9pt; }

        .content p { margin-bottom: 8px; }
        pre { background: #f4f4f4; border: 1px solid #ddd; padding: 8px; font-size: 10pt; white-space: pre-wrap; margin: 8px 0; }
        code { font-family: "Courier New", monospace; }

        .sources { font-size: 10pt; margin-top: 8px; }
        .sources ol { margin-left: 20px; }
        .uri { color: #555; word-break: break-all; }
        a { color: inherit; }

        @media print {
            body { padding: 0; max-width: none; }
            a { text-decoration: none; }
        }
    </style>
`

const printScript = `    <script>
        window.addEventListener('load', function () { window.print(); });
    </script>
`
