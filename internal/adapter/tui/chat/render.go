package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"helpdesk-ai/internal/adapter/tui/theme"
	"helpdesk-ai/internal/usecase"
	"helpdesk-ai/internal/usecase/knowledge"
)

// Renderer formats desk replies for a terminal of a given width.
type Renderer struct {
	md    *glamour.TermRenderer
	width int
}

// NewRenderer builds a markdown renderer wrapping at width. If glamour
// cannot be initialised replies are printed as plain text.
func NewRenderer(width int) *Renderer {
	width = theme.Clamp(width, 20, theme.MaxContentWidth)
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		md = nil
	}
	return &Renderer{md: md, width: width}
}

// Width is the wrap width.
func (r *Renderer) Width() int { return r.width }

// Markdown renders s, falling back to s itself.
func (r *Renderer) Markdown(s string) string {
	if r.md == nil {
		return s
	}
	out, err := r.md.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

// Header is the one-line routing summary shown above a reply.
func Header(reply usecase.Reply) string {
	parts := []string{theme.Badge.Render(reply.Handler)}
	if len(reply.RoutingPath) > 0 {
		parts = append(parts, theme.TextMuted.Render(strings.Join(reply.RoutingPath, " "+theme.SymbolArrowR+" ")))
	}
	parts = append(parts, fmt.Sprintf("%s %.0f%%", knowledge.DefaultBands.Emoji(reply.Confidence), reply.Confidence*100))
	if reply.Urgency != "" {
		parts = append(parts, theme.UrgencyStyle(string(reply.Urgency)).Render(string(reply.Urgency)))
	}
	if reply.Ticket != nil {
		parts = append(parts, theme.TextInfo.Render("ticket "+reply.Ticket.Key))
	}
	if reply.Severity != "" {
		parts = append(parts, theme.TextError.Render(theme.SymbolWarning+" "+reply.Severity))
	}
	return strings.Join(parts, "  ")
}

// Reply renders a full reply: header, markdown body and the approval
// prompt when one is pending.
func (r *Renderer) Reply(reply usecase.Reply) string {
	var b strings.Builder
	b.WriteString(Header(reply))
	b.WriteString("\n")
	b.WriteString(r.Markdown(reply.Response))
	if reply.RequiresApproval {
		b.WriteString("\n")
		b.WriteString(theme.ApprovalBox.Render(fmt.Sprintf(
			"%s %s needs approval. An approver types /approve <their-id>, or /deny to cancel.",
			theme.SymbolWarning, reply.ApprovalAction,
		)))
	}
	return b.String()
}

// Metrics renders a metrics snapshot as a markdown table.
func (r *Renderer) Metrics(s usecase.MetricsSnapshot) string {
	var b strings.Builder
	b.WriteString("| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Requests | %d |\n", s.TotalRequests)
	fmt.Fprintf(&b, "| Automated | %d (%.0f%%) |\n", s.Automated, s.AutomationRate*100)
	fmt.Fprintf(&b, "| Escalated | %d |\n", s.Escalated)
	fmt.Fprintf(&b, "| Avg response | %s |\n", s.AvgResponseTime.Round(time.Millisecond))
	if s.Satisfaction >= 0 {
		fmt.Fprintf(&b, "| Satisfaction | %.0f%% (%d/%d) |\n", s.Satisfaction*100, s.PositiveRatings, s.PositiveRatings+s.NegativeRatings)
	} else {
		b.WriteString("| Satisfaction | no ratings |\n")
	}
	for _, h := range s.Handlers {
		fmt.Fprintf(&b, "| %s | %d |\n", h.Handler, h.Count)
	}
	return r.Markdown(b.String())
}
