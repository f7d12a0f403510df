package forward

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ido2103/openclaw/internal/transport"
)

// Rich payload colors per outcome.
const (
	colorAllowOnce   = 0x2ECC71 // green
	colorAllowAlways = 0x1ABC9C // teal
	colorDeny        = 0xE74C3C // red
	colorExpired     = 0x95A5A6 // gray
	colorPending     = 0xF1C40F // amber
)

// Callback data carried by the approve/deny buttons. The channel adapter
// parses this back into a Resolution on button press.
const callbackPrefix = "apv"

func callbackData(id string, d Decision) string {
	return strings.Join([]string{callbackPrefix, id, string(d)}, "|")
}

// ParseCallback decodes button callback data produced by callbackData.
func ParseCallback(data string) (id string, d Decision, ok bool) {
	parts := strings.Split(data, "|")
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[1] == "" {
		return "", "", false
	}
	switch Decision(parts[2]) {
	case DecisionAllowOnce, DecisionAllowAlways, DecisionDeny:
		return parts[1], Decision(parts[2]), true
	}
	return "", "", false
}

// decisionLabel maps a decision to its human label. Anything outside the
// closed set reads as a denial.
func decisionLabel(d Decision) string {
	switch d {
	case DecisionAllowOnce:
		return "allowed once"
	case DecisionAllowAlways:
		return "allowed always"
	default:
		return "denied"
	}
}

func decisionColor(d Decision) int {
	switch d {
	case DecisionAllowOnce:
		return colorAllowOnce
	case DecisionAllowAlways:
		return colorAllowAlways
	default:
		return colorDeny
	}
}

// renderCommand renders the command for the plain-text body. Multi-line
// commands, and commands containing a triple-backtick run, go in a fence
// long enough that no backtick run inside can terminate it early;
// single-line backtick-free commands render as inline code.
func renderCommand(cmd string) string {
	if !strings.Contains(cmd, "\n") && !strings.Contains(cmd, "```") {
		return "`" + cmd + "`"
	}
	fence := strings.Repeat("`", maxBacktickRun(cmd)+1)
	if len(fence) < 3 {
		fence = "```"
	}
	return fence + "\n" + cmd + "\n" + fence
}

func maxBacktickRun(s string) int {
	best, run := 0, 0
	for _, r := range s {
		if r == '`' {
			run++
			if run > best {
				best = run
			}
		} else {
			run = 0
		}
	}
	return best
}

// expiresInSeconds computes the "expires in N seconds" figure, clamped at
// zero for requests that are already past their deadline.
func expiresInSeconds(req Request, now time.Time) int64 {
	n := int64(math.Round(float64(req.ExpiresAtMs-now.UnixMilli()) / 1000.0))
	if n < 0 {
		n = 0
	}
	return n
}

// formatRequested renders the initial notification.
func formatRequested(req Request, now time.Time) (string, *transport.Rich) {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval required (id: %s)\n", req.ID)
	b.WriteString(renderCommand(req.Command))
	b.WriteString("\n")
	writeIfSet(&b, "Cwd", req.Cwd)
	writeIfSet(&b, "Host", req.Host)
	writeIfSet(&b, "Agent", req.Agent)
	writeIfSet(&b, "Tier", req.Tier)
	writeIfSet(&b, "Ask", req.Ask)
	fmt.Fprintf(&b, "Expires in %d seconds.\n", expiresInSeconds(req, now))
	b.WriteString("Approve or deny below, or reply /approve " + req.ID + " | /deny " + req.ID + ".")
	text := b.String()

	rich := &transport.Rich{
		Title:  "Approval required",
		Body:   renderCommand(req.Command),
		Color:  colorPending,
		Footer: fmt.Sprintf("id: %s · expires in %ds", req.ID, expiresInSeconds(req, now)),
		Buttons: []transport.Button{
			{Label: "Allow once", Data: callbackData(req.ID, DecisionAllowOnce)},
			{Label: "Always allow", Data: callbackData(req.ID, DecisionAllowAlways)},
			{Label: "Deny", Data: callbackData(req.ID, DecisionDeny)},
		},
	}
	for _, f := range []struct{ name, val string }{
		{"Cwd", req.Cwd}, {"Host", req.Host}, {"Agent", req.Agent}, {"Tier", req.Tier}, {"Ask", req.Ask},
	} {
		if f.val != "" {
			rich.Fields = append(rich.Fields, transport.Field{Name: f.name, Value: f.val, Inline: true})
		}
	}
	return text, rich
}

// formatResolved renders the terminal notification for a resolution.
func formatResolved(res Resolution) (string, *transport.Rich) {
	var b strings.Builder
	b.WriteString("Approval " + decisionLabel(res.Decision) + ".")
	if res.ResolvedBy != "" {
		b.WriteString(" Resolved by " + res.ResolvedBy + ".")
	}
	b.WriteString(" (id: " + res.ID + ")")

	footer := "Resolved"
	if res.ResolvedBy != "" {
		footer = "Resolved by " + res.ResolvedBy
	}
	rich := &transport.Rich{
		Title:  "Approval " + decisionLabel(res.Decision),
		Color:  decisionColor(res.Decision),
		Footer: footer,
	}
	return b.String(), rich
}

// formatExpired renders the terminal notification for a timed-out request.
func formatExpired(req Request) (string, *transport.Rich) {
	text := "Expired: approval request was not resolved in time. (id: " + req.ID + ")"
	rich := &transport.Rich{
		Title:  "Approval expired",
		Color:  colorExpired,
		Footer: "Expired",
	}
	return text, rich
}

func writeIfSet(b *strings.Builder, name, val string) {
	if val != "" {
		b.WriteString(name + ": " + val + "\n")
	}
}
