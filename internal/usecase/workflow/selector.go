package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/usecase/llmjson"
)

// Selection is a selector's choice. An empty Op means no operation matched.
type Selection struct {
	Op        OpKind
	Args      Args
	Reasoning string
}

// ToolSelector picks at most one operation for a request.
type ToolSelector interface {
	Select(ctx context.Context, query, userID string) (Selection, error)
}

type keywordRule struct {
	words []string
	op    OpKind
}

// keywordTable is checked in order; the first rule with a hit wins.
var keywordTable = []keywordRule{
	{[]string{"vpn", "connect", "network"}, OpCheckVPNStatus},
	{[]string{"unlock", "locked"}, OpUnlockAccount},
	{[]string{"mfa", "2fa", "authenticator"}, OpResetMFA},
	{[]string{"license", "software", "install"}, OpProvisionLicense},
	{[]string{"laptop", "refresh", "upgrade", "old"}, OpCheckHardwareEligibility},
	{[]string{"mouse", "keyboard", "monitor", "peripheral", "order"}, OpOrderPeripheral},
	{[]string{"reboot", "server", "restart"}, OpRebootServer},
	{[]string{"onboard", "new hire"}, OpOnboardUser},
	{[]string{"offboard", "terminate", "disable", "leaving"}, OpOffboardUser},
	{[]string{"admin", "sudo", "elevated"}, OpGrantTempAdmin},
}

// KeywordSelector is the deterministic selector. It never fails.
type KeywordSelector struct{}

// Select implements ToolSelector.
func (KeywordSelector) Select(_ context.Context, query, userID string) (Selection, error) {
	q := strings.ToLower(query)
	for _, rule := range keywordTable {
		for _, w := range rule.words {
			if strings.Contains(q, w) {
				return Selection{
					Op:        rule.op,
					Args:      extractArgs(rule.op, query, userID),
					Reasoning: fmt.Sprintf("keyword %q", w),
				}, nil
			}
		}
	}
	return Selection{Reasoning: "no keyword matched"}, nil
}

// maxAdminHours caps a temporary admin grant.
const maxAdminHours = 72

var (
	userIDRe      = regexp.MustCompile(`\buser_[a-z0-9_]+\b`)
	hyphenTokenRe = regexp.MustCompile(`\b[a-z0-9]+(?:-[a-z0-9]+)+\b`)
	serverWordRe  = regexp.MustCompile(`\b([a-z0-9]+)\s+(?:server|box|host)\b`)
	hoursRe       = regexp.MustCompile(`\b(\d{1,3})\s*(?:h|hr|hrs|hour|hours)\b`)
	installRe     = regexp.MustCompile(`(?i)\b(?:install|license for|licence for|access to)\s+([a-z][\w.+]*(?:\s+pro)?)`)
	onboardNameRe = regexp.MustCompile(`\b(?:onboard|hire)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`)
	departmentRe  = regexp.MustCompile(`(?i)\b(?:in|to|for)\s+(engineering|sales|marketing|finance|hr|legal|it|operations|support|design)\b`)
)

var knownSoftware = []string{
	"photoshop", "office", "slack", "zoom", "visual studio", "intellij", "figma",
	"acrobat", "tableau", "jira", "matlab", "autocad",
}

var peripherals = []string{"monitor", "mouse", "keyboard", "headset", "webcam", "docking station", "dock"}

var serverWordSkip = map[string]bool{"the": true, "a": true, "my": true, "our": true, "this": true, "that": true}

// extractArgs pulls heuristic arguments for op out of the request text.
func extractArgs(op OpKind, query, userID string) Args {
	q := strings.ToLower(query)
	args := Args{}

	target := userID
	if m := userIDRe.FindString(q); m != "" {
		target = m
	}

	switch op {
	case OpRebootServer:
		args["server_id"] = serverID(q)
	case OpGrantTempAdmin:
		hours := 1
		if m := hoursRe.FindStringSubmatch(q); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				hours = min(n, maxAdminHours)
			}
		}
		args["user_id"] = target
		args["duration_hours"] = float64(hours)
	case OpOrderPeripheral:
		item := "peripheral"
		for _, p := range peripherals {
			if strings.Contains(q, p) {
				item = p
				break
			}
		}
		args["user_id"] = target
		args["item"] = item
	case OpProvisionLicense:
		args["user_id"] = target
		args["software_name"] = softwareName(query)
	case OpOnboardUser:
		name := "New Hire"
		if m := onboardNameRe.FindStringSubmatch(query); m != nil {
			name = m[1]
		}
		dept := "General"
		if m := departmentRe.FindStringSubmatch(query); m != nil {
			dept = strings.ToUpper(m[1][:1]) + strings.ToLower(m[1][1:])
		}
		args["name"] = name
		args["department"] = dept
	default:
		args["user_id"] = target
	}
	return args
}

func serverID(q string) string {
	for _, tok := range hyphenTokenRe.FindAllString(q, -1) {
		if strings.Contains(tok, "srv") || strings.Contains(tok, "server") ||
			strings.Contains(tok, "prod") || strings.Contains(tok, "dev") ||
			strings.Contains(tok, "db") || strings.Contains(tok, "web") {
			return tok
		}
	}
	if m := serverWordRe.FindStringSubmatch(q); m != nil && !serverWordSkip[m[1]] {
		return m[1] + "-server"
	}
	return "server-01"
}

func softwareName(query string) string {
	q := strings.ToLower(query)
	for _, s := range knownSoftware {
		if i := strings.Index(q, s); i >= 0 && len(q) == len(query) {
			name := query[i : i+len(s)]
			if strings.HasPrefix(q[i+len(s):], " pro") {
				name = query[i : i+len(s)+4]
			}
			return name
		}
	}
	if m := installRe.FindStringSubmatch(query); m != nil {
		return m[1]
	}
	return ""
}

const selectPrompt = `You are an AI Workflow Orchestrator. Select the appropriate tool to handle the user's request.

Available Tools:
%s

Return the tool name and arguments. If no tool matches, return "None" as the tool name.
Reply with a single JSON object: {"tool_name": "...", "arguments": {...}, "reasoning": "..."}`

var selectionSchema = llmjson.MustCompile(`{
	"type": "object",
	"required": ["tool_name"],
	"properties": {
		"tool_name": {"type": "string"},
		"arguments": {"type": ["object", "null"]},
		"reasoning": {"type": "string"}
	}
}`)

type selectionReply struct {
	ToolName  string `json:"tool_name"`
	Arguments Args   `json:"arguments"`
	Reasoning string `json:"reasoning"`
}

// LLMSelector asks a language model to choose the operation.
type LLMSelector struct {
	provider domain.LLMProvider
}

// NewLLMSelector creates a model-backed selector.
func NewLLMSelector(provider domain.LLMProvider) *LLMSelector {
	return &LLMSelector{provider: provider}
}

// Select implements ToolSelector. An unknown tool name is an error.
func (s *LLMSelector) Select(ctx context.Context, query, _ string) (Selection, error) {
	req := domain.Prompt(fmt.Sprintf(selectPrompt, Descriptions()), "User Message: "+query)
	req.JSONOutput = true
	resp, err := s.provider.Chat(ctx, req)
	if err != nil {
		return Selection{}, fmt.Errorf("select tool: %w", err)
	}

	var r selectionReply
	if err := llmjson.Decode(resp.Message.Content, selectionSchema, &r); err != nil {
		return Selection{}, fmt.Errorf("select tool: %w", err)
	}
	kind, err := ParseOpKind(r.ToolName)
	if err != nil {
		return Selection{}, fmt.Errorf("select tool: %w", err)
	}
	if r.Arguments == nil {
		r.Arguments = Args{}
	}
	return Selection{Op: kind, Args: r.Arguments, Reasoning: r.Reasoning}, nil
}

// FallbackSelector runs the primary under a timeout and switches to the
// keyword table when it fails.
type FallbackSelector struct {
	primary ToolSelector
	rules   KeywordSelector
	timeout time.Duration
	logger  *slog.Logger
}

// NewFallbackSelector wraps primary. A nil primary means keywords only.
func NewFallbackSelector(primary ToolSelector, timeout time.Duration, logger *slog.Logger) *FallbackSelector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &FallbackSelector{primary: primary, timeout: timeout, logger: logger}
}

// Select implements ToolSelector. It never fails.
func (f *FallbackSelector) Select(ctx context.Context, query, userID string) (Selection, error) {
	if f.primary != nil {
		cctx, cancel := context.WithTimeout(ctx, f.timeout)
		sel, err := f.primary.Select(cctx, query, userID)
		cancel()
		if err == nil {
			return sel, nil
		}
		f.logger.Warn("tool selection failed, using keyword table", "error", err)
	}
	return f.rules.Select(ctx, query, userID)
}
