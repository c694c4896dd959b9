package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"helpdesk-ai/internal/domain"
)

// Name is the handler name recorded in routing paths.
const Name = "Workflow"

const auditAgent = "WorkflowAgent"

// Outcome is the audit action for one Execute branch.
type Outcome string

const (
	OutcomeNoMatch  Outcome = "no_tool_match"
	OutcomeApproval Outcome = "approval_requested"
	OutcomeExecuted Outcome = "tool_executed"
	OutcomeError    Outcome = "tool_error"
)

// Confidence per outcome.
const (
	NoMatchConfidence  = 0.4
	ApprovalConfidence = 0.95
	ExecutedConfidence = 0.85
	ErrorConfidence    = 0.3
)

const noMatchMessage = "I couldn't match your request to a specific workflow tool. I've noted this for the engineering team."

// Result is the outcome of Execute.
type Result struct {
	Response         string
	Confidence       float64
	RequiresApproval bool
	ApprovalAction   string
	ApprovalArgs     map[string]string
	Outcome          Outcome
	Op               OpKind
	Args             Args
	Reasoning        string
	Err              error
}

// Option configures a Handler.
type Option func(*Handler)

// WithChains replaces the built-in follow-up chains.
func WithChains(chains []Chain) Option {
	return func(h *Handler) { h.chains = chains }
}

// WithTimeout bounds each backend call.
func WithTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// Handler is the Workflow handler.
type Handler struct {
	ops      domain.ITOps
	selector ToolSelector
	policy   *ApprovalPolicy
	chains   []Chain
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Workflow handler. A nil selector uses the keyword table; a
// nil policy applies built-in sensitivity only.
func New(ops domain.ITOps, selector ToolSelector, policy *ApprovalPolicy, logger *slog.Logger, opts ...Option) *Handler {
	if selector == nil {
		selector = KeywordSelector{}
	}
	h := &Handler{
		ops:      ops,
		selector: selector,
		policy:   policy,
		chains:   DefaultChains(),
		timeout:  10 * time.Second,
		logger:   logger,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Execute selects one operation for query and runs it, or defers it for
// approval when it is sensitive.
func (h *Handler) Execute(ctx context.Context, query, userID string) Result {
	sel, err := h.selector.Select(ctx, query, userID)
	if err != nil {
		h.logger.Warn("tool selection failed", "error", err)
		sel = Selection{}
	}
	if sel.Op == "" {
		return Result{Response: noMatchMessage, Confidence: NoMatchConfidence, Outcome: OutcomeNoMatch, Reasoning: sel.Reasoning}
	}

	res := Result{Op: sel.Op, Args: sel.Args, Reasoning: sel.Reasoning}
	op, err := Lookup(sel.Op)
	if err != nil {
		return h.failed(res, err)
	}
	if res.Args == nil {
		res.Args = Args{}
	}
	if op.NeedsUser() && res.Args.String("user_id") == "" {
		res.Args["user_id"] = userID
	}
	h.logger.Info("workflow selection", "op", sel.Op, "reasoning", sel.Reasoning)

	if h.policy.Denied(sel.Op) {
		return h.failed(res, domain.NewDomainError("workflow.Execute", domain.ErrOperationFailed,
			fmt.Sprintf("%s is blocked by policy", sel.Op)))
	}

	// Sensitive requests defer before validation so malformed arguments
	// still reach an approver. RunApproved validates them.
	if h.policy.NeedsApproval(sel.Op, res.Args) {
		res.RequiresApproval = true
		res.ApprovalAction = string(sel.Op)
		res.ApprovalArgs = res.Args.Strings()
		res.Confidence = ApprovalConfidence
		res.Outcome = OutcomeApproval
		res.Response = fmt.Sprintf("⚠️ Approval required: `%s` is a sensitive operation (%s). "+
			"A human approver must confirm it before it runs.", sel.Op, formatArgs(res.ApprovalArgs))
		return res
	}
	if err := op.Validate(res.Args); err != nil {
		return h.failed(res, err)
	}

	runCtx := ctx
	if h.policy.PreApproved(sel.Op) {
		runCtx = domain.WithApproval(ctx)
	}
	out, err := h.run(runCtx, sel.Op, res.Args)
	if err != nil {
		return h.failed(res, err)
	}

	steps := []string{fmt.Sprintf("Executing: `%s`...", sel.Op), "**Result**: " + out}
	steps = append(steps, h.followUps(ctx, sel.Op, out, res.Args)...)

	res.Response = strings.Join(steps, "\n")
	res.Confidence = ExecutedConfidence
	res.Outcome = OutcomeExecuted
	return res
}

// Handle runs Execute for the newest message in state.
func (h *Handler) Handle(ctx context.Context, state domain.ConversationState, _ domain.UserContext) domain.HandlerResult {
	res := h.Execute(ctx, state.LastMessage(), state.UserID)

	details := map[string]any{"confidence": res.Confidence}
	if res.Op != "" {
		details["tool"] = string(res.Op)
		details["args"] = res.Args.Strings()
	}
	if res.Err != nil {
		details["error"] = res.Err.Error()
	}
	return domain.HandlerResult{
		Agent:            Name,
		Response:         res.Response,
		Confidence:       res.Confidence,
		RequiresApproval: res.RequiresApproval,
		ApprovalAction:   res.ApprovalAction,
		ApprovalArgs:     res.ApprovalArgs,
		Audit:            []domain.AuditRecord{domain.NewAuditRecord(auditAgent, string(res.Outcome), state.UserID, details)},
	}
}

// RunApproved executes a previously deferred operation after a human
// approved it. Chains run as they would for a direct execution.
func (h *Handler) RunApproved(ctx context.Context, action string, flat map[string]string, userID string) (string, error) {
	kind, err := ParseOpKind(action)
	if err != nil {
		return "", err
	}
	if kind == "" {
		return "", domain.NewDomainError("workflow.RunApproved", domain.ErrUnknownOperation, action)
	}
	op, err := Lookup(kind)
	if err != nil {
		return "", err
	}
	if h.policy.Denied(kind) {
		return "", domain.NewDomainError("workflow.RunApproved", domain.ErrOperationFailed,
			fmt.Sprintf("%s is blocked by policy", kind))
	}

	args := op.Restore(flat)
	if op.NeedsUser() && args.String("user_id") == "" {
		args["user_id"] = userID
	}
	if err := op.Validate(args); err != nil {
		return "", err
	}

	out, err := h.run(domain.WithApproval(ctx), kind, args)
	if err != nil {
		return "", err
	}
	steps := append([]string{out}, h.followUps(ctx, kind, out, args)...)
	return strings.Join(steps, "\n"), nil
}

func (h *Handler) followUps(ctx context.Context, kind OpKind, result string, args Args) []string {
	var steps []string
	for _, c := range h.chains {
		if c.Trigger != kind || c.When == nil || !c.When(result) {
			continue
		}
		next, err := Lookup(c.Then)
		if err != nil {
			continue
		}
		nextArgs := Args{}
		if next.NeedsUser() {
			nextArgs["user_id"] = args.String("user_id")
		}
		if c.Note != "" {
			steps = append(steps, c.Note)
		}
		out, err := h.run(ctx, c.Then, nextArgs)
		if err != nil {
			h.logger.Warn("workflow follow-up failed", "op", c.Then, "error", err)
			steps = append(steps, fmt.Sprintf("Follow-up `%s` failed: %v", c.Then, err))
			continue
		}
		steps = append(steps, "Follow-up: "+out)
	}
	return steps
}

func (h *Handler) failed(res Result, err error) Result {
	h.logger.Warn("workflow operation failed", "op", res.Op, "error", err)
	res.Err = err
	res.Confidence = ErrorConfidence
	res.Outcome = OutcomeError
	res.Response = fmt.Sprintf("Executing: `%s`...\nError executing tool: %v", res.Op, err)
	return res
}

// run dispatches one operation to the backend.
func (h *Handler) run(ctx context.Context, kind OpKind, args Args) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	user := args.String("user_id")
	switch kind {
	case OpCheckVPNStatus:
		return h.ops.CheckVPNStatus(ctx, user)
	case OpUnlockAccount:
		return h.ops.UnlockAccount(ctx, user)
	case OpProvisionLicense:
		software := args.String("software_name")
		ok, err := h.ops.CheckLicenseAvailability(ctx, software)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", domain.NewDomainError("workflow.provision_license", domain.ErrOperationFailed,
				fmt.Sprintf("no %s licenses available", software))
		}
		key, err := h.ops.ProvisionLicense(ctx, user, software)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("License for %s provisioned to %s. Key: %s", software, user, key), nil
	case OpResetMFA:
		return h.ops.ResetMFA(ctx, user)
	case OpOnboardUser:
		return h.ops.OnboardUser(ctx, args.String("name"), args.String("department"))
	case OpOffboardUser:
		return h.ops.OffboardUser(ctx, user)
	case OpGrantTempAdmin:
		return h.ops.GrantTempAdmin(ctx, user, args.Int("duration_hours"))
	case OpCheckHardwareEligibility:
		return h.ops.CheckHardwareEligibility(ctx, user)
	case OpOrderPeripheral:
		return h.ops.OrderPeripheral(ctx, user, args.String("item"))
	case OpRebootServer:
		return h.ops.RebootServer(ctx, args.String("server_id"))
	case OpSubmitFacilityRequest:
		return h.ops.SubmitFacilityRequest(ctx, args.String("location"), args.String("issue"))
	}
	return "", domain.NewDomainError("workflow.run", domain.ErrUnknownOperation, string(kind))
}

func formatArgs(args map[string]string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + args[k]
	}
	return strings.Join(parts, ", ")
}
