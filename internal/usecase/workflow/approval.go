package workflow

// ApprovalPolicy decides which operations wait for a human. Built-in
// sensitivity applies unless the operator lists the op explicitly.
type ApprovalPolicy struct {
	alwaysApprove map[OpKind]bool
	alwaysDeny    map[OpKind]bool
}

// NewApprovalPolicy builds a policy from allow/deny lists of op names.
// Unknown names are ignored.
func NewApprovalPolicy(approve, deny []string) *ApprovalPolicy {
	p := &ApprovalPolicy{
		alwaysApprove: make(map[OpKind]bool, len(approve)),
		alwaysDeny:    make(map[OpKind]bool, len(deny)),
	}
	for _, name := range approve {
		if k, err := ParseOpKind(name); err == nil && k != "" {
			p.alwaysApprove[k] = true
		}
	}
	for _, name := range deny {
		if k, err := ParseOpKind(name); err == nil && k != "" {
			p.alwaysDeny[k] = true
		}
	}
	return p
}

// Denied reports whether kind may never run.
func (p *ApprovalPolicy) Denied(kind OpKind) bool {
	return p != nil && p.alwaysDeny[kind]
}

// PreApproved reports whether kind runs without asking even when sensitive.
func (p *ApprovalPolicy) PreApproved(kind OpKind) bool {
	return p != nil && p.alwaysApprove[kind]
}

// NeedsApproval reports whether running kind with args must wait.
func (p *ApprovalPolicy) NeedsApproval(kind OpKind, args Args) bool {
	if p.PreApproved(kind) {
		return false
	}
	return IsSensitive(kind, args)
}
