package workflow

// Chain is a follow-up step: after Trigger runs and When accepts its
// result, Then runs for the same user within the same turn.
type Chain struct {
	Trigger OpKind
	When    func(result string) bool
	Then    OpKind
	// Note is shown before the follow-up result.
	Note string
}

// DefaultChains are the built-in follow-ups.
func DefaultChains() []Chain {
	return []Chain{
		{
			Trigger: OpCheckVPNStatus,
			When:    func(result string) bool { return result == "Account Locked" },
			Then:    OpUnlockAccount,
			Note:    "Detected locked account. Auto-remediating...",
		},
	}
}
