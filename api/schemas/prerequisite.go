package schemas

// PrerequisiteVerdict is the pure outcome of checking a capability against an
// environment snapshot.
type PrerequisiteVerdict struct {
	Satisfied  bool   `json:"satisfied"`
	Reason     string `json:"reason,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	// Resolvable is true when another action (open, focus) could satisfy the gap.
	Resolvable bool `json:"resolvable,omitempty"`
}

// UnsatisfiedPrerequisite records a gap found while validating a multi-action chain.
type UnsatisfiedPrerequisite struct {
	ActionID     string `json:"action_id"`
	CapabilityID string `json:"capability_id"`
	Reason       string `json:"reason"`
	Suggestion   string `json:"suggestion,omitempty"`
	Resolvable   bool   `json:"resolvable"`
}
