package models

import "strings"

// AssigneeKind distinguishes the two disjoint identifier spaces an
// assignee can come from.
type AssigneeKind int

const (
	// AssigneeAnalyst is a human-readable analyst name (analista).
	AssigneeAnalyst AssigneeKind = iota
	// AssigneeUser is a system-user email (usuario_proponente).
	AssigneeUser
)

// AssigneeRef is a tagged reference to the person responsible for
// collecting on a loan. The kind decides which ledger column the
// reference is written to.
type AssigneeRef struct {
	Kind  AssigneeKind
	Value string
}

// ParseAssignee classifies a raw assignee identifier: anything with an
// "@" is a system-user email, anything else an analyst name. Blank input
// yields ok=false.
func ParseAssignee(raw string) (AssigneeRef, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return AssigneeRef{}, false
	}
	if strings.Contains(trimmed, "@") {
		return AssigneeRef{Kind: AssigneeUser, Value: trimmed}, true
	}
	return AssigneeRef{Kind: AssigneeAnalyst, Value: trimmed}, true
}
