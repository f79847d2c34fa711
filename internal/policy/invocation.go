package policy

import (
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
)

// Action is what a ToolInvocationPolicy does when it matches.
type Action string

const (
	ActionAllow Action = "allow"
	ActionBlock Action = "block"
)

// ToolInvocationPolicy mirrors the `tool_invocation_policies` row.
type ToolInvocationPolicy struct {
	ID           string
	ToolID       string
	Description  string
	ArgumentName string
	Operator     Operator
	Value        string
	Action       Action
	BlockPrompt  string
	CreatedAt    time.Time
}

// InvocationResult is the output of §4.D.
type InvocationResult struct {
	IsAllowed  bool
	DenyReason string
}

// EvaluateToolInvocation walks policies in the order given (callers are
// responsible for supplying a stable ordering — by CreatedAt ascending
// then ID, per §4.D) and returns the first denial, or allow if none fire.
func EvaluateToolInvocation(policies []ToolInvocationPolicy, arguments map[string]any, logger *zap.Logger) InvocationResult {
	for _, p := range policies {
		// A regex policy whose pattern does not compile is skipped,
		// whatever its action.
		if p.Operator == OpRegex {
			if _, err := regexp.Compile(p.Value); err != nil {
				if logger != nil {
					logger.Warn("policy regex failed to compile, skipping", zap.String("pattern", p.Value), zap.Error(err))
				}
				continue
			}
		}

		leaves, err := ExtractPath(anyFromMap(arguments), p.ArgumentName)
		if err != nil {
			leaves = nil
		}

		if len(leaves) == 0 {
			if p.Action == ActionAllow {
				return InvocationResult{
					IsAllowed: false,
					DenyReason: fmt.Sprintf("Missing required argument: %s", p.ArgumentName),
				}
			}
			// action == block: a block rule cannot fire on an absent argument.
			continue
		}

		matched := Evaluate(p.Operator, leaves[0], p.Value, logger)

		switch p.Action {
		case ActionBlock:
			if matched {
				return InvocationResult{IsAllowed: false, DenyReason: denyReason(p)}
			}
		case ActionAllow:
			if !matched {
				return InvocationResult{IsAllowed: false, DenyReason: denyReason(p)}
			}
		}
	}
	return InvocationResult{IsAllowed: true}
}

func denyReason(p ToolInvocationPolicy) string {
	if p.BlockPrompt != "" {
		return p.BlockPrompt
	}
	return "Policy violation: " + p.Description
}

// anyFromMap lets ExtractPath's dotted-path machinery operate on argument
// maps the same way it does on decoded tool results; argument names are
// scalar-only (§4.B), so this is really just a type-widening no-op.
func anyFromMap(m map[string]any) any {
	return m
}
