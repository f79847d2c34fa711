// Package policy implements the pure, store-independent evaluation rules
// shared by the tool-invocation and trusted-data guardrails: the operator
// truth table, the JSON path extractor, and the two ordered-policy walks
// built on top of them.
package policy

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Operator is one of the closed set of predicates a policy row may use.
type Operator string

const (
	OpEqual       Operator = "equal"
	OpNotEqual    Operator = "notEqual"
	OpContains    Operator = "contains"
	OpNotContains Operator = "notContains"
	OpStartsWith  Operator = "startsWith"
	OpEndsWith    Operator = "endsWith"
	OpRegex       Operator = "regex"
)

// Evaluate applies op to (left, right) per the truth table in §4.A.
// Non-string left operands under string operators evaluate to false,
// never an error. A regex that fails to compile is treated as a
// non-match and logged, not a failure — the caller's policy is skipped.
func Evaluate(op Operator, left any, right string, logger *zap.Logger) bool {
	switch op {
	case OpEqual:
		return jsonEqual(left, right)
	case OpNotEqual:
		return !jsonEqual(left, right)
	case OpContains:
		s, ok := left.(string)
		return ok && strings.Contains(s, right)
	case OpNotContains:
		s, ok := left.(string)
		return ok && !strings.Contains(s, right)
	case OpStartsWith:
		s, ok := left.(string)
		return ok && strings.HasPrefix(s, right)
	case OpEndsWith:
		s, ok := left.(string)
		return ok && strings.HasSuffix(s, right)
	case OpRegex:
		s, ok := left.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(right)
		if err != nil {
			if logger != nil {
				logger.Warn("policy regex failed to compile, skipping", zap.String("pattern", right), zap.Error(err))
			}
			return false
		}
		return re.MatchString(s)
	default:
		return false
	}
}

// jsonEqual compares left (an already-decoded JSON value) against right
// (the policy's literal string value) by structural JSON equality: right
// is parsed as JSON first, falling back to a plain string compare when it
// doesn't parse, so policy rows can write either `"foo"` or `foo` as the
// value for a string-typed argument.
func jsonEqual(left any, right string) bool {
	var rightVal any
	if err := json.Unmarshal([]byte(right), &rightVal); err != nil {
		rightVal = right
	}
	leftJSON, err1 := json.Marshal(left)
	rightJSON, err2 := json.Marshal(rightVal)
	if err1 != nil || err2 != nil {
		return false
	}
	return string(leftJSON) == string(rightJSON)
}
