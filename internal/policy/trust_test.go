package policy

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func TestEvaluateTrustedData_AllTrustedEmails(t *testing.T) {
	policies := []TrustedDataPolicy{
		{AttributePath: "emails[*].from", Operator: OpEndsWith, Value: "@archestra.ai", Description: "archestra emails"},
	}
	result := decode(t, `{"emails":[{"from":"a@archestra.ai"},{"from":"b@archestra.ai"}]}`)

	got := EvaluateTrustedData(policies, result, nil)
	if !got.IsTrusted {
		t.Fatalf("expected trusted, reason %q", got.Reason)
	}
	if got.ShouldSanitizeWithDualLLM {
		t.Error("trusted result should not be routed to sanitisation")
	}
}

func TestEvaluateTrustedData_OneUntrustedEmailUntrustsWhole(t *testing.T) {
	policies := []TrustedDataPolicy{
		{AttributePath: "emails[*].from", Operator: OpEndsWith, Value: "@archestra.ai"},
	}
	result := decode(t, `{"emails":[{"from":"a@archestra.ai"},{"from":"c@evil.com"}]}`)

	got := EvaluateTrustedData(policies, result, nil)
	if got.IsTrusted {
		t.Fatal("expected untrusted")
	}
	if !got.ShouldSanitizeWithDualLLM {
		t.Error("expected untrusted result to require dual-LLM sanitisation")
	}
	if got.Reason != noPolicyMatchedReason {
		t.Errorf("unexpected reason: %q", got.Reason)
	}
}

func TestEvaluateTrustedData_ZeroLeavesNeverMatches(t *testing.T) {
	policies := []TrustedDataPolicy{
		{AttributePath: "missing[*].from", Operator: OpEndsWith, Value: "@archestra.ai"},
	}
	result := decode(t, `{"emails":[]}`)

	got := EvaluateTrustedData(policies, result, nil)
	if got.IsTrusted {
		t.Fatal("a policy with zero matched leaves must not trust the result")
	}
}

func TestEvaluateTrustedData_MonotonicityAddingPoliciesCannotUntrust(t *testing.T) {
	result := decode(t, `{"path":"/safe/file.txt"}`)
	first := EvaluateTrustedData([]TrustedDataPolicy{
		{AttributePath: "path", Operator: OpStartsWith, Value: "/safe/"},
	}, result, nil)
	second := EvaluateTrustedData([]TrustedDataPolicy{
		{AttributePath: "path", Operator: OpStartsWith, Value: "/safe/"},
		{AttributePath: "path", Operator: OpEqual, Value: `"never-matches"`},
	}, result, nil)

	if !first.IsTrusted || !second.IsTrusted {
		t.Fatalf("expected both trusted, got first=%v second=%v", first.IsTrusted, second.IsTrusted)
	}
}
