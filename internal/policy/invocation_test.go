package policy

import "testing"

func TestEvaluateToolInvocation_BlockBySuffix(t *testing.T) {
	policies := []ToolInvocationPolicy{
		{
			ArgumentName: "to",
			Operator:     OpEndsWith,
			Value:        "@grafana.com",
			Action:       ActionBlock,
			Description:  "no emails to grafana.com",
		},
	}

	got := EvaluateToolInvocation(policies, map[string]any{"to": "x@grafana.com", "body": "hi"}, nil)
	if got.IsAllowed {
		t.Fatal("expected deny")
	}
	if got.DenyReason != "Policy violation: no emails to grafana.com" {
		t.Errorf("unexpected deny reason: %q", got.DenyReason)
	}
}

func TestEvaluateToolInvocation_AllowGateMissingArg(t *testing.T) {
	policies := []ToolInvocationPolicy{
		{
			ArgumentName: "path",
			Operator:     OpStartsWith,
			Value:        "/home/",
			Action:       ActionAllow,
		},
	}

	got := EvaluateToolInvocation(policies, map[string]any{}, nil)
	if got.IsAllowed {
		t.Fatal("expected deny")
	}
	if got.DenyReason != "Missing required argument: path" {
		t.Errorf("unexpected deny reason: %q", got.DenyReason)
	}
}

func TestEvaluateToolInvocation_BlockSkippedOnAbsentArg(t *testing.T) {
	policies := []ToolInvocationPolicy{
		{ArgumentName: "to", Operator: OpEndsWith, Value: "@grafana.com", Action: ActionBlock},
	}

	got := EvaluateToolInvocation(policies, map[string]any{"body": "hi"}, nil)
	if !got.IsAllowed {
		t.Fatalf("expected allow, got deny reason %q", got.DenyReason)
	}
}

func TestEvaluateToolInvocation_AllowPassesWhenMatched(t *testing.T) {
	policies := []ToolInvocationPolicy{
		{ArgumentName: "path", Operator: OpStartsWith, Value: "/home/", Action: ActionAllow},
	}

	got := EvaluateToolInvocation(policies, map[string]any{"path": "/home/user/file.txt"}, nil)
	if !got.IsAllowed {
		t.Fatalf("expected allow, got deny reason %q", got.DenyReason)
	}
}

func TestEvaluateToolInvocation_BlockPromptOverridesDescription(t *testing.T) {
	policies := []ToolInvocationPolicy{
		{
			ArgumentName: "to",
			Operator:     OpEndsWith,
			Value:        "@grafana.com",
			Action:       ActionBlock,
			Description:  "desc",
			BlockPrompt:  "custom deny message",
		},
	}

	got := EvaluateToolInvocation(policies, map[string]any{"to": "x@grafana.com"}, nil)
	if got.DenyReason != "custom deny message" {
		t.Errorf("expected custom deny message, got %q", got.DenyReason)
	}
}

func TestEvaluateToolInvocation_FirstDenialWins(t *testing.T) {
	policies := []ToolInvocationPolicy{
		{ArgumentName: "to", Operator: OpEndsWith, Value: "@grafana.com", Action: ActionBlock, BlockPrompt: "first"},
		{ArgumentName: "to", Operator: OpContains, Value: "grafana", Action: ActionBlock, BlockPrompt: "second"},
	}

	got := EvaluateToolInvocation(policies, map[string]any{"to": "x@grafana.com"}, nil)
	if got.DenyReason != "first" {
		t.Errorf("expected first policy's reason to win, got %q", got.DenyReason)
	}
}
