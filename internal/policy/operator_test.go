package policy

import "testing"

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name  string
		op    Operator
		left  any
		right string
		want  bool
	}{
		{"equal match", OpEqual, "foo", `"foo"`, true},
		{"equal mismatch", OpEqual, "foo", `"bar"`, false},
		{"equal bare string value", OpEqual, "foo", "foo", true},
		{"notEqual match", OpNotEqual, "foo", `"bar"`, true},
		{"contains true", OpContains, "hello world", "world", true},
		{"contains non-string left", OpContains, 42, "4", false},
		{"notContains true", OpNotContains, "hello", "xyz", true},
		{"notContains false on match", OpNotContains, "hello", "ell", false},
		{"notContains non-string left", OpNotContains, 42, "4", false},
		{"startsWith true", OpStartsWith, "archestra.ai", "arch", true},
		{"endsWith true", OpEndsWith, "x@grafana.com", "@grafana.com", true},
		{"endsWith false", OpEndsWith, "x@good.com", "@grafana.com", false},
		{"regex match", OpRegex, "abc123", `^[a-z]+\d+$`, true},
		{"regex bad pattern skipped", OpRegex, "abc123", `(`, false},
		{"regex non-string left", OpRegex, 1, `\d`, false},
		{"unknown operator", Operator("bogus"), "x", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(tt.op, tt.left, tt.right, nil)
			if got != tt.want {
				t.Errorf("Evaluate(%v, %v, %v) = %v, want %v", tt.op, tt.left, tt.right, got, tt.want)
			}
		})
	}
}
