package policy

import (
	"encoding/json"
	"reflect"
	"testing"
)

func mustDecode(t *testing.T, s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestExtractPath(t *testing.T) {
	tests := []struct {
		name string
		json string
		path string
		want []any
	}{
		{
			name: "simple field",
			json: `{"path":"/etc/passwd"}`,
			path: "path",
			want: []any{"/etc/passwd"},
		},
		{
			name: "nested dotted",
			json: `{"items":[{"name":{"first":"Ann"}}]}`,
			path: "items[0].name.first",
			want: []any{"Ann"},
		},
		{
			name: "wildcard fanout",
			json: `{"emails":[{"from":"a@x.com"},{"from":"b@x.com"}]}`,
			path: "emails[*].from",
			want: []any{"a@x.com", "b@x.com"},
		},
		{
			name: "missing field yields no leaves",
			json: `{"a":1}`,
			path: "b",
			want: nil,
		},
		{
			name: "index out of range",
			json: `{"items":[1,2]}`,
			path: "items[5]",
			want: nil,
		},
		{
			name: "wildcard over non-array",
			json: `{"a":1}`,
			path: "a[*]",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustDecode(t, tt.json)
			got, err := ExtractPath(doc, tt.path)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractPath(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParsePathInvalid(t *testing.T) {
	if _, err := ParsePath("a[0"); err == nil {
		t.Error("expected error for unterminated bracket")
	}
	if _, err := ParsePath("a[x]"); err == nil {
		t.Error("expected error for non-numeric, non-wildcard index")
	}
	if _, err := ParsePath(""); err == nil {
		t.Error("expected error for empty path")
	}
}
