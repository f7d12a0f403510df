package session

import "testing"

func TestParseKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		raw  string
		want Key
	}{
		{name: "full", raw: "agent:main:telegram:group:-100123", want: Key{Agent: "main", Rest: "telegram:group:-100123"}},
		{name: "agent only", raw: "agent:main", want: Key{Agent: "main"}},
		{name: "no prefix", raw: "telegram:5", want: Key{Rest: "telegram:5"}},
		{name: "empty agent id", raw: "agent::rest", want: Key{Rest: "agent::rest"}},
		{name: "empty", raw: "", want: Key{}},
		{name: "whitespace", raw: "  agent:a:b  ", want: Key{Agent: "a", Rest: "b"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseKey(tt.raw); got != tt.want {
				t.Fatalf("ParseKey(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}
