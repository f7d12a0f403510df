package channel

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"telegram", Telegram},
		{"tg", Telegram},
		{" TG ", Telegram},
		{"Discord", Discord},
		{"dc", Discord},
		{"slack-bot", Slack},
		{"slack", Slack},
		{"matrix", "matrix"}, // unknown passes through
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeliverable(t *testing.T) {
	t.Parallel()
	for _, ch := range []string{"telegram", "tg", "discord", "slack-bot"} {
		if !Deliverable(ch) {
			t.Fatalf("Deliverable(%q) = false", ch)
		}
	}
	for _, ch := range []string{"matrix", "", "carrier-pigeon"} {
		if Deliverable(ch) {
			t.Fatalf("Deliverable(%q) = true", ch)
		}
	}
}

func TestEditableIsTelegramOnly(t *testing.T) {
	t.Parallel()
	if !IsEditable("tg") || !IsEditable("telegram") {
		t.Fatal("telegram spellings must be editable")
	}
	if IsEditable("discord") || IsEditable("slack") {
		t.Fatal("send-only channels reported editable")
	}
	if got := (Classifier{}).EditableKind(); got != Telegram {
		t.Fatalf("EditableKind = %q, want %q", got, Telegram)
	}
}
