package telegram

import (
	"strings"
	"testing"

	"chimebot/internal/chat"
	logx "chimebot/pkg/logx"
)

func TestParseRef(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		ref      string
		chatID   int64
		threadID int
		wantErr  bool
	}{
		{name: "plain chat", ref: "-1001234567890", chatID: -1001234567890},
		{name: "with thread", ref: "42:7", chatID: 42, threadID: 7},
		{name: "empty", ref: "", wantErr: true},
		{name: "not numeric", ref: "general", wantErr: true},
		{name: "bad thread", ref: "42:x", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			chatID, threadID, err := parseRef(chat.ChannelRef(tt.ref))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRef(%q) = nil error, want error", tt.ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRef(%q) error: %v", tt.ref, err)
			}
			if chatID != tt.chatID || threadID != tt.threadID {
				t.Fatalf("parseRef(%q) = (%d, %d), want (%d, %d)", tt.ref, chatID, threadID, tt.chatID, tt.threadID)
			}
		})
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	t.Run("short text untouched", func(t *testing.T) {
		t.Parallel()
		got := splitText("hello", 100)
		if len(got) != 1 || got[0] != "hello" {
			t.Fatalf("splitText = %q", got)
		}
	})

	t.Run("prefers newline boundaries", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("line one\n", 30)
		chunks := splitText(text, 100)
		if len(chunks) < 2 {
			t.Fatalf("expected multiple chunks, got %d", len(chunks))
		}
		for i, c := range chunks {
			if len([]rune(c)) > 100 {
				t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
			}
			if !strings.HasSuffix(c, "line one") {
				t.Fatalf("chunk %d does not end on a line boundary: %q", i, c)
			}
		}
	})

	t.Run("does not split inside tag", func(t *testing.T) {
		t.Parallel()
		text := strings.Repeat("x", 95) + `<a href="tg://user?id=1">@1</a>`
		for _, c := range splitText(text, 100) {
			open := strings.Count(c, "<")
			closed := strings.Count(c, ">")
			if open != closed {
				t.Fatalf("chunk split inside tag: %q", c)
			}
		}
	})
}

func TestMentionUser(t *testing.T) {
	t.Parallel()
	m := &Messenger{}
	if got := m.MentionUser("12345"); got != `<a href="tg://user?id=12345">@12345</a>` {
		t.Fatalf("MentionUser(numeric) = %q", got)
	}
	if got := m.MentionUser("@alice"); got != "@alice" {
		t.Fatalf("MentionUser(@name) = %q", got)
	}
	if got := m.MentionUser("a<b"); got != "@a&lt;b" {
		t.Fatalf("MentionUser(html) = %q", got)
	}
}

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}
