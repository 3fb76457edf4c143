// Package chat defines the messenger kit chimebot talks to chat platforms
// through. The engine and report handlers only see this package; the concrete
// platform adapter lives in a subpackage.
package chat

import (
	"context"
	"html"
	"strings"
)

// ChannelRef is an opaque destination identifier. Only the platform adapter
// may interpret its contents (the telegram adapter reads "<chatID>" or
// "<chatID>:<threadID>"); everything else passes it through verbatim.
type ChannelRef string

func (r ChannelRef) String() string { return string(r) }

// Mention selects the pre-announcement sent before a scheduled action fires.
type Mention string

const (
	MentionNone     Mention = "none"
	MentionUser     Mention = "user"
	MentionHere     Mention = "here"
	MentionEveryone Mention = "everyone"
)

// ParseMention parses a mention token leniently: empty or unknown input
// defaults to MentionNone so a malformed stored row never blocks dispatch.
func ParseMention(s string) Mention {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user":
		return MentionUser
	case "here":
		return MentionHere
	case "everyone":
		return MentionEveryone
	default:
		return MentionNone
	}
}

// Sender is the minimal outbound surface. Components that only post messages
// (log sinks, report handlers) depend on this instead of the full Messenger.
//
// Text passed to Send is HTML-flavored markup: MentionUser output may embed
// links, so user-provided text must go through EscapeText first.
type Sender interface {
	Send(ctx context.Context, ref ChannelRef, text string) error
}

// EscapeText escapes user-provided text for the markup Send understands.
func EscapeText(s string) string { return html.EscapeString(s) }

// Messenger is the full platform adapter contract.
type Messenger interface {
	Sender

	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// MentionUser renders a direct mention of the given platform user ref
	// in whatever markup Send understands.
	MentionUser(target string) string
}
