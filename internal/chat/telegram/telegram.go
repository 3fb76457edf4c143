// Package telegram implements the chat kit on Telegram via telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"chimebot/internal/chat"
	rtsup "chimebot/internal/runtime/supervisor"
	logx "chimebot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Messenger sends chimebot messages to Telegram chats. Channel refs are
// "<chatID>" or "<chatID>:<threadID>" (forum topic).
type Messenger struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool

	// sup owns the long-poll goroutine; created on Start, cancelled on Stop.
	sup *rtsup.Supervisor
}

var _ chat.Messenger = (*Messenger)(nil)

func New(cfg Config, log logx.Logger) (*Messenger, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Messenger{cfg: cfg, log: log, bot: b}, nil
}

func (m *Messenger) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.runMu.Lock()
	if m.running {
		m.runMu.Unlock()
		return nil
	}
	m.running = true
	m.sup = rtsup.New(ctx,
		rtsup.WithLogger(m.log.With(logx.String("comp", "telegram"))),
		rtsup.WithCancelOnError(false),
	)
	sup := m.sup
	m.runMu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		if m.bot != nil {
			m.bot.Stop()
		}
	})

	// Telebot's Start() is a long-running loop. It can exit unexpectedly in
	// some failure modes; run it under a restart loop so the adapter
	// self-heals.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		m.log.Info("polling started")
		if m.bot != nil {
			m.bot.Start()
		}
		m.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithStopOnCleanExit(false),
	)

	return nil
}

func (m *Messenger) Stop(ctx context.Context) error {
	m.runMu.Lock()
	sup := m.sup
	m.sup = nil
	wasRunning := m.running
	m.running = false
	m.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if sup != nil {
		sup.Cancel()
	}

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if sup != nil {
		if err := sup.Wait(wctx); err != nil {
			// Don't hard-fail shutdown for the adapter; just report.
			m.log.Warn("telegram stop incomplete", logx.Err(err))
		}
	}
	return nil
}

const textLimit = 4000

// Send delivers text to the referenced chat, splitting messages that exceed
// Telegram's length limit. All messages are sent as HTML (MentionUser emits
// HTML links), so plain text with angle brackets must be escaped by callers
// via chat.EscapeText.
func (m *Messenger) Send(ctx context.Context, ref chat.ChannelRef, text string) error {
	chatID, threadID, err := parseRef(ref)
	if err != nil {
		return err
	}

	to := &tele.Chat{ID: chatID}
	opt := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              threadID,
	}

	for _, chunk := range splitText(text, textLimit) {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if _, err := m.bot.Send(to, chunk, opt); err != nil {
			return fmt.Errorf("telegram send to %s: %w", ref, err)
		}
	}
	return nil
}

// MentionUser renders a direct mention as a tg://user link. The target must
// be a numeric Telegram user id; anything else degrades to a plain @name.
func (m *Messenger) MentionUser(target string) string {
	target = strings.TrimSpace(target)
	if id, err := strconv.ParseInt(target, 10, 64); err == nil {
		return fmt.Sprintf(`<a href="tg://user?id=%d">@%d</a>`, id, id)
	}
	return "@" + html.EscapeString(strings.TrimPrefix(target, "@"))
}

func parseRef(ref chat.ChannelRef) (chatID int64, threadID int, err error) {
	s := strings.TrimSpace(string(ref))
	if s == "" {
		return 0, 0, errors.New("empty channel ref")
	}
	idPart, threadPart, hasThread := strings.Cut(s, ":")
	chatID, err = strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed channel ref %q: %w", s, err)
	}
	if hasThread {
		threadID, err = strconv.Atoi(threadPart)
		if err != nil {
			return 0, 0, fmt.Errorf("malformed thread id in channel ref %q: %w", s, err)
		}
	}
	return chatID, threadID, nil
}

// splitText splits long messages into chunks that are safe to send, preferring
// newline boundaries and (best-effort) avoiding splits inside HTML tags.
func splitText(s string, limit int) []string {
	if limit <= 0 {
		limit = textLimit
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	out := make([]string, 0, (len(rs)+limit-1)/limit)
	start := 0
	for start < len(rs) {
		end := start + limit
		if end > len(rs) {
			end = len(rs)
		}

		if end < len(rs) {
			// Prefer a newline near the end of the window; avoid tiny chunks.
			for i := end - 1; i > start; i-- {
				if rs[i] == '\n' && i-start >= limit/3 {
					end = i + 1
					break
				}
			}
			// Don't split inside a dangling HTML tag.
			lastOpen, lastClose := -1, -1
			for i := start; i < end; i++ {
				switch rs[i] {
				case '<':
					lastOpen = i
				case '>':
					lastClose = i
				}
			}
			if lastOpen > lastClose && lastOpen > start+1 {
				end = lastOpen
			}
		}

		chunk := strings.TrimRight(string(rs[start:end]), "\n")
		out = append(out, chunk)

		start = end
		for start < len(rs) && rs[start] == '\n' {
			start++
		}
	}
	return out
}
