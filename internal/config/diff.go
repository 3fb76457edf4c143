package config

import (
	"reflect"
	"strings"

	logx "chimebot/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections and
// (2) safe structured attrs for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Bool("telegram.token_changed",
				strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token)),
		)
	}

	// Logging (channel ref is operational, not secret)
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File != newCfg.Logging.File ||
		oldCfg.Logging.Chat != newCfg.Logging.Chat {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	// Engine
	if strings.TrimSpace(oldCfg.Engine.PollInterval) != strings.TrimSpace(newCfg.Engine.PollInterval) {
		changed = append(changed, "engine")
		attrs = append(attrs,
			logx.String("engine.poll_interval", strings.TrimSpace(newCfg.Engine.PollInterval)),
		)
	}

	// Digest
	if oldCfg.Digest.Enabled != newCfg.Digest.Enabled ||
		strings.TrimSpace(oldCfg.Digest.Spec) != strings.TrimSpace(newCfg.Digest.Spec) ||
		!reflect.DeepEqual(oldCfg.Digest.Channels, newCfg.Digest.Channels) {
		changed = append(changed, "digest")
		attrs = append(attrs,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.spec", strings.TrimSpace(newCfg.Digest.Spec)),
			logx.Int("digest.channels", len(newCfg.Digest.Channels)),
		)
	}

	// Store (immutable at runtime; the app warns if it changes)
	oldStore := StoreConfig{}
	if oldCfg.Store != nil {
		oldStore = *oldCfg.Store
	}
	newStore := StoreConfig{}
	if newCfg.Store != nil {
		newStore = *newCfg.Store
	}
	if oldStore != newStore {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.driver", strings.TrimSpace(newStore.Driver)),
			logx.Bool("store.path_set", strings.TrimSpace(newStore.Path) != ""),
		)
	}

	return changed, attrs
}
