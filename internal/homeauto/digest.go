package homeauto

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// DigestTTL bounds digest staleness. Entity churn is slow; every prompt
// assembly re-fetching /api/states would hammer the instance for nothing.
const DigestTTL = 30 * time.Second

// digestEntry is one cached render.
type digestEntry struct {
	text string
	at   time.Time
}

// DigestCache renders the entity digest for the prompt preamble and caches
// it for DigestTTL. Concurrent refreshes race benignly: last writer wins,
// both wrote equivalent, fresh text.
type DigestCache struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time

	current atomic.Pointer[digestEntry]
}

// NewDigestCache returns an empty cache over client.
func NewDigestCache(client *Client, logger *slog.Logger) *DigestCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DigestCache{client: client, logger: logger, now: time.Now}
}

// Digest returns the current entity digest, refreshing when the cached copy
// is older than DigestTTL. A refresh failure degrades to the previous text,
// or to an empty digest when none exists; the prompt simply omits the
// section rather than failing the turn.
func (d *DigestCache) Digest(ctx context.Context) string {
	if entry := d.current.Load(); entry != nil && d.now().Sub(entry.at) < DigestTTL {
		return entry.text
	}

	states, err := d.client.States(ctx)
	if err != nil {
		d.logger.Warn("homeauto: digest refresh failed", "err", err)
		if entry := d.current.Load(); entry != nil {
			return entry.text
		}
		return ""
	}

	text := renderDigest(states)
	d.current.Store(&digestEntry{text: text, at: d.now()})
	return text
}

// renderDigest lists switch entity ids and scene names under the digest
// header. Scene names drop the domain prefix since the service call adds it
// back.
func renderDigest(states []State) string {
	var switches, scenes []string
	for _, s := range states {
		switch {
		case strings.HasPrefix(s.EntityID, "switch."):
			switches = append(switches, s.EntityID)
		case strings.HasPrefix(s.EntityID, "scene."):
			scenes = append(scenes, strings.TrimPrefix(s.EntityID, "scene."))
		}
	}
	if len(switches) == 0 && len(scenes) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Available Home Automation Entities for use with tools:\n")
	sb.WriteString("Available Switch entity_id:\n")
	for _, s := range switches {
		sb.WriteString(" - ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	sb.WriteString("\nAvailable Scene entity_id:\n")
	for _, s := range scenes {
		sb.WriteString(" - ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
