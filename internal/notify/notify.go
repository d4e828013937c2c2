// Package notify tells people how a run went.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kuitang/vaults-e2e/internal/obs"
	"github.com/kuitang/vaults-e2e/internal/report"
)

// Message is what a notifier delivers.
type Message struct {
	Summary report.Summary
	// HTML is the rendered report body. It may be empty.
	HTML []byte
}

// Notifier delivers run summaries.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// MockNotifier captures messages instead of sending them. When an outbox
// directory is configured each message is also written there as JSON so a
// separate process can inspect it.
type MockNotifier struct {
	mu        sync.Mutex
	Messages  []Message
	outboxDir string
	seq       uint64
}

// NewMockNotifier creates a mock notifier. An empty outboxDir disables the
// file outbox.
func NewMockNotifier(outboxDir string) *MockNotifier {
	if outboxDir != "" {
		if err := os.MkdirAll(outboxDir, 0o755); err != nil {
			obs.Pkg("notify").Warn("outbox_unavailable", "dir", outboxDir, "error", err)
			outboxDir = ""
		}
	}
	return &MockNotifier{outboxDir: outboxDir}
}

// Send records msg.
func (m *MockNotifier) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, msg)
	obs.From(ctx).Info("notification_captured", "title", msg.Summary.Title())
	return m.writeOutbox(msg)
}

// Last returns the most recent message, or the zero value.
func (m *MockNotifier) Last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return Message{}
	}
	return m.Messages[len(m.Messages)-1]
}

// Count returns the number of captured messages.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

type outboxEntry struct {
	Sequence       uint64         `json:"sequence"`
	Title          string         `json:"title"`
	Summary        report.Summary `json:"summary"`
	SentAtUnixNano int64          `json:"sent_at_unix_nano"`
}

func (m *MockNotifier) writeOutbox(msg Message) error {
	if m.outboxDir == "" {
		return nil
	}
	m.seq++
	entry := outboxEntry{
		Sequence:       m.seq,
		Title:          msg.Summary.Title(),
		Summary:        msg.Summary,
		SentAtUnixNano: time.Now().UnixNano(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal outbox entry: %w", err)
	}
	finalPath := filepath.Join(m.outboxDir, fmt.Sprintf("%020d-%s.json", entry.Sequence, entry.Summary.RunID))
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write outbox temp file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("rename outbox file: %w", err)
	}
	return nil
}
