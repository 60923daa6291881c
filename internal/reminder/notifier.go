package reminder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Notification is a local reminder. Tag is the dose dedup key, so surfaces
// that replace notifications by tag never show the same dose twice.
type Notification struct {
	Tag   string
	Title string
	Body  string
}

// Notifier shows a local notification
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Speaker reads text aloud
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// LogNotifier is a notification surface that writes reminders to the log.
// Like desktop notification centres it replaces, rather than repeats, a
// notification whose tag it has already shown.
type LogNotifier struct {
	logger *zap.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger, seen: make(map[string]struct{})}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.mu.Lock()
	_, dup := n.seen[note.Tag]
	n.seen[note.Tag] = struct{}{}
	n.mu.Unlock()

	if dup {
		n.logger.Debug("notification replaced", zap.String("tag", note.Tag))
		return nil
	}
	n.logger.Info("dose reminder",
		zap.String("tag", note.Tag),
		zap.String("title", note.Title),
		zap.String("body", note.Body))
	return nil
}

// CommandSpeaker speaks through an external text-to-speech program such as
// espeak. The text is passed as the final argument.
type CommandSpeaker struct {
	name    string
	args    []string
	timeout time.Duration
}

// NewCommandSpeaker parses command ("espeak -v pt-br") into program and arguments
func NewCommandSpeaker(command string, timeout time.Duration) (*CommandSpeaker, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, fmt.Errorf("speak command is empty")
	}
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("speak command %q: %w", fields[0], err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CommandSpeaker{name: fields[0], args: fields[1:], timeout: timeout}, nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	args := append(append([]string(nil), s.args...), text)
	out, err := exec.CommandContext(ctx, s.name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", s.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}
