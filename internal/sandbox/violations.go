package sandbox

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/svngoku/sandbox-runtime/internal/errdefs"
	"github.com/svngoku/sandbox-runtime/internal/platform"
)

// ViolationKind classifies a policy breach.
type ViolationKind int

const (
	ViolationNetwork ViolationKind = iota
	ViolationFilesystemRead
	ViolationFilesystemWrite
	ViolationUnixSocket
	ViolationOther
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationNetwork:
		return "network"
	case ViolationFilesystemRead:
		return "file-read"
	case ViolationFilesystemWrite:
		return "file-write"
	case ViolationUnixSocket:
		return "unix-socket"
	default:
		return "other"
	}
}

// Violation is one observed attempt by a sandboxed process to exceed its
// policy. Immutable once recorded.
type Violation struct {
	Kind      ViolationKind
	Target    string
	Process   string
	Timestamp time.Time
}

// Subscriber receives each violation as it is recorded.
type Subscriber interface {
	OnViolation(Violation)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(Violation)

func (f SubscriberFunc) OnViolation(v Violation) { f(v) }

// ViolationStore is a thread-safe append log plus publish/subscribe hub for
// policy breaches. It is shared by the manager and the platform observer.
type ViolationStore struct {
	mu         sync.Mutex
	violations []Violation

	subMu       sync.Mutex
	subscribers []Subscriber

	ignoreMu sync.Mutex
	ignore   map[string][]string

	obsMu   sync.Mutex
	cancel  context.CancelFunc
	obsDone chan struct{}

	debug bool
}

// NewViolationStore creates an empty store.
func NewViolationStore(debug bool) *ViolationStore {
	return &ViolationStore{debug: debug}
}

// SetIgnoreRules installs the per-command ignore table from configuration.
// A violation whose target matches any pattern is dropped before recording.
func (s *ViolationStore) SetIgnoreRules(rules map[string][]string) {
	s.ignoreMu.Lock()
	defer s.ignoreMu.Unlock()
	s.ignore = rules
}

// Record appends a violation and synchronously notifies every subscriber.
// A panicking subscriber is a programming error and is not recovered.
func (s *ViolationStore) Record(v Violation) {
	if s.shouldIgnore(v) {
		s.logDebug("ignoring violation for %s", v.Target)
		return
	}

	s.mu.Lock()
	s.violations = append(s.violations, v)
	s.mu.Unlock()

	s.subMu.Lock()
	subscribers := make([]Subscriber, len(s.subscribers))
	copy(subscribers, s.subscribers)
	s.subMu.Unlock()

	for _, sub := range subscribers {
		sub.OnViolation(v)
	}
}

// Subscribe registers a callback. There is no removal: the subscriber set
// grows monotonically for the store's lifetime.
func (s *ViolationStore) Subscribe(sub Subscriber) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

// Violations returns a copy of the log in insertion order.
func (s *ViolationStore) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Violation, len(s.violations))
	copy(out, s.violations)
	return out
}

// ByKind returns a copy of the violations of one kind, preserving order.
func (s *ViolationStore) ByKind(kind ViolationKind) []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Violation
	for _, v := range s.violations {
		if v.Kind == kind {
			out = append(out, v)
		}
	}
	return out
}

// Count returns the number of recorded violations.
func (s *ViolationStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.violations)
}

// Clear empties the log. Subscribers are untouched.
func (s *ViolationStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = nil
}

func (s *ViolationStore) shouldIgnore(v Violation) bool {
	s.ignoreMu.Lock()
	defer s.ignoreMu.Unlock()
	for _, patterns := range s.ignore {
		for _, pattern := range patterns {
			if MatchTarget(pattern, v.Target) {
				return true
			}
		}
	}
	return false
}

// StartObserver begins tailing the macOS unified log for sandbox denials in
// a cancellable background task. No-op elsewhere; no-op when already
// running.
func (s *ViolationStore) StartObserver() error {
	if platform.Detect() != platform.MacOS {
		return nil
	}

	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	if s.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, "log", "stream",
		"--predicate", `subsystem == "com.apple.sandbox"`,
		"--style", "syslog",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return errdefs.Wrap(errdefs.KindIo, err, "failed to create log stream pipe")
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return errdefs.Wrap(errdefs.KindExecution, err, "failed to start log stream")
	}

	s.cancel = cancel
	s.obsDone = make(chan struct{})

	go func() {
		defer close(s.obsDone)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.Contains(line, "deny") {
				continue
			}
			s.Record(parseLogLine(line))
		}
		cmd.Wait()
	}()

	s.logDebug("violation observer started")
	return nil
}

// StopObserver cancels the log-tailing task and waits for it to drain.
// Safe to call when the observer never started.
func (s *ViolationStore) StopObserver() {
	s.obsMu.Lock()
	cancel := s.cancel
	done := s.obsDone
	s.cancel = nil
	s.obsDone = nil
	s.obsMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
	s.logDebug("violation observer stopped")
}

// parseLogLine classifies a sandbox denial line by substring and extracts a
// best-effort target token (the last whitespace-separated field).
func parseLogLine(line string) Violation {
	var kind ViolationKind
	switch {
	case strings.Contains(line, "file-read"):
		kind = ViolationFilesystemRead
	case strings.Contains(line, "file-write"):
		kind = ViolationFilesystemWrite
	case strings.Contains(line, "network"):
		kind = ViolationNetwork
	case strings.Contains(line, "unix-socket"):
		kind = ViolationUnixSocket
	default:
		kind = ViolationOther
	}

	target := "unknown"
	fields := strings.Fields(line)
	if len(fields) > 0 {
		target = fields[len(fields)-1]
	}

	return Violation{
		Kind:      kind,
		Target:    target,
		Process:   "sandboxed-process",
		Timestamp: time.Now(),
	}
}

func (s *ViolationStore) logDebug(format string, args ...any) {
	if s.debug {
		fmt.Fprintf(os.Stderr, "[srt:violations] "+format+"\n", args...)
	}
}
