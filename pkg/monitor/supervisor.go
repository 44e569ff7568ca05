package monitor

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/battsentry/battsentry/pkg/log"
)

// Supervisor executes system-level escalations on behalf of the monitor.
// The control loop only ever requests these; it never shells out itself.
type Supervisor interface {
	// Reboot restarts the host.
	Reboot(ctx context.Context) error
	// ResetInternet restarts the host's network connectivity.
	ResetInternet(ctx context.Context) error
}

// ExecSupervisor runs configured commands for each escalation.
type ExecSupervisor struct {
	RebootCommand        []string
	InternetResetCommand []string
}

var _ Supervisor = &ExecSupervisor{}

func (s *ExecSupervisor) run(ctx context.Context, argv []string, what string) error {
	if len(argv) == 0 {
		log.Ctx(ctx).Warn("no command configured, skipping", "action", what)
		return nil
	}
	log.Ctx(ctx).Info("running escalation command", "action", what, "command", argv)
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s command failed: %w (output: %s)", what, err, out)
	}
	return nil
}

func (s *ExecSupervisor) Reboot(ctx context.Context) error {
	return s.run(ctx, s.RebootCommand, "reboot")
}

func (s *ExecSupervisor) ResetInternet(ctx context.Context) error {
	return s.run(ctx, s.InternetResetCommand, "internet reset")
}

// MockSupervisor records escalation requests for tests.
type MockSupervisor struct {
	mu             sync.Mutex
	Reboots        int
	InternetResets int
}

var _ Supervisor = &MockSupervisor{}

func (m *MockSupervisor) Reboot(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reboots++
	return nil
}

func (m *MockSupervisor) ResetInternet(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InternetResets++
	return nil
}

// RebootCount returns the recorded reboot requests.
func (m *MockSupervisor) RebootCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Reboots
}

// InternetResetCount returns the recorded internet reset requests.
func (m *MockSupervisor) InternetResetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.InternetResets
}
