//go:build windows

// Package service provides Windows Service integration.
// When started by the SCM, the agent runs inside the service control loop;
// from a terminal it runs in the foreground.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

// Name is the SCM service name.
const Name = "ShelterAgent"

// stopTimeout bounds how long a stop request waits for the final flush.
const stopTimeout = 20 * time.Second

// AgentService implements svc.Handler around a blocking run function.
type AgentService struct {
	logger *zap.Logger
	runFn  func(ctx context.Context) error
}

// New creates a Windows service wrapper. runFn must return once its
// context is cancelled.
func New(logger *zap.Logger, runFn func(ctx context.Context) error) *AgentService {
	return &AgentService{
		logger: logger,
		runFn:  runFn,
	}
}

// IsWindowsService reports whether the process was started by the SCM.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run enters the service control loop.
func (s *AgentService) Run() error {
	return svc.Run(Name, s)
}

// Execute implements svc.Handler.
func (s *AgentService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.runFn(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case err := <-done:
			if err != nil {
				s.logger.Error("Agent exited", zap.Error(err))
				return true, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case <-done:
				case <-time.After(stopTimeout):
					s.logger.Warn("Agent did not stop in time")
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}
