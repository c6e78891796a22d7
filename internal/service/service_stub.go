//go:build !windows

// Package service provides a stub for non-Windows platforms, where the agent
// always runs as a foreground process under the init system.
package service

import (
	"context"

	"go.uber.org/zap"
)

// Name is the service name used in logs.
const Name = "ShelterAgent"

// AgentService runs the agent until SIGINT or SIGTERM.
type AgentService struct {
	logger *zap.Logger
	runFn  func(ctx context.Context) error
}

// New creates a stub service wrapper.
func New(logger *zap.Logger, runFn func(ctx context.Context) error) *AgentService {
	return &AgentService{
		logger: logger,
		runFn:  runFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the agent in the foreground. There is no service manager
// to hand control to.
func (s *AgentService) Run() error {
	return s.RunForeground()
}
