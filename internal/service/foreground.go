package service

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// RunForeground executes the agent in the current process and cancels it on
// an interrupt or termination signal.
func (s *AgentService) RunForeground() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.runFn(ctx)
}
