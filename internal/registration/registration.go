// Package registration owns the API token lifecycle: an existing token is
// validated with a heartbeat, and only when that fails does the agent
// register again with a freshly generated token.
package registration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/identity"
	"github.com/shelteragent/agent/internal/logging"
	"github.com/shelteragent/agent/internal/models"
)

// ErrRegistrationFailed is returned when no valid token could be obtained.
var ErrRegistrationFailed = errors.New("agent registration failed")

// API is the subset of the collector client used during registration.
type API interface {
	Identity() identity.Identity
	Token() string
	SetToken(token string)
	Heartbeat(ctx context.Context) error
	Register(ctx context.Context, req models.RegisterRequest) error
}

// Persister stores the credential after a successful registration.
type Persister interface {
	PersistCredential(hwid, hostname, token string) error
}

// InventoryFunc gathers the host inventory sent with a registration.
type InventoryFunc func(ctx context.Context) models.Inventory

// TokenFunc generates a new API token.
type TokenFunc func(hwid, hostname string) (string, error)

// Manager runs the validate-before-register check at startup.
type Manager struct {
	api       API
	store     Persister
	inventory InventoryFunc
	newToken  TokenFunc
	logger    *zap.Logger
}

// New creates a Manager. Tokens come from identity.GenerateAPIToken.
func New(api API, store Persister, inventory InventoryFunc, logger *zap.Logger) *Manager {
	return &Manager{
		api:       api,
		store:     store,
		inventory: inventory,
		newToken:  identity.GenerateAPIToken,
		logger:    logger,
	}
}

// Ensure leaves the agent holding a token the collector accepts.
// A stored token is kept if a heartbeat with it succeeds; otherwise the
// agent registers. The returned error wraps ErrRegistrationFailed.
func (m *Manager) Ensure(ctx context.Context) error {
	if token := m.api.Token(); token != "" {
		err := m.api.Heartbeat(ctx)
		if err == nil {
			m.logger.Info("Stored API token validated",
				zap.String("token", logging.TokenPrefix(token)))
			return nil
		}
		m.logger.Warn("Stored API token rejected, re-registering", zap.Error(err))
	} else {
		m.logger.Info("No API token found, registering")
	}

	return m.Register(ctx)
}

// Register generates a new token and posts the registration. On success the
// token is installed in the client and persisted. A persistence failure is
// logged only: the token stays valid for this run.
func (m *Manager) Register(ctx context.Context) error {
	id := m.api.Identity()

	token, err := m.newToken(id.HWID, id.Hostname)
	if err != nil {
		return fmt.Errorf("%w: generate token: %w", ErrRegistrationFailed, err)
	}

	inv := m.inventory(ctx)
	req := models.RegisterRequest{
		AgentID:     id.AgentID,
		HWID:        id.HWID,
		Hostname:    id.Hostname,
		IPAddress:   inv.IPAddress,
		OSType:      inv.OSType,
		OSVersion:   inv.OSVersion,
		CPUCores:    inv.CPUCores,
		TotalMemory: inv.TotalMemory,
		TotalDisk:   inv.TotalDisk,
		APIToken:    token,
	}

	if err := m.api.Register(ctx, req); err != nil {
		m.logger.Error("Registration failed",
			zap.String("agent_id", id.AgentID),
			zap.Error(err))
		return fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	m.api.SetToken(token)
	m.logger.Info("Agent registered",
		zap.String("agent_id", id.AgentID),
		zap.String("token", logging.TokenPrefix(token)))

	if err := m.store.PersistCredential(id.HWID, id.Hostname, token); err != nil {
		m.logger.Error("Failed to persist API token", zap.Error(err))
	}
	return nil
}
