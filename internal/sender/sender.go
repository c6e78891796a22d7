// Package sender implements the typed collector API on top of the transport:
// registration, heartbeat, metric batches and service snapshots.
// Authenticated endpoints are never contacted while the API token is empty.
package sender

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/identity"
	"github.com/shelteragent/agent/internal/models"
)

const (
	PathRegister  = "/agent/register"
	PathHeartbeat = "/agent/heartbeat"
	PathMetrics   = "/metrics"
	PathServices  = "/services"
)

// ErrNoToken is returned when an authenticated call is attempted without a token.
var ErrNoToken = errors.New("no api token: agent is not registered")

// RejectedError is returned when the collector answers {success:false}.
type RejectedError struct {
	Endpoint string
	Message  string
	Errors   json.RawMessage
}

func (e *RejectedError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if len(e.Errors) > 0 {
		return fmt.Sprintf("%s rejected: %s (errors: %s)", e.Endpoint, msg, string(e.Errors))
	}
	return fmt.Sprintf("%s rejected: %s", e.Endpoint, msg)
}

// Poster is the transport contract the Sender depends on.
type Poster interface {
	Post(ctx context.Context, url string, body any, headers map[string]string) (*models.Ack, error)
}

// Sender holds the agent identity and bearer token and issues collector calls.
type Sender struct {
	client   Poster
	baseURL  string
	identity identity.Identity
	token    string
	logger   *zap.Logger
}

// New creates a Sender. token may be empty until registration succeeds.
func New(client Poster, baseURL string, id identity.Identity, token string, logger *zap.Logger) *Sender {
	return &Sender{
		client:   client,
		baseURL:  baseURL,
		identity: id,
		token:    token,
		logger:   logger,
	}
}

// Identity returns the identity the sender reports as.
func (s *Sender) Identity() identity.Identity { return s.identity }

// Token returns the current API token.
func (s *Sender) Token() string { return s.token }

// SetToken replaces the API token used for authenticated calls.
func (s *Sender) SetToken(token string) { s.token = token }

// Register posts the registration payload. This is the only call allowed
// without a token.
func (s *Sender) Register(ctx context.Context, req models.RegisterRequest) error {
	return s.post(ctx, PathRegister, req, false)
}

// Heartbeat reports liveness and, at startup, validates the token.
func (s *Sender) Heartbeat(ctx context.Context) error {
	return s.post(ctx, PathHeartbeat, models.HeartbeatRequest{AgentID: s.identity.AgentID}, true)
}

// SendMetrics transmits a batch of samples in one request.
func (s *Sender) SendMetrics(ctx context.Context, samples []models.MetricSample) error {
	return s.post(ctx, PathMetrics, models.MetricsRequest{
		AgentID: s.identity.AgentID,
		Metrics: samples,
	}, true)
}

// SendServices transmits one service snapshot.
func (s *Sender) SendServices(ctx context.Context, services []models.ServiceRecord) error {
	return s.post(ctx, PathServices, models.ServicesRequest{
		AgentID:  s.identity.AgentID,
		Services: services,
	}, true)
}

func (s *Sender) post(ctx context.Context, path string, body any, auth bool) error {
	headers := map[string]string{}
	if auth {
		if s.token == "" {
			return ErrNoToken
		}
		headers["Authorization"] = "Bearer " + s.token
	}

	ack, err := s.client.Post(ctx, s.baseURL+path, body, headers)
	if err != nil {
		return err
	}
	if !ack.Success {
		return &RejectedError{Endpoint: path, Message: ack.Message, Errors: ack.Errors}
	}

	s.logger.Debug("Request acknowledged", zap.String("endpoint", path))
	return nil
}
