package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelteragent/agent/internal/identity"
	"github.com/shelteragent/agent/internal/models"
)

type fakeAPI struct {
	id           identity.Identity
	token        string
	heartbeatErr error
	registerErr  error

	heartbeats int
	registers  []models.RegisterRequest
}

func (f *fakeAPI) Identity() identity.Identity { return f.id }
func (f *fakeAPI) Token() string               { return f.token }
func (f *fakeAPI) SetToken(token string)       { f.token = token }

func (f *fakeAPI) Heartbeat(context.Context) error {
	f.heartbeats++
	return f.heartbeatErr
}

func (f *fakeAPI) Register(_ context.Context, req models.RegisterRequest) error {
	f.registers = append(f.registers, req)
	return f.registerErr
}

type fakeStore struct {
	hwid, hostname, token string
	saves                 int
	err                   error
}

func (f *fakeStore) PersistCredential(hwid, hostname, token string) error {
	f.saves++
	if f.err != nil {
		return f.err
	}
	f.hwid, f.hostname, f.token = hwid, hostname, token
	return nil
}

func inventory(context.Context) models.Inventory {
	return models.Inventory{IPAddress: "10.0.0.5", OSType: "Linux", OSVersion: "ubuntu 22.04", CPUCores: 8, TotalMemory: 16 << 30, TotalDisk: 512 << 30}
}

func newManager(api *fakeAPI, store *fakeStore) *Manager {
	return New(api, store, inventory, zap.NewNop())
}

func TestEnsure_ValidTokenSkipsRegister(t *testing.T) {
	api := &fakeAPI{id: identity.New("0123456789abcdef", "web-01"), token: "stored"}
	store := &fakeStore{}

	require.NoError(t, newManager(api, store).Ensure(context.Background()))
	assert.Equal(t, 1, api.heartbeats)
	assert.Empty(t, api.registers)
	assert.Equal(t, "stored", api.token)
	assert.Zero(t, store.saves)
}

func TestEnsure_RejectedTokenReRegisters(t *testing.T) {
	api := &fakeAPI{
		id:           identity.New("0123456789abcdef", "web-01"),
		token:        "stale",
		heartbeatErr: errors.New("heartbeat rejected"),
	}
	store := &fakeStore{}

	require.NoError(t, newManager(api, store).Ensure(context.Background()))
	require.Len(t, api.registers, 1)

	req := api.registers[0]
	assert.Equal(t, "0123456789abcdef-web-01", req.AgentID)
	assert.Len(t, req.APIToken, 64)
	assert.NotEqual(t, "stale", api.token)
	assert.Equal(t, req.APIToken, api.token)
	assert.Equal(t, req.APIToken, store.token)
	assert.Equal(t, "0123456789abcdef", store.hwid)
	assert.Equal(t, "web-01", store.hostname)
}

func TestEnsure_NoTokenRegistersWithoutHeartbeat(t *testing.T) {
	api := &fakeAPI{id: identity.New("0123456789abcdef", "web-01")}
	store := &fakeStore{}

	require.NoError(t, newManager(api, store).Ensure(context.Background()))
	assert.Zero(t, api.heartbeats)
	require.Len(t, api.registers, 1)

	req := api.registers[0]
	assert.Equal(t, "10.0.0.5", req.IPAddress)
	assert.Equal(t, 8, req.CPUCores)
	assert.Equal(t, uint64(512<<30), req.TotalDisk)
	assert.Equal(t, 1, store.saves)
}

func TestEnsure_RegistrationFailureIsFatal(t *testing.T) {
	api := &fakeAPI{
		id:           identity.New("0123456789abcdef", "web-01"),
		token:        "stale",
		heartbeatErr: errors.New("connection refused"),
		registerErr:  errors.New("connection refused"),
	}
	store := &fakeStore{}

	err := newManager(api, store).Ensure(context.Background())
	require.ErrorIs(t, err, ErrRegistrationFailed)
	assert.Equal(t, "stale", api.token, "token is only replaced on success")
	assert.Zero(t, store.saves)
}

func TestRegister_PersistFailureStillInstallsToken(t *testing.T) {
	api := &fakeAPI{id: identity.New("0123456789abcdef", "web-01")}
	store := &fakeStore{err: errors.New("read-only file system")}

	require.NoError(t, newManager(api, store).Register(context.Background()))
	assert.Len(t, api.token, 64)
	assert.Equal(t, 1, store.saves)
}

func TestRegister_TokenGenerationFailure(t *testing.T) {
	api := &fakeAPI{id: identity.New("0123456789abcdef", "web-01")}
	m := newManager(api, &fakeStore{})
	m.newToken = func(string, string) (string, error) { return "", errors.New("entropy unavailable") }

	require.ErrorIs(t, m.Register(context.Background()), ErrRegistrationFailed)
	assert.Empty(t, api.registers)
}
