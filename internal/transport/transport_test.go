package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelteragent/agent/internal/models"
)

func TestPost_SuccessSendsJSONAndHeaders(t *testing.T) {
	var gotContentType, gotAuth string
	var gotBody models.HeartbeatRequest

	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(Options{VerifySSL: false})
	ack, err := c.Post(context.Background(), srv.URL+"/agent/heartbeat",
		models.HeartbeatRequest{AgentID: "a-b"},
		map[string]string{"Authorization": "Bearer tok"})

	require.NoError(t, err)
	assert.True(t, ack.Success)
	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "a-b", gotBody.AgentID)
}

func TestPost_VerifySSLRejectsSelfSigned(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := New(Options{VerifySSL: true})
	_, err := c.Post(context.Background(), srv.URL, models.HeartbeatRequest{AgentID: "x"}, nil)

	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Zero(t, terr.StatusCode)
}

func TestPost_Failures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantAck bool
	}{
		{"server error", http.StatusInternalServerError, `oops`, ErrStatus, false},
		{"rejected with body", http.StatusUnauthorized, `{"success":false,"message":"bad token"}`, ErrStatus, true},
		{"invalid json", http.StatusOK, `<html>`, ErrDecode, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewWithHTTPClient(srv.Client())
			ack, err := c.Post(context.Background(), srv.URL, models.HeartbeatRequest{AgentID: "x"}, nil)

			assert.Nil(t, ack)
			require.ErrorIs(t, err, tt.wantErr)
			var terr *Error
			require.True(t, errors.As(err, &terr))
			assert.Equal(t, tt.status, terr.StatusCode)
			if tt.wantAck {
				require.NotNil(t, terr.Ack)
				assert.Equal(t, "bad token", terr.Ack.Message)
			}
		})
	}
}

func TestPost_InvalidBodyNeverSent(t *testing.T) {
	hits := 0
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer srv.Close()

	c := NewWithHTTPClient(srv.Client())
	_, err := c.Post(context.Background(), srv.URL, models.MetricsRequest{AgentID: "x"}, nil)

	require.ErrorIs(t, err, ErrInvalidRequest)
	assert.Zero(t, hits)
}

func TestPost_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	hc := srv.Client()
	hc.Timeout = 50 * time.Millisecond
	c := NewWithHTTPClient(hc)

	start := time.Now()
	_, err := c.Post(context.Background(), srv.URL, models.HeartbeatRequest{AgentID: "x"}, nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestPost_ConnectionRefused(t *testing.T) {
	srv := httptest.NewTLSServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Options{}).Post(context.Background(), url, models.HeartbeatRequest{AgentID: "x"}, nil)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, url, terr.Endpoint)
}
