package coordclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reconmc/shared/types"
)

func TestRegister(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/agents/register", r.URL.Path)
		var req types.RegisterRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "agent-1", req.AgentID)
		json.NewEncoder(w).Encode(types.RegisterResponse{ID: "row-1", Status: "online"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "agent-1", nil)
	resp, err := c.Register(context.Background(), "test-agent")
	require.NoError(t, err)
	assert.Equal(t, "row-1", resp.ID)
}

func TestClaimNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "agent-1", nil)
	item, ok, err := c.Claim(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, item)
}

func TestClaimReturnsItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(types.ClaimResponse{
			QueueID:       "q-1",
			ServerAddress: "mc.example.com",
			Port:          25565,
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "agent-1", nil)
	item, ok, err := c.Claim(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "q-1", item.QueueID)
}

func TestCompleteAndFail(t *testing.T) {
	var gotComplete, gotFail bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/queue/q-1/complete":
			gotComplete = true
			var req types.CompleteRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.True(t, req.Result.Ping.Success)
		case "/api/queue/q-1/fail":
			gotFail = true
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "agent-1", nil)
	err := c.Complete(context.Background(), "q-1", types.ScanResult{Ping: types.PingResult{Success: true}}, "", "")
	require.NoError(t, err)
	err = c.Fail(context.Background(), "q-1", "boom")
	require.NoError(t, err)

	assert.True(t, gotComplete)
	assert.True(t, gotFail)
}

func TestLogsSkipsEmptyBatch(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "agent-1", nil)
	err := c.Logs(context.Background(), "task-1", nil)
	require.NoError(t, err)
	assert.False(t, called)
}

func TestLogsFlushesBatch(t *testing.T) {
	var got types.TaskLogsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "agent-1", nil)
	err := c.Logs(context.Background(), "task-1", []types.LogLine{{Level: "info", Message: "hello"}})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", got.AgentID)
	require.Len(t, got.Logs, 1)
	assert.Equal(t, "hello", got.Logs[0].Message)
}

func TestNonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "agent-1", nil)
	_, err := c.Register(context.Background(), "x")
	assert.Error(t, err)
}
