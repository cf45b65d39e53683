// Package coordclient is the agent's REST client for the coordinator's
// agent-facing HTTP surface (register, heartbeat, claim, complete, fail,
// logs) plus the reconnect-with-backoff run loop that drives a claim/scan
// cycle forever. It replaces the teacher's persistent gRPC connection
// manager with a plain poll-based HTTP client — the coordinator's surface
// is request/response, not streaming — while keeping the same
// exponential-backoff reconnect shape.
package coordclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"reconmc/shared/types"
)

// Client is a thin wrapper over net/http targeting one coordinator base
// URL. Agent endpoints carry no auth (trusted network, per the external
// interfaces section) so no credentials are attached to these requests.
type Client struct {
	httpClient *http.Client
	baseURL    string
	agentID    string
}

// NewClient returns a Client bound to baseURL (e.g. "http://coordinator:8080")
// using agentID as the caller identity on every request.
func NewClient(baseURL, agentID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, agentID: agentID}
}

func (c *Client) AgentID() string { return c.agentID }

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("coordclient: marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("coordclient: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("coordclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, fmt.Errorf("coordclient: %s %s: status %d: %s", method, path, resp.StatusCode, string(data))
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("coordclient: decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Register announces this agent to the coordinator.
func (c *Client) Register(ctx context.Context, name string) (*types.RegisterResponse, error) {
	var out types.RegisterResponse
	_, err := c.do(ctx, http.MethodPost, "/api/agents/register", types.RegisterRequest{AgentID: c.agentID, Name: name}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat reports liveness and (optionally) the queue item currently
// being worked.
func (c *Client) Heartbeat(ctx context.Context, status string, currentQueueID *string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/agents/heartbeat", types.HeartbeatRequest{
		AgentID:        c.agentID,
		Status:         status,
		CurrentQueueID: currentQueueID,
	}, nil)
	return err
}

// Claim requests one queue item. ok is false on a 204 (nothing pending
// for this agent's resource pool), not an error.
func (c *Client) Claim(ctx context.Context) (item *types.ClaimResponse, ok bool, err error) {
	var out types.ClaimResponse
	status, err := c.do(ctx, http.MethodPost, "/api/queue/claim", types.ClaimRequest{AgentID: c.agentID}, &out)
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNoContent {
		return nil, false, nil
	}
	return &out, true, nil
}

// Complete reports a finished scan's result bundle, including rotated
// Microsoft tokens when the auth chain refreshed them mid-scan.
func (c *Client) Complete(ctx context.Context, queueID string, result types.ScanResult, accessToken, refreshToken string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/queue/"+queueID+"/complete", types.CompleteRequest{
		Result:       result,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil)
	return err
}

// Fail reports a scan that never produced a result bundle — a failure
// outside the scan's own domain (SSRF reject, panic, context cancelled
// before any step ran).
func (c *Client) Fail(ctx context.Context, queueID, errorMessage string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/queue/"+queueID+"/fail", types.FailRequest{ErrorMessage: errorMessage}, nil)
	return err
}

// Logs flushes a batch of log lines captured during one scan.
func (c *Client) Logs(ctx context.Context, taskID string, logs []types.LogLine) error {
	if len(logs) == 0 {
		return nil
	}
	_, err := c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/logs", types.TaskLogsRequest{
		AgentID: c.agentID,
		Logs:    logs,
	}, nil)
	return err
}
