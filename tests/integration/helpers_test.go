//go:build integration && linux

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testClient struct {
	baseURL string
	apiKey  string
	userID  string
	client  *http.Client
}

func newTestClient(baseURL, apiKey string) *testClient {
	return &testClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		userID:  "integration-user",
		client:  &http.Client{},
	}
}

func (c *testClient) doRequest(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("X-User-ID", c.userID)

	resp, err := c.client.Do(req)
	require.NoError(t, err)
	return resp
}

func (c *testClient) createSession(t *testing.T) string {
	t.Helper()
	resp := c.doRequest(t, "POST", "/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "failed to create session")
	body := decodeResponse(t, resp)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)
	return id
}

// waitReady polls status until the session is ready or the deadline hits.
func (c *testClient) waitReady(t *testing.T, sessionID string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp := c.doRequest(t, "GET", fmt.Sprintf("/v1/sessions/%s/status", sessionID), nil)
		body := decodeResponse(t, resp)
		if ready, _ := body["ready"].(bool); ready {
			return
		}
		if state, _ := body["state"].(string); state == "error" {
			t.Fatalf("session entered error state: %v", body["error"])
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("session %s not ready after %s", sessionID, timeout)
}

func (c *testClient) writeFile(t *testing.T, sessionID, path, text string) {
	t.Helper()
	resp := c.doRequest(t, "POST", fmt.Sprintf("/v1/sessions/%s/files/write", sessionID), map[string]any{
		"path": path,
		"text": text,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func (c *testClient) readFile(t *testing.T, sessionID, path string) map[string]any {
	t.Helper()
	resp := c.doRequest(t, "POST", fmt.Sprintf("/v1/sessions/%s/files/read", sessionID), map[string]any{
		"path": path,
	})
	return decodeResponse(t, resp)
}

func (c *testClient) tree(t *testing.T, sessionID string) map[string]any {
	t.Helper()
	resp := c.doRequest(t, "POST", fmt.Sprintf("/v1/sessions/%s/files/tree", sessionID), map[string]any{})
	return decodeResponse(t, resp)
}

func (c *testClient) move(t *testing.T, sessionID, path, targetParent string) *http.Response {
	t.Helper()
	return c.doRequest(t, "POST", fmt.Sprintf("/v1/sessions/%s/files/move", sessionID), map[string]any{
		"path":          path,
		"target_parent": targetParent,
	})
}

func (c *testClient) terminateSession(t *testing.T, sessionID string, deleteVolume bool) {
	t.Helper()
	path := fmt.Sprintf("/v1/sessions/%s", sessionID)
	if deleteVolume {
		path += "?delete_volume=true"
	}
	resp := c.doRequest(t, "DELETE", path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	return result
}
