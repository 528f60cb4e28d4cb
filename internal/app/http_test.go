package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t      *testing.T
	server *httptest.Server
}

func newAPIClient(t *testing.T, svc *Service) *apiClient {
	t.Helper()
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	t.Cleanup(server.Close)
	return &apiClient{t: t, server: server}
}

func (c *apiClient) do(method, path, token string, body any) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.server.URL+path, reader)
	require.NoError(c.t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(c.t, err)
	payload := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(c.t, json.Unmarshal(raw, &payload))
	}
	return res.StatusCode, payload
}

func (c *apiClient) list(path, token string) (int, []map[string]any) {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.server.URL+path, nil)
	require.NoError(c.t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer res.Body.Close()

	var items []map[string]any
	require.NoError(c.t, json.NewDecoder(res.Body).Decode(&items))
	return res.StatusCode, items
}

func (c *apiClient) signupAndLogin(name, email string) (userID, token string) {
	c.t.Helper()
	status, profile := c.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": name, "email": email, "password": "correct-horse",
	})
	require.Equal(c.t, http.StatusCreated, status)
	status, session := c.do(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": email, "password": "correct-horse",
	})
	require.Equal(c.t, http.StatusOK, status)
	return profile["userId"].(string), session["token"].(string)
}

func TestHealthAndReady(t *testing.T) {
	svc, _ := newTestService(t)
	client := newAPIClient(t, svc)

	status, body := client.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ok"])

	status, body = client.do(http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
}

func TestReadyReportsContentOutage(t *testing.T) {
	svc, _, _, contents := newFaultyService(t)
	contents.pingFn = func(context.Context) error { return errors.New("bucket offline") }
	client := newAPIClient(t, svc)

	status, body := client.do(http.MethodGet, "/api/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "ok", checks["metadata"].(map[string]any)["status"])
	contentCheck := checks["content"].(map[string]any)
	assert.Equal(t, "error", contentCheck["status"])
	assert.NotContains(t, contentCheck, "error")
}

func TestMetricsEndpoint(t *testing.T) {
	svc, _ := newTestService(t)
	client := newAPIClient(t, svc)
	client.do(http.MethodGet, "/api/health", "", nil)

	res, err := http.Get(client.server.URL + "/metrics")
	require.NoError(t, err)
	defer res.Body.Close()
	raw, _ := io.ReadAll(res.Body)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, strings.Contains(string(raw), "http_requests_total"), "metrics output: %s", raw)
}

func TestAuthRoutes(t *testing.T) {
	svc, _ := newTestService(t)
	client := newAPIClient(t, svc)
	userID, token := client.signupAndLogin("Ada", "ada@example.com")

	status, me := client.do(http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, userID, me["userId"])

	status, body := client.do(http.MethodPost, "/api/auth/signup", "", map[string]any{
		"name": "Ada", "email": "ada@example.com", "password": "correct-horse",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", body["code"])

	status, _ = client.do(http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "ada@example.com", "password": "nope-nope-nope",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = client.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = client.do(http.MethodGet, "/api/documents/owned", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestDocumentRoutes(t *testing.T) {
	svc, _ := newTestService(t)
	client := newAPIClient(t, svc)
	_, ownerToken := client.signupAndLogin("Ada", "ada@example.com")
	viewerID, viewerToken := client.signupAndLogin("Bo", "bo@example.com")

	status, body := client.do(http.MethodPost, "/api/documents", ownerToken, map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])

	status, body = client.do(http.MethodPost, "/api/documents", ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])
	assert.Equal(t, "Document title is required.", body["message"])

	status, body = client.do(http.MethodPost, "/api/documents", ownerToken, "not-an-object")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_ARGUMENT", body["code"])

	status, created := client.do(http.MethodPost, "/api/documents", ownerToken, map[string]any{"title": "Plan"})
	require.Equal(t, http.StatusCreated, status)
	docID := created["docId"].(string)

	status, _ = client.do(http.MethodPut, "/api/documents/"+docID, ownerToken, map[string]any{"content": "hello"})
	require.Equal(t, http.StatusOK, status)

	status, _ = client.do(http.MethodGet, "/api/documents/"+docID, viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, shared := client.do(http.MethodPost, "/api/documents/"+docID+"/share", ownerToken, map[string]any{
		"email": "bo@example.com", "permission": "view",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, viewerID, shared["userId"])

	status, doc := client.do(http.MethodGet, "/api/documents/"+docID, viewerToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "hello", doc["content"])

	status, items := client.list("/api/documents/shared", viewerToken)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, items, 1)
	assert.Equal(t, "view", items[0]["permission"])

	status, collaborators := client.list("/api/documents/"+docID+"/collaborators", viewerToken)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, collaborators, 2)
	assert.Equal(t, "owner", collaborators[0]["permission"])

	status, _ = client.do(http.MethodPut, "/api/documents/"+docID+"/share/"+viewerID, ownerToken, map[string]any{"permission": "edit"})
	assert.Equal(t, http.StatusOK, status)

	status, _ = client.do(http.MethodGet, "/api/documents/missing", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = client.do(http.MethodDelete, "/api/documents/"+docID+"/share/"+viewerID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = client.do(http.MethodGet, "/api/documents/"+docID, viewerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = client.do(http.MethodDelete, "/api/documents/"+docID, ownerToken, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = client.do(http.MethodGet, "/api/documents/"+docID, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestVersionRoutes(t *testing.T) {
	svc, _ := newTestService(t)
	client := newAPIClient(t, svc)
	_, token := client.signupAndLogin("Ada", "ada@example.com")

	_, created := client.do(http.MethodPost, "/api/documents", token, map[string]any{"title": "Plan"})
	docID := created["docId"].(string)
	client.do(http.MethodPut, "/api/documents/"+docID, token, map[string]any{"content": "v1"})

	status, snapshot := client.do(http.MethodPost, "/api/documents/"+docID+"/versions", token, nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(1), snapshot["version"])

	status, got := client.do(http.MethodGet, "/api/documents/"+docID+"/versions/1", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "v1", got["content"])

	status, items := client.list("/api/documents/"+docID+"/versions", token)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, items, 1)

	status, _ = client.do(http.MethodGet, "/api/documents/"+docID+"/versions/zero", token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = client.do(http.MethodGet, "/api/documents/"+docID+"/versions/9", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStoreFailureHidesCause(t *testing.T) {
	svc, _, _, contents := newFaultyService(t)
	client := newAPIClient(t, svc)
	_, token := client.signupAndLogin("Ada", "ada@example.com")

	_, created := client.do(http.MethodPost, "/api/documents", token, map[string]any{"title": "Plan"})
	docID := created["docId"].(string)
	contents.readFn = func(context.Context, string) (string, error) {
		return "", errors.New("dial tcp 10.0.0.7:9000: connection refused")
	}

	status, body := client.do(http.MethodGet, "/api/documents/"+docID, token, nil)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "STORE_UNAVAILABLE", body["code"])
	assert.NotContains(t, body["message"], "10.0.0.7")
}
