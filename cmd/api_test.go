package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/infra-sim/infra-sim/sim/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI(t *testing.T) (*game.Game, http.Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g, err := game.New(testGameConfig())
	require.NoError(t, err)
	t.Cleanup(g.Pause)
	return g, newRouter(g)
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

const computeJSON = `{"provider":"aws","type":"compute","capacity":500,"base_cost":1}`

func TestAPI_DeployAndRemove(t *testing.T) {
	_, h := newTestAPI(t)

	rec, resp := do(t, h, http.MethodPost, "/v1/services", computeJSON)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "aws-compute-1", resp["id"])

	rec, _ = do(t, h, http.MethodDelete, "/v1/services/aws-compute-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/v1/services/aws-compute-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// TestAPI_DeployRejected verifies a configuration error maps to 400 with the
// violation list.
func TestAPI_DeployRejected(t *testing.T) {
	_, h := newTestAPI(t)

	rec, resp := do(t, h, http.MethodPost, "/v1/services", `{"provider":"aws","type":"compute","capacity":0}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, resp["violations"], 1)

	rec, _ = do(t, h, http.MethodPost, "/v1/services", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_TickStatusHealthCost(t *testing.T) {
	_, h := newTestAPI(t)
	do(t, h, http.MethodPost, "/v1/services", computeJSON)

	rec, resp := do(t, h, http.MethodPost, "/v1/tick?n=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3.0, resp["ticks"])

	rec, _ = do(t, h, http.MethodPost, "/v1/tick?n=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	_, status := do(t, h, http.MethodGet, "/v1/status", "")
	assert.Equal(t, 3.0, status["tick"])
	assert.Equal(t, "running", status["state"])
	metrics := status["metrics"].(map[string]any)
	assert.Equal(t, 100.0, metrics["availability"])

	_, health := do(t, h, http.MethodGet, "/v1/health", "")
	assert.Equal(t, 1.0, health["healthy"])

	rec, cost := do(t, h, http.MethodGet, "/v1/cost", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, cost["by_provider"], "aws")

	_, tr := do(t, h, http.MethodGet, "/v1/trace", "")
	assert.Contains(t, tr, "summary")
}

func TestAPI_SpikeAndAttack(t *testing.T) {
	_, h := newTestAPI(t)

	rec, _ := do(t, h, http.MethodPost, "/v1/spike", `{"multiplier":0.5,"duration_seconds":10}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp := do(t, h, http.MethodPost, "/v1/spike", `{"multiplier":4,"duration_seconds":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 4.0, resp["spike_multiplier"])

	rec, _ = do(t, h, http.MethodPost, "/v1/attack", `{"vector":"ddos","duration_seconds":5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, h, http.MethodPost, "/v1/attack", `{"vector":"flood","duration_seconds":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "flood", resp["attack"].(map[string]any)["vector"])
}

func TestAPI_StartPauseReset(t *testing.T) {
	g, h := newTestAPI(t)

	rec, resp := do(t, h, http.MethodPost, "/v1/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["running"])

	_, resp = do(t, h, http.MethodPost, "/v1/pause", "")
	assert.Equal(t, false, resp["running"])

	before := g.SessionID()
	_, resp = do(t, h, http.MethodPost, "/v1/reset", "")
	assert.NotEqual(t, before, resp["session_id"])

	// no services: the first tick ends the game and start is refused
	do(t, h, http.MethodPost, "/v1/tick", "")
	rec, _ = do(t, h, http.MethodPost, "/v1/start", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_Metrics(t *testing.T) {
	g, h := newTestAPI(t)
	g.Subscribe(recordEvent)
	do(t, h, http.MethodPost, "/v1/services", computeJSON)
	do(t, h, http.MethodPost, "/v1/tick", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "infrasim_ticks_total")
	assert.Contains(t, body, `infrasim_service_load{provider="aws",service="aws-compute-1",type="compute"}`)
	assert.Contains(t, body, "infrasim_http_request_duration_seconds")
}

// TestAPI_EventStream verifies notifications reach a websocket client,
// filtered by type.
func TestAPI_EventStream(t *testing.T) {
	_, h := newTestAPI(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events?types=service_deployed"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp, err := http.Post(srv.URL+"/v1/services", "application/json", bytes.NewBufferString(computeJSON))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev map[string]any
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "service_deployed", ev["type"])
	assert.Equal(t, "aws-compute-1", ev["payload"].(map[string]any)["id"])
}
