package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/ledger-harness/server/api/middleware"
)

func newTestServer(t *testing.T, cors bool) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.CORS = cors
	s := NewServer(cfg, zerolog.Nop())
	s.Router.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.Router.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, "not_found", "block not found", map[string]int{"height": 9})
	})
	s.Router.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	return s
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, false).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "abc-123", rec.Header().Get(middleware.RequestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ok", nil))
	require.Len(t, rec.Header().Get(middleware.RequestIDHeader), 36)
}

func TestWriteErrorEnvelope(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, false).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-1")
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)["error"].(map[string]any)
	require.Equal(t, "not_found", body["code"])
	require.Equal(t, "req-1", body["request_id"])
	require.Equal(t, map[string]any{"height": float64(9)}, body["details"])
}

func TestRecoverReturnsJSON500(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, false).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)["error"].(map[string]any)
	require.Equal(t, "internal", body["code"])
	require.NotEmpty(t, body["request_id"])
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	h := newTestServer(t, true).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	h.ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestStartServesUntilCancelled(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Listen(ctx))

	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	resp, err := http.Get("http://" + s.Addr() + "/ok")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())
	require.Error(t, Config{}.Validate())
	require.Error(t, Config{ListenAddr: ":1", MaxHeaderBytes: -1}.Validate())
}
