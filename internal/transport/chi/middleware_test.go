package chi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestJSONRecoverer(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	h := jsonRecoverer(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/boom", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	if errResp := decode[ErrorResponse](t, rr); errResp.Code != ErrorCodeInternalError {
		t.Errorf("error code: got %s", errResp.Code)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Error("expected panic to be logged")
	}
}

func TestWideEventMiddleware_LogsOneLine(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := wideEventMiddleware(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/health", http.NoBody))

	entries := logs.FilterMessage("http_request").All()
	if len(entries) != 1 {
		t.Fatalf("expected one canonical line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(http.StatusTeapot) || fields["path"] != "/health" {
		t.Errorf("unexpected fields %v", fields)
	}
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer()
	rr := do(t, ts.handler(), "OPTIONS", "/query-auth", "", map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Method":  "POST",
		"Access-Control-Request-Headers": "authorization, content-type",
	})

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want %d", rr.Code, http.StatusOK)
	}
	h := rr.Header()
	if h.Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Errorf("allow origin: got %q", h.Get("Access-Control-Allow-Origin"))
	}
	if !strings.EqualFold(h.Get("Access-Control-Allow-Headers"), "authorization, content-type") {
		t.Errorf("allow headers: got %q", h.Get("Access-Control-Allow-Headers"))
	}
	if !strings.Contains(h.Get("Access-Control-Allow-Methods"), http.MethodPost) {
		t.Errorf("allow methods: got %q", h.Get("Access-Control-Allow-Methods"))
	}
	if h.Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials to be allowed")
	}
}

func TestCORS_SimpleRequest(t *testing.T) {
	ts := newTestServer()
	rr := do(t, ts.handler(), "GET", "/health", "", map[string]string{"Origin": "https://example.org"})
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://example.org" {
		t.Errorf("allow origin: got %q", got)
	}
	if rr.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("expected credentials to be allowed")
	}
}

func TestCORS_NoOrigin(t *testing.T) {
	ts := newTestServer()
	rr := do(t, ts.handler(), "GET", "/health", "", nil)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected CORS header %q", got)
	}
}
