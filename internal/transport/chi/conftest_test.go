package chi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kailas-cloud/rulebook/internal/repository/querylog"
	healthuc "github.com/kailas-cloud/rulebook/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/rulebook/internal/usecase/ingest"
	pipelineuc "github.com/kailas-cloud/rulebook/internal/usecase/pipeline"
)

type fakeAuth struct {
	subjectFn func(header string) (string, error)
	loginFn   func(username, password string) (string, error)
}

func (f *fakeAuth) SubjectFromHeader(header string) (string, error) { return f.subjectFn(header) }
func (f *fakeAuth) Login(username, password string) (string, error) { return f.loginFn(username, password) }

type fakeIngester struct {
	calls int
	res   ingestuc.Result
}

func (f *fakeIngester) IngestFile(context.Context) ingestuc.Result {
	f.calls++
	return f.res
}

type fakeAnswerer struct {
	answerFn func(ctx context.Context, subject, query string) (pipelineuc.Response, error)
}

func (f *fakeAnswerer) Answer(ctx context.Context, subject, query string) (pipelineuc.Response, error) {
	return f.answerFn(ctx, subject, query)
}

type fakeHistory struct {
	gotUser  string
	gotLimit int
	entries  []querylog.Entry
	err      error
}

func (f *fakeHistory) List(_ context.Context, userID string, limit int) ([]querylog.Entry, error) {
	f.gotUser, f.gotLimit = userID, limit
	return f.entries, f.err
}

type fakeHealth struct {
	report healthuc.Report
}

func (f *fakeHealth) Check(context.Context) healthuc.Report { return f.report }

// tokenAuth accepts "Bearer good-<subject>" and rejects any other bearer token.
func tokenAuth() *fakeAuth {
	return &fakeAuth{
		subjectFn: func(header string) (string, error) {
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return "", errBadHeader
			}
			subject, ok := strings.CutPrefix(token, "good-")
			if !ok {
				return "", errBadToken
			}
			return subject, nil
		},
		loginFn: func(string, string) (string, error) { return "", errBadHeader },
	}
}

type testServer struct {
	auth    *fakeAuth
	ingest  *fakeIngester
	answers *fakeAnswerer
	history *fakeHistory
	health  *fakeHealth
}

func newTestServer() *testServer {
	return &testServer{
		auth:   tokenAuth(),
		ingest: &fakeIngester{res: ingestuc.Result{Status: ingestuc.StatusSuccess, ChunksAdded: 2, Message: "ok"}},
		answers: &fakeAnswerer{answerFn: func(_ context.Context, _, query string) (pipelineuc.Response, error) {
			return pipelineuc.Response{Query: query, Result: "answer", ContextChunks: []string{}, LogStatus: "logged"}, nil
		}},
		history: &fakeHistory{},
		health:  &fakeHealth{report: healthuc.Report{Status: healthuc.Healthy, Checks: map[string]healthuc.CheckResult{}}},
	}
}

func (ts *testServer) handler(opts ...Option) http.Handler {
	return NewServer(ts.auth, ts.ingest, ts.answers, ts.history, ts.health, nil, opts...).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rr.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
	return v
}
