// ABOUTME: Tests for the request dispatcher against an httptest server
// ABOUTME: Covers header computation, body encoding, precedence, cookies and error taxonomy

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/gatekeeper/internal/metrics"
	"github.com/2389/gatekeeper/internal/session"
)

// captured is what the test server saw.
type captured struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// newCaptureServer records every request and answers with status.
func newCaptureServer(t *testing.T, status int) (*httptest.Server, func() captured) {
	t.Helper()
	var mu sync.Mutex
	var last captured

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		last = captured{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body}
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	}))
	t.Cleanup(srv.Close)

	return srv, func() captured {
		mu.Lock()
		defer mu.Unlock()
		return last
	}
}

func newTestDispatcher(t *testing.T, baseURL string, sess session.Session, opts ...Option) *Dispatcher {
	t.Helper()
	opts = append([]Option{WithBaseURL(baseURL)}, opts...)
	d, err := New(session.NewMemoryStore(sess), opts...)
	require.NoError(t, err)
	return d
}

func TestDispatch_JSONBodyWithToken(t *testing.T) {
	srv, last := newCaptureServer(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL+"/api", session.Session{Token: "t1", Role: session.RoleUser})

	resp, err := d.Dispatch(context.Background(), "/reserve", Options{
		Method: http.MethodPost,
		Body:   map[string]int{"a": 1},
	})
	require.NoError(t, err)
	resp.Body.Close()

	got := last()
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api/reserve", got.Path)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer t1", got.Header.Get("Authorization"))
	assert.JSONEq(t, `{"a":1}`, string(got.Body))
}

func TestDispatch_NoTokenNoAuthorization(t *testing.T) {
	srv, last := newCaptureServer(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, session.Session{Role: session.RoleAdmin})

	resp, err := d.Get(context.Background(), "/available-lots")
	require.NoError(t, err)
	resp.Body.Close()

	got := last()
	assert.Empty(t, got.Header.Get("Authorization"))
	assert.Empty(t, got.Header.Get("Content-Type"), "no body, no content type")
	assert.Equal(t, http.MethodGet, got.Method, "method defaults to GET")
}

func TestDispatch_MultipartFormKeepsBoundary(t *testing.T) {
	srv, last := newCaptureServer(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, session.Session{Token: "t1"})

	form := NewForm().Set("lot", "A").AddFile("receipt", "r.txt", strings.NewReader("paid"))
	resp, err := d.Dispatch(context.Background(), "/upload", Options{Method: http.MethodPost, Body: form})
	require.NoError(t, err)
	resp.Body.Close()

	got := last()
	ct := got.Header.Get("Content-Type")
	assert.True(t, strings.HasPrefix(ct, "multipart/form-data; boundary="), "got %q", ct)
	assert.NotContains(t, ct, "application/json")
	assert.Contains(t, string(got.Body), "paid")
	assert.Equal(t, "Bearer t1", got.Header.Get("Authorization"))
}

func TestDispatch_URLValues(t *testing.T) {
	srv, last := newCaptureServer(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, session.Session{})

	resp, err := d.Dispatch(context.Background(), "/search", Options{
		Method: http.MethodPost,
		Body:   url.Values{"q": {"lot a"}},
	})
	require.NoError(t, err)
	resp.Body.Close()

	got := last()
	assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
	assert.Equal(t, "q=lot+a", string(got.Body))
}

func TestDispatch_CallerContentTypeWins(t *testing.T) {
	srv, last := newCaptureServer(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, session.Session{})

	resp, err := d.Dispatch(context.Background(), "/export-csv", Options{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"text/csv"}},
		Body:   "lot,spots\nA,10\n",
	})
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "text/csv", last().Header.Get("Content-Type"))
}

func TestDispatch_PreEncodedBodyDefaultsToJSON(t *testing.T) {
	srv, last := newCaptureServer(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, session.Session{})

	resp, err := d.Dispatch(context.Background(), "/login", Options{
		Method: http.MethodPost,
		Body:   `{"email":"a@b.c"}`,
	})
	require.NoError(t, err)
	resp.Body.Close()

	got := last()
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, `{"email":"a@b.c"}`, string(got.Body), "strings are sent verbatim")
}

func TestDispatch_AuthorizationPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		precedence Precedence
		session    session.Session
		want       string
	}{
		{name: "session wins by default", precedence: PrecedenceSession, session: session.Session{Token: "t1"}, want: "Bearer t1"},
		{name: "caller wins when configured", precedence: PrecedenceCaller, session: session.Session{Token: "t1"}, want: "Basic abc"},
		{name: "caller kept without token", precedence: PrecedenceSession, session: session.Session{}, want: "Basic abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDispatcher(t, "http://example.test", tt.session, WithPrecedence(tt.precedence))

			// lowercase key: must still be recognized as the caller's Authorization
			req, err := d.NewRequest(context.Background(), "/x", Options{
				Header: http.Header{"authorization": {"Basic abc"}},
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, req.Header.Get("Authorization"))
			assert.Len(t, req.Header.Values("Authorization"), 1)
		})
	}
}

func TestDispatch_CallerPrecedenceAddsBearerWhenAbsent(t *testing.T) {
	d := newTestDispatcher(t, "http://example.test", session.Session{Token: "t1"}, WithPrecedence(PrecedenceCaller))

	req, err := d.NewRequest(context.Background(), "/x", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer t1", req.Header.Get("Authorization"))
}

func TestDispatch_CallerHeadersAreNotMutated(t *testing.T) {
	d := newTestDispatcher(t, "http://example.test", session.Session{Token: "t1"})
	callerHeader := http.Header{"X-Trace": {"abc"}}

	req, err := d.NewRequest(context.Background(), "/x", Options{Header: callerHeader, Method: http.MethodPost, Body: map[string]any{}})
	require.NoError(t, err)

	assert.Equal(t, "abc", req.Header.Get("X-Trace"))
	assert.Empty(t, callerHeader.Get("Authorization"))
	assert.Empty(t, callerHeader.Get("Content-Type"))
}

func TestDispatch_ReadsTokenAtCallTime(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore(session.Session{})
	d, err := New(store, WithBaseURL("http://example.test"))
	require.NoError(t, err)

	req, err := d.NewRequest(ctx, "/x", Options{})
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Authorization"))

	require.NoError(t, store.Set(ctx, session.Session{Token: "fresh", Role: session.RoleUser}))
	req, err = d.NewRequest(ctx, "/x", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer fresh", req.Header.Get("Authorization"))
}

func TestDispatch_HTTPErrorsAreResults(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusInternalServerError} {
		srv, _ := newCaptureServer(t, status)
		d := newTestDispatcher(t, srv.URL, session.Session{Token: "t1"})

		resp, err := d.Get(context.Background(), "/users")
		require.NoError(t, err, "status %d", status)
		assert.Equal(t, status, resp.StatusCode)
		resp.Body.Close()
	}
}

func TestDispatch_TransportFailure(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusOK)
	base := srv.URL
	srv.Close()

	d := newTestDispatcher(t, base, session.Session{})
	_, err := d.Get(context.Background(), "/x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDispatch_CancellationPassesThrough(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	d := newTestDispatcher(t, srv.URL, session.Session{})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := d.Get(ctx, "/slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatch_UnencodableBody(t *testing.T) {
	d := newTestDispatcher(t, "http://example.test", session.Session{})

	_, err := d.Dispatch(context.Background(), "/x", Options{Method: http.MethodPost, Body: math.Inf(1)})
	assert.ErrorIs(t, err, ErrEncodeBody)

	_, err = d.Dispatch(context.Background(), "/x", Options{Method: http.MethodPost, Body: make(chan int)})
	assert.ErrorIs(t, err, ErrEncodeBody)
}

func TestDispatch_GetWithBodyRejected(t *testing.T) {
	d := newTestDispatcher(t, "http://example.test", session.Session{})

	_, err := d.Dispatch(context.Background(), "/x", Options{Body: map[string]int{"a": 1}})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestDispatch_SendsCookiesBack(t *testing.T) {
	var sawCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "s3cret", Path: "/"})
		default:
			if c, err := r.Cookie("session"); err == nil {
				sawCookie = c.Value
			}
		}
	}))
	defer srv.Close()

	// A caller-supplied client without a jar still gets cookies
	d := newTestDispatcher(t, srv.URL, session.Session{}, WithHTTPClient(&http.Client{}))
	require.NotNil(t, d.Client().Jar)

	resp, err := d.PostJSON(context.Background(), "/login", map[string]string{"email": "a@b.c"})
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = d.Get(context.Background(), "/profile")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "s3cret", sawCookie)
}

func TestDispatch_RequestIDHeader(t *testing.T) {
	srv, last := newCaptureServer(t, http.StatusOK)
	d := newTestDispatcher(t, srv.URL, session.Session{}, WithRequestIDHeader("X-Request-Id"))

	resp, err := d.Get(context.Background(), "/x")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Len(t, last().Header.Get("X-Request-Id"), 36)
}

func TestDispatch_RecordsMetrics(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusNotFound)
	reg := prometheus.NewRegistry()
	d := newTestDispatcher(t, srv.URL, session.Session{}, WithMetrics(metrics.New(metrics.WithRegistry(reg))))

	resp, err := d.Get(context.Background(), "/missing")
	require.NoError(t, err)
	resp.Body.Close()

	count, err := testutil.GatherAndCount(reg, "gatekeeper_dispatch_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDispatch_DefaultBaseURL(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, d.BaseURL())

	req, err := d.NewRequest(context.Background(), "/auth/login", Options{})
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:5000/api/auth/login", req.URL.String())
	assert.Empty(t, req.Header.Get("Authorization"), "nil store is anonymous")
}

func TestParsePrecedence(t *testing.T) {
	p, err := ParsePrecedence("")
	require.NoError(t, err)
	assert.Equal(t, PrecedenceSession, p)

	p, err = ParsePrecedence(" Caller ")
	require.NoError(t, err)
	assert.Equal(t, PrecedenceCaller, p)
	assert.Equal(t, "caller", p.String())

	_, err = ParsePrecedence("both")
	require.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusCreated)
	d := newTestDispatcher(t, srv.URL, session.Session{})

	resp, err := d.PostJSON(context.Background(), "/register", map[string]string{"email": "a@b.c"})
	require.NoError(t, err)

	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, DecodeJSON(resp, &body))
	assert.Equal(t, "ok", body.Message)
}

func TestDecodeJSON_Malformed(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusBadGateway, Body: io.NopCloser(strings.NewReader("<html>"))}
	var v map[string]any
	err := DecodeJSON(resp, &v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	big := `{"lots":"` + strings.Repeat("x", maxDecodeBytes) + `"}`
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(big))}
	var v map[string]any
	err := DecodeJSON(resp, &v)
	require.ErrorIs(t, err, ErrResponseTooLarge)

	var syntaxErr *json.SyntaxError
	assert.False(t, errors.As(err, &syntaxErr))
}

func TestDecodeJSON_AtLimit(t *testing.T) {
	body := `"` + strings.Repeat("x", maxDecodeBytes-2) + `"`
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}
	var v string
	require.NoError(t, DecodeJSON(resp, &v))
	assert.Len(t, v, maxDecodeBytes-2)
}
