package fetcher

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/aluiziolira/go-msu-finder/config"
	"github.com/aluiziolira/go-msu-finder/models"
	"github.com/jarcoal/httpmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testTarget = models.HostTarget{Address: "157.56.148.23", VHost: "technet.microsoft.com"}

// scriptedTransport answers each attempt from a script and counts closes.
type scriptedTransport struct {
	script []error
	calls  int
	closes int
}

func (st *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	n := st.calls
	st.calls++
	if n < len(st.script) && st.script[n] != nil {
		return nil, st.script[n]
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": {"text/html"}},
		Body:       io.NopCloser(strings.NewReader("<html>ok</html>")),
		Request:    req,
	}, nil
}

func (st *scriptedTransport) CloseIdleConnections() {
	st.closes++
}

func newTestFetcher(rt http.RoundTripper, delays *[]time.Duration) *Fetcher {
	cfg := config.DefaultConfig()
	return New(cfg,
		WithTransport(func(models.HostTarget) http.RoundTripper { return rt }),
		WithSleep(func(_ context.Context, d time.Duration) error {
			if delays != nil {
				*delays = append(*delays, d)
			}
			return nil
		}),
	)
}

func TestFetchRetriesTransientThenSucceeds(t *testing.T) {
	reset := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	rt := &scriptedTransport{script: []error{reset, io.ErrUnexpectedEOF}}
	var delays []time.Duration
	f := newTestFetcher(rt, &delays)

	res, err := f.Fetch(context.Background(), models.FetchRequest{Target: testTarget, Path: "/"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected result: %d %q", res.StatusCode, res.Body)
	}
	if rt.calls != 3 {
		t.Fatalf("attempts = %d, want 3", rt.calls)
	}
	if rt.closes != 3 {
		t.Fatalf("closes = %d, want 3", rt.closes)
	}
	if len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 5*time.Second {
		t.Fatalf("delays = %v, want two 5s pauses", delays)
	}
	if f.Retries() != 2 || f.Requests() != 3 {
		t.Fatalf("retries/requests = %d/%d, want 2/3", f.Retries(), f.Requests())
	}
}

func TestFetchRecordsAttemptMetrics(t *testing.T) {
	reset := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	rt := &scriptedTransport{script: []error{reset}}
	metrics := NewMetrics()
	f := New(config.DefaultConfig(),
		WithTransport(func(models.HostTarget) http.RoundTripper { return rt }),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
		WithMetrics(metrics),
	)

	if _, err := f.Fetch(context.Background(), models.FetchRequest{Target: testTarget, Path: "/"}); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got := testutil.ToFloat64(metrics.RequestsTotal.WithLabelValues(testTarget.VHost)); got != 2 {
		t.Fatalf("requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.RetriesTotal); got != 1 {
		t.Fatalf("retries = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.ErrorsTotal.WithLabelValues("connection")); got != 1 {
		t.Fatalf("connection errors = %v, want 1", got)
	}
}

func TestFetchExhaustsRetryBudget(t *testing.T) {
	timeout := &net.DNSError{Err: "i/o timeout", IsTimeout: true}
	rt := &scriptedTransport{script: []error{timeout, timeout, timeout, nil}}
	f := newTestFetcher(rt, nil)

	_, err := f.Fetch(context.Background(), models.FetchRequest{Target: testTarget, Path: "/"})
	if !errors.Is(err, ErrNetworkFatal) {
		t.Fatalf("expected ErrNetworkFatal, got %v", err)
	}
	var fatal *NetworkFatalError
	if !errors.As(err, &fatal) || fatal.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %+v", fatal)
	}
	if errorTypeLabel(fatal.Err) != "timeout" {
		t.Fatalf("last error class = %q, want timeout", errorTypeLabel(fatal.Err))
	}
	if rt.calls != 3 || rt.closes != 3 {
		t.Fatalf("calls/closes = %d/%d, want 3/3", rt.calls, rt.closes)
	}
}

func TestFetchNonTransientFailsImmediately(t *testing.T) {
	rt := &scriptedTransport{script: []error{errors.New("malformed HTTP response")}}
	f := newTestFetcher(rt, nil)

	_, err := f.Fetch(context.Background(), models.FetchRequest{Target: testTarget, Path: "/"})
	if !errors.Is(err, ErrNetworkFatal) {
		t.Fatalf("expected ErrNetworkFatal, got %v", err)
	}
	if rt.calls != 1 || rt.closes != 1 {
		t.Fatalf("calls/closes = %d/%d, want 1/1", rt.calls, rt.closes)
	}
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	reset := &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}
	rt := &scriptedTransport{script: []error{reset, reset, reset}}
	cfg := config.DefaultConfig()
	ctx, cancel := context.WithCancel(context.Background())
	f := New(cfg,
		WithTransport(func(models.HostTarget) http.RoundTripper { return rt }),
		WithSleep(func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}),
	)

	if _, err := f.Fetch(ctx, models.FetchRequest{Target: testTarget, Path: "/"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if rt.calls != 1 {
		t.Fatalf("attempts = %d, want 1", rt.calls)
	}
}

func TestFetchReturnsRedirectUnfollowed(t *testing.T) {
	transport := httpmock.NewMockTransport()
	redirect := httpmock.NewStringResponse(http.StatusFound, "")
	redirect.Header.Set("Location", "/en-us/download/details.aspx?id=48687")
	transport.RegisterResponder("GET", "https://www.microsoft.com/downloads/details.aspx?familyid=abc",
		httpmock.ResponderFromResponse(redirect))

	f := newTestFetcher(transport, nil)
	res, err := f.Fetch(context.Background(), models.FetchRequest{
		Target: models.HostTarget{VHost: "www.microsoft.com"},
		Path:   "/downloads/details.aspx?familyid=abc",
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != http.StatusFound {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusFound)
	}
	if got := res.Location(); got != "/en-us/download/details.aspx?id=48687" {
		t.Fatalf("location = %q", got)
	}
	if transport.GetTotalCallCount() != 1 {
		t.Fatalf("expected a single call, got %d", transport.GetTotalCallCount())
	}
}

func TestFetchReturnsErrorStatusAsResult(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "https://technet.microsoft.com/en-us/library/security/ms99-999.aspx",
		httpmock.NewStringResponder(http.StatusNotFound, "We are sorry. The page you requested cannot be found"))

	f := newTestFetcher(transport, nil)
	res, err := f.Fetch(context.Background(), models.FetchRequest{Target: testTarget, Path: "/en-us/library/security/ms99-999.aspx"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.StatusCode != http.StatusNotFound || !strings.Contains(string(res.Body), "cannot be found") {
		t.Fatalf("unexpected result: %d %q", res.StatusCode, res.Body)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		expected  string
		transient bool
	}{
		{name: "nil", err: nil, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, expected: "timeout", transient: true},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, expected: "timeout", transient: true},
		{name: "reset", err: &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, expected: "connection", transient: true},
		{name: "dial", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")}, expected: "connection", transient: true},
		{name: "eof", err: io.EOF, expected: "eof", transient: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, expected: "eof", transient: true},
		{name: "tls record", err: tls.RecordHeaderError{Msg: "first record does not look like a TLS handshake"}, expected: "tls", transient: true},
		{name: "tls alert", err: tls.AlertError(40), expected: "tls", transient: true},
		{name: "cancelled", err: context.Canceled, expected: "other"},
		{name: "other", err: errors.New("some other error"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified, transient := classifyError(tt.err)
			if got := errorTypeLabel(classified); got != tt.expected {
				t.Fatalf("classifyError(%v) = %q, want %q", tt.err, got, tt.expected)
			}
			if transient != tt.transient {
				t.Fatalf("classifyError(%v) transient = %v, want %v", tt.err, transient, tt.transient)
			}
		})
	}
}

func TestPinnedTransportDialsPinnedAddress(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	accepted := make(chan struct{})
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
			close(accepted)
		}
	}()

	_, port, _ := net.SplitHostPort(listener.Addr().String())
	transport := NewPinnedTransport(models.HostTarget{Address: "127.0.0.1", VHost: "www.microsoft.com"}, time.Second)
	defer transport.CloseIdleConnections()

	if transport.TLSClientConfig.ServerName != "www.microsoft.com" {
		t.Fatalf("server name = %q", transport.TLSClientConfig.ServerName)
	}
	conn, err := transport.DialContext(context.Background(), "tcp", net.JoinHostPort("www.microsoft.com", port))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatalf("pinned address never received a connection")
	}
}

func TestLimiterIsSharedPerHost(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RequestsPerSecond = 1
	f := New(cfg)

	a := f.limiterFor(models.HostTarget{VHost: "www.microsoft.com"})
	b := f.limiterFor(models.HostTarget{Address: "10.0.0.1", VHost: "www.microsoft.com"})
	c := f.limiterFor(models.HostTarget{VHost: "technet.microsoft.com"})
	if a != b {
		t.Fatalf("expected one limiter per vhost")
	}
	if a == c {
		t.Fatalf("expected distinct limiters for distinct hosts")
	}
}
