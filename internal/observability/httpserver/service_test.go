package httpserver

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	logx "stockalert/pkg/logx"
)

func TestHealthAndStatus(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(),
		func(context.Context) any { return map[string]int{"alerts_fired": 3} },
		nil,
	)
	srv := httptest.NewServer(s.Handler(Config{}))
	defer srv.Close()

	res, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", res.StatusCode)
	}

	res, err = http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	defer res.Body.Close()
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(res.Body)
	if !strings.Contains(buf.String(), `"alerts_fired": 3`) {
		t.Fatalf("status body=%q", buf.String())
	}

	res, err = http.Get(srv.URL + "/debug/pprof/")
	if err != nil {
		t.Fatalf("pprof: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("pprof should be off, status=%d", res.StatusCode)
	}
}

func TestUnhealthy(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil, func(context.Context) error { return errors.New("store closed") })
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cfg := Config{Token: "s3cret", Pprof: true}
	h := New(cfg, logx.Nop(), nil, nil).Handler(cfg)

	cases := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/healthz", "", http.StatusUnauthorized},
		{"wrong", "/healthz", "Bearer nope", http.StatusUnauthorized},
		{"header", "/healthz", "Bearer s3cret", http.StatusOK},
		{"query", "/healthz?token=s3cret", "", http.StatusOK},
		{"pprof", "/debug/pprof/", "Bearer s3cret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: code=%d want %d", tc.name, rec.Code, tc.want)
		}
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"127.0.0.1:8080": true,
		"localhost:80":   true,
		"[::1]:1":        true,
		":8080":          false,
		"0.0.0.0:8080":   false,
		"bogus":          false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("%s: got %v", addr, got)
		}
	}
}
