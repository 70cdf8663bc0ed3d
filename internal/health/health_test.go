package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/sprachcoach/internal/health"
)

func doRequest(t *testing.T, h http.HandlerFunc, path string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	res := rec.Result()
	t.Cleanup(func() { res.Body.Close() })

	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return res, body
}

func TestHealthz_AlwaysOK(t *testing.T) {
	t.Parallel()
	h := health.New()

	res, body := doRequest(t, h.Healthz, "/healthz")
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want 200", res.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v; want ok", body["status"])
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	t.Parallel()
	h := health.New(
		health.Checker{Name: "credentials", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "capture", Check: func(context.Context) error { return nil }},
	)

	res, body := doRequest(t, h.Readyz, "/readyz")
	if res.StatusCode != http.StatusOK {
		t.Errorf("status = %d; want 200", res.StatusCode)
	}
	checks, _ := body["checks"].(map[string]any)
	if checks["credentials"] != "ok" || checks["capture"] != "ok" {
		t.Errorf("checks = %v; want all ok", checks)
	}
}

func TestReadyz_FailingChecker_503(t *testing.T) {
	t.Parallel()
	h := health.New(
		health.Checker{Name: "good", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "bad", Check: func(context.Context) error { return errors.New("missing key") }},
	)

	res, body := doRequest(t, h.Readyz, "/readyz")
	if res.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d; want 503", res.StatusCode)
	}
	if body["status"] != "fail" {
		t.Errorf("status field = %v; want fail", body["status"])
	}
	checks, _ := body["checks"].(map[string]any)
	if checks["bad"] != "fail: missing key" {
		t.Errorf("bad check = %v; want fail: missing key", checks["bad"])
	}
	if checks["good"] != "ok" {
		t.Errorf("good check = %v; want ok", checks["good"])
	}
}

func TestRegister_RoutesBothEndpoints(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	health.New().Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	for _, path := range []string{"/healthz", "/readyz"} {
		res, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		res.Body.Close()
		if res.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d; want 200", path, res.StatusCode)
		}
	}
}
