package oracle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStatic_GetYield(t *testing.T) {
	o := NewStatic()
	o.Set("corn", "RegionX", 2000, 450)

	y, err := o.GetYield(context.Background(), "corn", "RegionX", 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if y != 450 {
		t.Errorf("expected 450, got %d", y)
	}

	_, err = o.GetYield(context.Background(), "corn", "RegionX", 3000)
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}

	o.Delete("corn", "RegionX", 2000)
	if _, err := o.GetYield(context.Background(), "corn", "RegionX", 2000); !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData after delete, got %v", err)
	}
}

func newYieldServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/yield" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("crop") != "corn" || q.Get("region") != "Region X" || q.Get("season_end") != "2000" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient_Success(t *testing.T) {
	srv := newYieldServer(t, http.StatusOK, `{"yield":"4.50"}`)
	c := NewHTTPClient(srv.URL+"/", time.Second)

	y, err := c.GetYield(context.Background(), "corn", "Region X", 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if y != 450 {
		t.Errorf("expected 450, got %d", y)
	}
}

func TestHTTPClient_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		noData bool
	}{
		{"not found", http.StatusNotFound, `{}`, true},
		{"server error", http.StatusInternalServerError, `boom`, false},
		{"bad json", http.StatusOK, `{`, false},
		{"missing yield", http.StatusOK, `{}`, true},
		{"negative yield", http.StatusOK, `{"yield":"-1"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newYieldServer(t, tt.status, tt.body)
			c := NewHTTPClient(srv.URL, time.Second)

			_, err := c.GetYield(context.Background(), "corn", "Region X", 2000)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.noData && !errors.Is(err, ErrNoData) {
				t.Errorf("expected ErrNoData, got %v", err)
			}
		})
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewHTTPClient(url, 200*time.Millisecond)
	if _, err := c.GetYield(context.Background(), "corn", "Region X", 2000); err == nil {
		t.Error("expected error for unreachable oracle")
	}
}
