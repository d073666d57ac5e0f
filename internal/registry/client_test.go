package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestClient_Lookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/devices/dev-1":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"device_id":"dev-1","house_id":"h-1","location_id":"l-1","device_name":"Hall thermostat"}`)) //nolint:errcheck // test server
		case "/api/v1/devices/no-id":
			w.Write([]byte(`{"house_id":"h-2"}`)) //nolint:errcheck // test server
		case "/api/v1/devices/broken":
			w.Write([]byte(`{not json`)) //nolint:errcheck // test server
		case "/api/v1/devices/boom":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)

	tests := []struct {
		name      string
		id        string
		wantHouse string
		wantErr   error
	}{
		{"found", "dev-1", "h-1", nil},
		{"id filled from request", "no-id", "h-2", nil},
		{"not found", "missing", "", ErrDeviceNotFound},
		{"server error", "boom", "", ErrUnavailable},
		{"bad body", "broken", "", ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Lookup(context.Background(), tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Lookup() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if got.HouseID != tt.wantHouse || got.DeviceID != tt.id {
				t.Errorf("Lookup() = %+v", got)
			}
		})
	}
}

func TestClient_LookupTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(srv.URL, 50*time.Millisecond)
	if _, err := c.Lookup(context.Background(), "slow"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Lookup() error = %v, want ErrUnavailable", err)
	}
}

func TestClient_LookupUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	if _, err := NewClient(addr, time.Second).Lookup(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Lookup() error = %v, want ErrUnavailable", err)
	}
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	if c := NewClient("http://registry", 0); c.httpClient.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
	}
}
