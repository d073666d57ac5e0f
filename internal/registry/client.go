package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single lookup.
const DefaultTimeout = 10 * time.Second

// maxBodyBytes caps how much of a registry response is read.
const maxBodyBytes = 1 << 20

// Device is the subset of the registry's device record used here.
type Device struct {
	DeviceID        string  `json:"device_id"`
	HouseID         string  `json:"house_id"`
	LocationID      string  `json:"location_id"`
	DeviceName      string  `json:"device_name"`
	FirmwareVersion *string `json:"firmware_version,omitempty"`
	IsOnline        bool    `json:"is_online"`
}

// Lookup resolves a device id against the registry.
type Lookup interface {
	Lookup(ctx context.Context, deviceID string) (Device, error)
}

// Client is an HTTP Lookup.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a registry client for baseURL. A non-positive timeout
// selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Lookup fetches a device from the registry.
//
// Returns:
//   - Device: The registry record
//   - error: ErrDeviceNotFound on 404, ErrUnavailable for anything else that
//     is not a decodable 200 response
func (c *Client) Lookup(ctx context.Context, deviceID string) (Device, error) {
	endpoint := c.baseURL + "/api/v1/devices/" + url.PathEscape(deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Device{}, fmt.Errorf("%w: building request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Device{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	case resp.StatusCode != http.StatusOK:
		return Device{}, fmt.Errorf("%w: status %d for %s", ErrUnavailable, resp.StatusCode, deviceID)
	}

	var device Device
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&device); err != nil {
		return Device{}, fmt.Errorf("%w: decoding %s: %w", ErrUnavailable, deviceID, err)
	}
	if device.DeviceID == "" {
		device.DeviceID = deviceID
	}
	return device, nil
}
