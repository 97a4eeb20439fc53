package glowmarkt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const (
	TEST_USERNAME    = "glow@example.com"
	TEST_PASSWORD    = "secret"
	TEST_TOKEN       = "test-token"
	TEST_HARDWARE_ID = "ABCDEF012345"
)

// TestRestClient is an in-memory RestClient. Zero value answers like a
// healthy account with a single Glow Stick.
type TestRestClient struct {
	AuthErr      error
	DevicesErr   error
	Devices      []Device
	Resources    []Resource
	Usage        map[string]CurrentUsage
	Delay        time.Duration
	AuthCalls    atomic.Int32
	DevicesCalls atomic.Int32

	mu     sync.Mutex
	appIds []string
}

func (c *TestRestClient) record(appId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appIds = append(c.appIds, appId)
}

// AppIds lists the application id of every call, in call order.
func (c *TestRestClient) AppIds() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.appIds...)
}

func (c *TestRestClient) wait(ctx context.Context) error {
	if c.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(c.Delay):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCannotConnect, ctx.Err())
	}
}

func (c *TestRestClient) Authenticate(ctx context.Context, appId, username, password string) (*AuthResponse, error) {
	c.AuthCalls.Add(1)
	c.record(appId)
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if c.AuthErr != nil {
		return nil, c.AuthErr
	}
	if username != TEST_USERNAME || password != TEST_PASSWORD {
		return nil, fmt.Errorf("%w: credentials rejected", ErrInvalidAuth)
	}
	valid := true
	return &AuthResponse{Valid: &valid, Token: TEST_TOKEN}, nil
}

func (c *TestRestClient) ListDevices(ctx context.Context, appId, token string) ([]Device, error) {
	c.DevicesCalls.Add(1)
	c.record(appId)
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if token != TEST_TOKEN {
		return nil, fmt.Errorf("%w: GET /device status 401", ErrInvalidAuth)
	}
	if c.DevicesErr != nil {
		return nil, c.DevicesErr
	}
	if c.Devices == nil {
		hardwareId := TEST_HARDWARE_ID
		return []Device{{
			DeviceId:     "device-1",
			DeviceTypeId: DEVICE_TYPE_ZIGBEE_GLOW_STICK,
			HardwareId:   &hardwareId,
			Active:       true,
		}}, nil
	}
	return c.Devices, nil
}

func (c *TestRestClient) ListResources(ctx context.Context, appId, token string) ([]Resource, error) {
	c.record(appId)
	if token != TEST_TOKEN {
		return nil, fmt.Errorf("%w: GET /resource status 401", ErrInvalidAuth)
	}
	return c.Resources, nil
}

func (c *TestRestClient) CurrentUsage(ctx context.Context, appId, token, resourceId string) (*CurrentUsage, error) {
	c.record(appId)
	if token != TEST_TOKEN {
		return nil, fmt.Errorf("%w: GET /resource status 401", ErrInvalidAuth)
	}
	usage, ok := c.Usage[resourceId]
	if !ok {
		return nil, fmt.Errorf("%w: GET /resource/%s/current status 404", ErrInvalidAuth, resourceId)
	}
	return &usage, nil
}

// ensure interface compliance
var _ RestClient = (*TestRestClient)(nil)
