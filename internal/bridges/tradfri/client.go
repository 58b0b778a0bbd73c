package tradfri

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/frostlux/frostlux/internal/device"
)

// defaultRequestTimeout bounds one GET issued by FetchLights.
const defaultRequestTimeout = 5 * time.Second

// SessionSource lends out gateway sessions. *Supervisor implements it.
type SessionSource interface {
	Acquire(ctx context.Context) (*Lease, error)
}

// Client speaks the Trådfri resource model over supervised sessions.
type Client struct {
	sessions       SessionSource
	requestTimeout time.Duration
	logger         Logger
}

// NewClient creates a client. requestTimeout bounds each GET issued by
// FetchLights; zero selects 5 seconds.
func NewClient(sessions SessionSource, requestTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	return &Client{
		sessions:       sessions,
		requestTimeout: requestTimeout,
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the client.
func (c *Client) SetLogger(logger Logger) {
	c.logger = logger
}

// FetchLights reads the complete light list from the gateway.
//
// Devices that are not lights are skipped. A device whose body cannot be
// decoded is logged and skipped. Any transport failure aborts the fetch so
// that a partial list is never mistaken for a complete one.
func (c *Client) FetchLights(ctx context.Context) ([]device.Observed, error) {
	lease, err := c.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := c.get(ctx, lease, PathDevices)
	if err != nil {
		return nil, err
	}
	ids, err := decodeDeviceIDs(payload)
	if err != nil {
		return nil, err
	}

	lights := make([]device.Observed, 0, len(ids))
	for _, id := range ids {
		payload, err := c.get(ctx, lease, devicePath(id))
		if err != nil {
			return nil, err
		}
		observed, isLight, err := decodeLight(id, payload)
		if err != nil {
			c.logger.Warn("skipping undecodable device", "device_id", id, "error", err)
			continue
		}
		if isLight {
			lights = append(lights, observed)
		}
	}
	return lights, nil
}

func (c *Client) get(ctx context.Context, lease *Lease, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := lease.Send(ctx, Request{Method: MethodGet, Path: path})
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, fmt.Errorf("%w: GET %s returned %v", ErrRejected, path, resp.Code)
	}
	return resp.Payload, nil
}

// ApplyDelta writes a partial attribute update to one light.
// The caller's ctx bounds both waiting for a session and the request.
//
// Returns:
//   - error: ErrRejected for 4.xx/5.xx answers; ErrNoSession, ErrTimeout,
//     ErrSessionReset or the context error otherwise
func (c *Client) ApplyDelta(ctx context.Context, id int, delta device.Delta) error {
	payload, err := encodeDelta(delta)
	if err != nil {
		return err
	}

	lease, err := c.sessions.Acquire(ctx)
	if err != nil {
		return err
	}

	resp, err := lease.Send(ctx, Request{Method: MethodPut, Path: devicePath(id), Payload: payload})
	if err != nil {
		return err
	}
	if !resp.Success() {
		return fmt.Errorf("%w: PUT %s returned %v", ErrRejected, devicePath(id), resp.Code)
	}
	return nil
}

// IsConnectionError reports whether err is a connection-level failure that
// the supervisor absorbs, as opposed to a gateway rejection.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrNoSession) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrSessionReset) ||
		errors.Is(err, ErrHandshake) ||
		errors.Is(err, ErrClosed)
}
