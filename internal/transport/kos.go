// Package transport implements the wire clients used to reach a
// control target: a websocket JSON client for the KOS actuator
// service (simulator or robot over the network) and a direct serial
// client for bench rigs.
package transport

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/san-kum/ktune/internal/harness"
)

const defaultRequestTimeout = 500 * time.Millisecond

// kosRequest is one command frame. Op selects the operation; unused
// fields are omitted on the wire.
type kosRequest struct {
	Op         string   `json:"op"`
	ActuatorID int      `json:"actuator_id"`
	Position   *float64 `json:"position,omitempty"`
	Velocity   *float64 `json:"velocity,omitempty"`

	Kp            *float64 `json:"kp,omitempty"`
	Kd            *float64 `json:"kd,omitempty"`
	Ki            *float64 `json:"ki,omitempty"`
	Acceleration  *float64 `json:"acceleration,omitempty"`
	MaxTorque     *float64 `json:"max_torque,omitempty"`
	TorqueEnabled *bool    `json:"torque_enabled,omitempty"`
}

type kosResponse struct {
	Ok        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
	Position  float64 `json:"position"`
	Velocity  float64 `json:"velocity"`
	Timestamp int64   `json:"timestamp_us"`
}

// KOSClient talks JSON over a single websocket connection. One
// request is in flight at a time; the scheduler's tick loop is
// sequential per target, the mutex only guards against concurrent
// use of one client for both sides.
//
// A websocket read error leaves the connection permanently broken, so
// any transport failure drops the connection and the next request
// redials. A single slow reply then costs one skipped tick, not the
// whole run.
type KOSClient struct {
	mu      sync.Mutex
	url     string
	conn    *websocket.Conn
	timeout time.Duration
}

// DialKOS connects to the actuator service at host:port.
func DialKOS(addr string) (*KOSClient, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/actuator"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, errors.Wrapf(harness.ErrTargetUnreachable, "dial %s: %v", u.String(), err)
	}
	return &KOSClient{url: u.String(), conn: conn, timeout: defaultRequestTimeout}, nil
}

func (c *KOSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *KOSClient) SetCommand(ctx context.Context, actuatorID int, pos float64, vel *float64) error {
	req := kosRequest{Op: "command", ActuatorID: actuatorID, Position: &pos, Velocity: vel}
	_, err := c.roundTrip(ctx, req)
	return err
}

func (c *KOSClient) ReadState(ctx context.Context, actuatorID int) (harness.ActuatorState, error) {
	resp, err := c.roundTrip(ctx, kosRequest{Op: "state", ActuatorID: actuatorID})
	if err != nil {
		return harness.ActuatorState{}, err
	}
	return harness.ActuatorState{
		Position:  resp.Position,
		Velocity:  resp.Velocity,
		Timestamp: time.UnixMicro(resp.Timestamp),
	}, nil
}

func (c *KOSClient) ConfigureActuator(ctx context.Context, actuatorID int, cfg harness.ActuatorConfig) error {
	req := kosRequest{
		Op:            "configure",
		ActuatorID:    actuatorID,
		Kp:            &cfg.Kp,
		Kd:            &cfg.Kd,
		Ki:            &cfg.Ki,
		Acceleration:  &cfg.Acceleration,
		MaxTorque:     &cfg.MaxTorque,
		TorqueEnabled: &cfg.TorqueEnabled,
	}
	_, err := c.roundTrip(ctx, req)
	return err
}

func (c *KOSClient) roundTrip(ctx context.Context, req kosRequest) (*kosResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.conn == nil {
		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err != nil {
			return nil, errors.Wrapf(err, "redial %s", c.url)
		}
		c.conn = conn
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.dropConn()
		return nil, err
	}
	if err := c.conn.WriteJSON(req); err != nil {
		c.dropConn()
		return nil, errors.Wrapf(err, "write %s", req.Op)
	}

	if err := c.conn.SetReadDeadline(deadline); err != nil {
		c.dropConn()
		return nil, err
	}
	var resp kosResponse
	if err := c.conn.ReadJSON(&resp); err != nil {
		c.dropConn()
		return nil, errors.Wrapf(err, "read %s response", req.Op)
	}
	if !resp.Ok {
		// Protocol rejection, the connection itself is fine.
		return nil, errors.Errorf("%s rejected: %s", req.Op, resp.Error)
	}
	return &resp, nil
}

// dropConn discards the broken connection. Caller holds the mutex.
func (c *KOSClient) dropConn() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
