package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"

	"github.com/san-kum/ktune/internal/harness"
)

// SerialClient drives an actuator controller over a serial line with
// a newline-delimited ASCII protocol:
//
//	CMD <id> <pos> [vel]      -> OK
//	STATE <id>                -> STATE <pos> <vel> <usec>
//	CFG <id> <kp> <kd> <ki> <acc> <maxtq> <0|1>  -> OK
//
// Used for bench rigs where the servo bus is wired straight into the
// host instead of going through the robot's network service.
type SerialClient struct {
	mu     sync.Mutex
	port   io.ReadWriteCloser
	reader *bufio.Reader
}

// OpenSerial opens the controller's serial device, 8N1.
func OpenSerial(device string, baudRate uint) (*SerialClient, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:        device,
		BaudRate:        baudRate,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	})
	if err != nil {
		return nil, errors.Wrapf(harness.ErrTargetUnreachable, "open serial device %s: %v", device, err)
	}
	return newSerialClient(port), nil
}

func newSerialClient(port io.ReadWriteCloser) *SerialClient {
	return &SerialClient{port: port, reader: bufio.NewReader(port)}
}

func (c *SerialClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port.Close()
}

func (c *SerialClient) SetCommand(ctx context.Context, actuatorID int, pos float64, vel *float64) error {
	line := fmt.Sprintf("CMD %d %.4f", actuatorID, pos)
	if vel != nil {
		line = fmt.Sprintf("%s %.4f", line, *vel)
	}
	resp, err := c.exchange(ctx, line)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return errors.Errorf("command rejected: %s", resp)
	}
	return nil
}

func (c *SerialClient) ReadState(ctx context.Context, actuatorID int) (harness.ActuatorState, error) {
	resp, err := c.exchange(ctx, fmt.Sprintf("STATE %d", actuatorID))
	if err != nil {
		return harness.ActuatorState{}, err
	}
	fields := strings.Fields(resp)
	if len(fields) != 4 || fields[0] != "STATE" {
		return harness.ActuatorState{}, errors.Errorf("malformed state response: %q", resp)
	}
	pos, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return harness.ActuatorState{}, errors.Wrap(err, "parse position")
	}
	vel, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return harness.ActuatorState{}, errors.Wrap(err, "parse velocity")
	}
	usec, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return harness.ActuatorState{}, errors.Wrap(err, "parse timestamp")
	}
	return harness.ActuatorState{
		Position:  pos,
		Velocity:  vel,
		Timestamp: time.UnixMicro(usec),
	}, nil
}

func (c *SerialClient) ConfigureActuator(ctx context.Context, actuatorID int, cfg harness.ActuatorConfig) error {
	enabled := 0
	if cfg.TorqueEnabled {
		enabled = 1
	}
	line := fmt.Sprintf("CFG %d %.4f %.4f %.4f %.1f %.1f %d",
		actuatorID, cfg.Kp, cfg.Kd, cfg.Ki, cfg.Acceleration, cfg.MaxTorque, enabled)
	resp, err := c.exchange(ctx, line)
	if err != nil {
		return err
	}
	if resp != "OK" {
		return errors.Errorf("configure rejected: %s", resp)
	}
	return nil
}

// exchange writes one line and reads one reply. The serial layer has
// no deadline support; cancellation is only checked between requests.
func (c *SerialClient) exchange(ctx context.Context, line string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.port, line+"\n"); err != nil {
		return "", errors.Wrap(err, "serial write")
	}
	resp, err := c.reader.ReadString('\n')
	if err != nil {
		return "", errors.Wrap(err, "serial read")
	}
	return strings.TrimSpace(resp), nil
}
