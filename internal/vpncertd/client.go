// Package vpncertd talks to the certificate daemon over its UNIX socket.
//
// Each call opens a connection, writes one JSON request terminated by a
// newline and reads one JSON reply line. A reply carrying an "err" field is
// returned as a *DaemonError.
package vpncertd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultReadTimeout  = 60 * time.Second

	maxReplyBytes = 64 << 20
)

// ErrUnavailable is returned when the daemon cannot be reached or the
// circuit breaker is open.
var ErrUnavailable = errors.New("vpncertd unavailable")

// DaemonError is a refusal reported by the daemon itself.
type DaemonError struct {
	Op      string
	Message string
}

func (e *DaemonError) Error() string {
	return fmt.Sprintf("vpncertd %s: %s", e.Op, e.Message)
}

// HasCode reports whether err is a daemon refusal whose message equals code.
func HasCode(err error, code string) bool {
	var de *DaemonError
	return errors.As(err, &de) && de.Message == code
}

type Options struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

type Client struct {
	socket       string
	writeTimeout time.Duration
	readTimeout  time.Duration
	cb           *gobreaker.CircuitBreaker
	log          logrus.FieldLogger
}

func New(socket string, opts Options, log logrus.FieldLogger) *Client {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	st := gobreaker.Settings{
		Name:        "vpncertd",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A refusal means the daemon is up and answering.
		IsSuccessful: func(err error) bool {
			var de *DaemonError
			return err == nil || errors.As(err, &de)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}

	return &Client{
		socket:       socket,
		writeTimeout: opts.WriteTimeout,
		readTimeout:  opts.ReadTimeout,
		cb:           gobreaker.NewCircuitBreaker(st),
		log:          log,
	}
}

// call sends req and decodes the reply into out, which may be nil.
func (c *Client) call(ctx context.Context, op string, req any, out any) error {
	res, err := c.cb.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, op, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(res.([]byte), out); err != nil {
		return fmt.Errorf("vpncertd %s: failed to decode reply: %w", op, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, op string, req any) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("vpncertd %s: failed to encode request: %w", op, err)
	}
	payload = append(payload, '\n')

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", c.socket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return nil, err
	}
	if _, err := conn.Write(payload); err != nil {
		return nil, fmt.Errorf("vpncertd %s: write: %w", op, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return nil, err
	}
	line, err := bufio.NewReader(io.LimitReader(conn, maxReplyBytes)).ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, fmt.Errorf("vpncertd %s: read: %w", op, err)
	}

	var envelope struct {
		Err *string `json:"err"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		if len(bytes.TrimSpace(line)) == 0 {
			return nil, fmt.Errorf("vpncertd %s: empty reply", op)
		}
		return nil, fmt.Errorf("vpncertd %s: malformed reply: %w", op, err)
	}
	if envelope.Err != nil {
		return nil, &DaemonError{Op: op, Message: *envelope.Err}
	}
	return line, nil
}
