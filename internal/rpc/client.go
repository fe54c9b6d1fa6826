package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/lyubomir-popov/maas/internal/domain"
)

// ErrNoConnections marks a rack controller that could not be reached at
// all: nothing is listening on its subjects or the request deadline
// passed. Callers classify this as a cluster-unavailable condition.
var ErrNoConnections = errors.New("no rack controller connections available")

// PowerActionInProgressError is returned when the rack's power driver
// reports a conflicting action already outstanding for the machine.
type PowerActionInProgressError struct {
	Message string
}

func (e *PowerActionInProgressError) Error() string {
	return e.Message
}

// PowerError carries a power driver failure message verbatim.
type PowerError struct {
	Message string
}

func (e *PowerError) Error() string {
	return e.Message
}

// RackClient issues commands to rack controllers. All calls are bounded
// by the context deadline and safe for concurrent use.
type RackClient interface {
	// ListBootImages fetches the rack's current image catalog.
	ListBootImages(ctx context.Context, rackID string) ([]domain.BootImage, error)
	// Power runs a power action through the rack's driver and returns
	// the resulting power state.
	Power(ctx context.Context, rackID string, req PowerRequest) (string, error)
}

// DefaultRequestTimeout bounds rack calls when the caller's context
// carries no deadline of its own.
const DefaultRequestTimeout = 30 * time.Second

// NATSRackClient talks to rack controllers over NATS request/reply.
type NATSRackClient struct {
	Conn    *nats.Conn
	Timeout time.Duration
}

// NewRackClient returns a client over an established NATS connection.
func NewRackClient(conn *nats.Conn) *NATSRackClient {
	return &NATSRackClient{Conn: conn, Timeout: DefaultRequestTimeout}
}

func (c *NATSRackClient) request(ctx context.Context, subject string, req, resp any) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode rpc request: %w", err)
	}
	msg, err := c.Conn.RequestWithContext(ctx, subject, data)
	if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrNoConnections, subject)
	}
	if err != nil {
		return fmt.Errorf("rpc request %s failed: %w", subject, err)
	}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return fmt.Errorf("failed to decode rpc response from %s: %w", subject, err)
	}
	return nil
}

func (c *NATSRackClient) ListBootImages(ctx context.Context, rackID string) ([]domain.BootImage, error) {
	var resp ListBootImagesResponse
	subject := fmt.Sprintf(SubjectListBootImages, rackID)
	if err := c.request(ctx, subject, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return resp.Images, nil
}

func (c *NATSRackClient) Power(ctx context.Context, rackID string, req PowerRequest) (string, error) {
	var resp PowerResponse
	subject := fmt.Sprintf(SubjectPower, rackID)
	if err := c.request(ctx, subject, req, &resp); err != nil {
		return "", err
	}
	if resp.InProgress {
		return "", &PowerActionInProgressError{Message: resp.Error}
	}
	if resp.Error != "" {
		return "", &PowerError{Message: resp.Error}
	}
	return resp.State, nil
}
