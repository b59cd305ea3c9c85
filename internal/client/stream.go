package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// handshakeTimeout bounds the wait for the WebSocket connection to
// complete. Sending on a socket before the dial finishes is a known
// source of "not connected" failures, so the ready frame goes out only
// after DialContext returns.
const handshakeTimeout = 10 * time.Second

// ErrStreamDropped wraps a disconnect-class receive failure that
// occurred after a successful handshake. Callers switch to status
// polling instead of failing the job.
var ErrStreamDropped = errors.New("progress stream dropped")

// readyFrame is the single control frame sent once the connection is up.
type readyFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

// StreamProgress opens the authenticated progress channel for a job and
// receives messages until the pipeline completes, errors, or ctx is
// cancelled.
//
// onMessage is invoked sequentially, in arrival order, for progress,
// completion and error messages; acknowledgements, heartbeats and
// foreign-pipeline frames are consumed internally. Returning an error
// from onMessage aborts the stream.
//
// On a completion or error frame the channel is closed from this side
// rather than waiting for server teardown, and StreamProgress returns
// nil. On cancellation the channel is closed with a "going away" reason
// and ctx.Err() is returned. A disconnect-class receive failure after
// the handshake returns an error wrapping ErrStreamDropped; any other
// receive failure is reported as connection loss.
func (c *Client) StreamProgress(ctx context.Context, jobID, token string, onMessage func(Message) error) error {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)
	wsEndpoint += "/ws/progress?" + url.Values{"jobId": {jobID}, "token": {token}}.Encode()

	u, err := url.Parse(wsEndpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect progress stream: %w", err)
	}

	// Track connection state so concurrent close paths are idempotent.
	var mu sync.Mutex
	closed := false
	closeConn := func(closeCode int, reason string) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		closed = true
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCode, reason), deadline)
		conn.Close()
	}
	defer closeConn(websocket.CloseNormalClosure, "")

	// Handshake complete; announce readiness before entering the
	// receive loop.
	ready := readyFrame{Type: "ready", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := conn.WriteJSON(ready); err != nil {
		return fmt.Errorf("send ready frame: %w", err)
	}

	// Close the channel when the context is cancelled so the blocked
	// read below returns promptly.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			closeConn(websocket.CloseGoingAway, "client cancelled")
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if IsDisconnect(err) {
				c.log.Warn("progress stream dropped after handshake", "job_id", jobID, "error", err)
				return fmt.Errorf("%w: %v", ErrStreamDropped, err)
			}
			return fmt.Errorf("read frame: %w", err)
		}

		msg, err := DecodeMessage(raw)
		if err != nil {
			// Malformed frames are dropped; they never terminate the
			// loop or change job state.
			c.log.Warn("dropping malformed frame", "job_id", jobID, "error", err)
			continue
		}

		switch msg.Kind {
		case KindProgress:
			if err := onMessage(msg); err != nil {
				return err
			}

		case KindCompletion, KindError:
			handleErr := onMessage(msg)
			closeConn(websocket.CloseNormalClosure, "pipeline finished")
			return handleErr

		case KindAck, KindJobStarted:
			c.log.Debug("progress channel acknowledgement", "job_id", jobID)

		case KindHeartbeat, KindIgnored:
			// No-op.
		}
	}
}

// IsDisconnect reports whether err is a disconnect-class transport
// error: the peer went away or the socket is no longer connected. Only
// these errors hand off to the fallback poller; broader network
// failures are deliberately excluded so they are not masked as
// disconnects.
func IsDisconnect(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived) {
		return true
	}
	if errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ENOTCONN) {
		return true
	}
	// Some platforms surface the POSIX condition only as message text.
	return strings.Contains(err.Error(), "not connected")
}
