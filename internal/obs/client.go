package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cliparino/cliparino/pkg/utils"
)

const (
	writeWait     = 10 * time.Second
	handshakeWait = 10 * time.Second
)

// NotConnectedError is returned by every Client method when called
// against a closed socket.
type NotConnectedError struct{}

func (e *NotConnectedError) Error() string { return "obs: not connected" }

// ProtocolError wraps a non-success requestStatus from OBS, surfaced
// verbatim to the caller per spec §4.5.
type ProtocolError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("obs: %s failed (code %d): %s", e.RequestType, e.Code, e.Comment)
}

// Client is a minimal OBS-WebSocket v5 RPC client: connect, perform the
// Hello/Identify handshake, then issue correlated Request/
// RequestResponse calls. It does not subscribe to any OBS event stream —
// the supervisor polls state instead.
type Client struct {
	logger *utils.StructuredLogger

	mu       sync.Mutex
	conn     *websocket.Conn
	pending  map[string]chan requestResponseData
	closed   chan struct{}
	writeMu  sync.Mutex
}

// NewClient returns an unconnected Client.
func NewClient(logger *utils.StructuredLogger) *Client {
	return &Client{
		logger:  logger.With("obs"),
		pending: make(map[string]chan requestResponseData),
	}
}

// Dial connects to the OBS-WebSocket endpoint at host:port and performs
// the Hello/Identify handshake using password (may be empty if OBS has
// no password configured).
func (c *Client) Dial(ctx context.Context, host string, port int, password string) error {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port)}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeWait}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("obs: dial: %w", err)
	}

	if err := c.handshake(ctx, conn, password); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.closed = make(chan struct{})
	c.mu.Unlock()

	go c.readPump()
	return nil
}

func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, password string) error {
	var hello frame
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("obs: read hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("obs: expected hello frame, got op %d", hello.Op)
	}

	var helloPayload helloData
	if err := json.Unmarshal(hello.D, &helloPayload); err != nil {
		return fmt.Errorf("obs: decode hello: %w", err)
	}

	identify := identifyData{
		RPCVersion:         rpcVersion,
		EventSubscriptions: eventSubscriptionNone,
	}
	if helloPayload.Authentication != nil {
		identify.Authentication = computeAuthString(password, helloPayload.Authentication.Salt, helloPayload.Authentication.Challenge)
	}

	identifyBytes, err := json.Marshal(identify)
	if err != nil {
		return fmt.Errorf("obs: encode identify: %w", err)
	}

	if err := conn.WriteJSON(frame{Op: opIdentify, D: identifyBytes}); err != nil {
		return fmt.Errorf("obs: write identify: %w", err)
	}

	var identified frame
	if err := conn.ReadJSON(&identified); err != nil {
		return fmt.Errorf("obs: read identified: %w", err)
	}
	if identified.Op != opIdentified {
		return fmt.Errorf("obs: expected identified frame, got op %d", identified.Op)
	}

	return nil
}

// computeAuthString implements OBS-WebSocket v5's password authentication:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func computeAuthString(password, salt, challenge string) string {
	secretHash := sha256.Sum256([]byte(password + salt))
	secretB64 := base64.StdEncoding.EncodeToString(secretHash[:])

	authHash := sha256.Sum256([]byte(secretB64 + challenge))
	return base64.StdEncoding.EncodeToString(authHash[:])
}

// readPump dispatches RequestResponse frames to their waiting caller.
// Event frames are dropped (the controller polls rather than subscribes).
func (c *Client) readPump() {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	defer close(closed)

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			c.logger.Warn("obs connection read error", map[string]interface{}{"error": err.Error()})
			return
		}

		if f.Op != opRequestResponse {
			continue
		}

		var resp requestResponseData
		if err := json.Unmarshal(f.D, &resp); err != nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[resp.RequestID]
		if ok {
			delete(c.pending, resp.RequestID)
		}
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// Disconnected returns the channel for the current connection that
// closes the moment the read pump detects the socket has dropped. The
// channel is nil before the first successful Dial; a nil channel never
// fires in a select, which is the correct behavior for a client that
// was never connected.
func (c *Client) Disconnected() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsConnected reports whether the socket is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return false
	}
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// Close gracefully closes the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// Call issues a Request frame and blocks for its correlated
// RequestResponse, honoring ctx cancellation. Responses are serialized
// per-connection by OBS itself; concurrent callers each get their own
// correlation id and may be in flight simultaneously.
func (c *Client) Call(ctx context.Context, requestType string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || !c.IsConnected() {
		return nil, &NotConnectedError{}
	}

	requestID := uuid.NewString()

	var reqJSON json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("obs: encode request data: %w", err)
		}
		reqJSON = b
	}

	rdJSON, err := json.Marshal(requestData{RequestType: requestType, RequestID: requestID, RequestData: reqJSON})
	if err != nil {
		return nil, fmt.Errorf("obs: encode request: %w", err)
	}

	ch := make(chan requestResponseData, 1)
	c.mu.Lock()
	c.pending[requestID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(frame{Op: opRequest, D: rdJSON})
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, fmt.Errorf("obs: write request: %w", err)
	}

	select {
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return nil, &ProtocolError{RequestType: requestType, Code: resp.RequestStatus.Code, Comment: resp.RequestStatus.Comment}
		}
		return resp.ResponseData, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, requestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}
