package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/logging"
)

// maxMessageSize limits inbound frames; a full entity registry dump on a
// large installation runs to a few megabytes.
const maxMessageSize = 1 << 24 // 16MB

// Registry command identifiers.
const (
	cmdAreaList     = "config/area_registry/list"
	cmdAreaCreate   = "config/area_registry/create"
	cmdAreaUpdate   = "config/area_registry/update"
	cmdDeviceList   = "config/device_registry/list"
	cmdDeviceUpdate = "config/device_registry/update"
	cmdEntityList   = "config/entity_registry/list"
	cmdEntityUpdate = "config/entity_registry/update"
	cmdEntityRemove = "config/entity_registry/remove"
	cmdGetStates    = "get_states"
)

// Client is a request/response WebSocket client for the configuration
// registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use; calls are serialized
//     internally so only one request is in flight at a time.
type Client struct {
	cfg    config.RegistryConfig
	logger *logging.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// envelope is the wire frame for both directions.
type envelope struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// wireError is the error payload of a failed result frame.
type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New creates a registry client. No connection is made until the first call.
func New(cfg config.RegistryConfig, logger *logging.Logger) *Client {
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "registry"),
		nextID: 1,
	}
}

// Connect establishes and authenticates the WebSocket connection.
//
// It is normally not needed: calls connect lazily. It exists for health
// checks that want to verify reachability without issuing a command.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ensureConnected(ctx)
}

// Close drops the connection. The client remains usable; the next call
// reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropConn()
}

// URL returns the configured WebSocket endpoint.
func (c *Client) URL() string {
	return c.cfg.URL
}

// ensureConnected dials and authenticates if there is no live connection.
// Caller must hold c.mu.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	if c.cfg.Token == "" {
		return ErrNoToken
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.GetDialTimeout())
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("%w: dialing %s: %w", ErrTransport, c.cfg.URL, err)
	}
	conn.SetReadLimit(maxMessageSize)

	if err := c.authenticate(conn); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return err
	}

	c.logger.Info("connected to registry", "url", c.cfg.URL)
	c.conn = conn
	return nil
}

// authenticate performs the auth_required/auth/auth_ok handshake.
func (c *Client) authenticate(conn *websocket.Conn) error {
	deadline := time.Now().Add(c.cfg.GetDialTimeout())
	if err := conn.SetReadDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("%w: reading auth challenge: %w", ErrTransport, err)
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("%w: expected auth_required, got %q", ErrTransport, hello.Type)
	}

	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	auth := map[string]string{
		"type":         "auth",
		"access_token": c.cfg.Token,
	}
	if err := conn.WriteJSON(auth); err != nil {
		return fmt.Errorf("%w: sending auth: %w", ErrTransport, err)
	}

	var resp envelope
	if err := conn.ReadJSON(&resp); err != nil {
		return fmt.Errorf("%w: reading auth response: %w", ErrTransport, err)
	}
	if resp.Type != "auth_ok" {
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Message)
	}

	return nil
}

// dropConn closes and forgets the connection. Caller must hold c.mu.
func (c *Client) dropConn() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// call sends one command and waits for its result frame.
//
// Event frames and unrelated results are skipped. On any transport error
// the connection is dropped so the next call reconnects; the error wraps
// ErrTransport. A failed result frame is returned as *APIError without
// dropping the connection.
func (c *Client) call(ctx context.Context, msgType string, payload Fields) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	id := c.nextID
	c.nextID++

	msg := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		msg[k] = v
	}
	msg["id"] = id
	msg["type"] = msgType

	deadline := time.Now().Add(c.cfg.GetCallTimeout())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return nil, c.transportErr(msgType, err)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return nil, c.transportErr(msgType, err)
	}

	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, c.transportErr(msgType, err)
		}
		var resp envelope
		if err := c.conn.ReadJSON(&resp); err != nil {
			return nil, c.transportErr(msgType, err)
		}
		if resp.Type != "result" || resp.ID != id {
			// Event or stale frame; keep reading.
			continue
		}
		if resp.Success != nil && !*resp.Success {
			apiErr := &APIError{Code: "unknown", Message: "unknown"}
			if resp.Error != nil {
				apiErr.Code = resp.Error.Code
				apiErr.Message = resp.Error.Message
			}
			return nil, apiErr
		}
		return resp.Result, nil
	}
}

// transportErr drops the connection and wraps err. Caller must hold c.mu.
func (c *Client) transportErr(op string, err error) error {
	c.dropConn() //nolint:errcheck // connection already failing
	c.logger.Warn("registry call failed", "op", op, "error", err)
	return fmt.Errorf("%w: during %s: %w", ErrTransport, op, err)
}

// decode unmarshals a result frame into out.
func decode(raw json.RawMessage, op string, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding %s result: %w", ErrTransport, op, err)
	}
	return nil
}

// ListAreas returns all areas.
func (c *Client) ListAreas(ctx context.Context) ([]Area, error) {
	raw, err := c.call(ctx, cmdAreaList, nil)
	if err != nil {
		return nil, err
	}
	var areas []Area
	if err := decode(raw, cmdAreaList, &areas); err != nil {
		return nil, err
	}
	return areas, nil
}

// CreateArea creates a new named area and returns it.
func (c *Client) CreateArea(ctx context.Context, name string) (Area, error) {
	raw, err := c.call(ctx, cmdAreaCreate, Fields{"name": name})
	if err != nil {
		return Area{}, err
	}
	var area Area
	if err := decode(raw, cmdAreaCreate, &area); err != nil {
		return Area{}, err
	}
	return area, nil
}

// UpdateArea updates fields of an area. A rename must always carry a
// non-empty name; the registry rejects empty names.
func (c *Client) UpdateArea(ctx context.Context, areaID string, fields Fields) error {
	payload := Fields{"area_id": areaID}
	for k, v := range fields {
		payload[k] = v
	}
	_, err := c.call(ctx, cmdAreaUpdate, payload)
	return err
}

// ListDevices returns all devices.
func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	raw, err := c.call(ctx, cmdDeviceList, nil)
	if err != nil {
		return nil, err
	}
	var devices []Device
	if err := decode(raw, cmdDeviceList, &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// UpdateDevice updates fields of a device registry entry.
func (c *Client) UpdateDevice(ctx context.Context, deviceID string, fields Fields) error {
	payload := Fields{"device_id": deviceID}
	for k, v := range fields {
		payload[k] = v
	}
	_, err := c.call(ctx, cmdDeviceUpdate, payload)
	return err
}

// ListEntities returns all entity registry entries.
func (c *Client) ListEntities(ctx context.Context) ([]Entity, error) {
	raw, err := c.call(ctx, cmdEntityList, nil)
	if err != nil {
		return nil, err
	}
	var entities []Entity
	if err := decode(raw, cmdEntityList, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// UpdateEntity updates fields of an entity registry entry. Nil field
// values are sent as JSON null to clear them.
func (c *Client) UpdateEntity(ctx context.Context, entityID string, fields Fields) error {
	payload := Fields{"entity_id": entityID}
	for k, v := range fields {
		payload[k] = v
	}
	_, err := c.call(ctx, cmdEntityUpdate, payload)
	return err
}

// RemoveEntity deletes an entity registry entry.
func (c *Client) RemoveEntity(ctx context.Context, entityID string) error {
	_, err := c.call(ctx, cmdEntityRemove, Fields{"entity_id": entityID})
	return err
}

// ListStates returns the live state of every entity.
func (c *Client) ListStates(ctx context.Context) ([]State, error) {
	raw, err := c.call(ctx, cmdGetStates, nil)
	if err != nil {
		return nil, err
	}
	var states []State
	if err := decode(raw, cmdGetStates, &states); err != nil {
		return nil, err
	}
	return states, nil
}
