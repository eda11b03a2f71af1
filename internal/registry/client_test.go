package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-housekeeper/internal/infrastructure/logging"
)

const testToken = "long-lived-test-token"

// commandHandler produces the result frame for one received command.
// Returning a wireError produces a failed result frame instead.
type commandHandler func(msgType string, msg map[string]any) (any, *wireError)

// fakeRegistry is a WebSocket server speaking the registry protocol:
// auth_required/auth/auth_ok handshake followed by id-matched command
// and result frames.
type fakeRegistry struct {
	t       *testing.T
	srv     *httptest.Server
	handler commandHandler

	// eventsBeforeResult injects unsolicited event frames ahead of every
	// result so tests can verify the client skips them.
	eventsBeforeResult int

	mu       sync.Mutex
	received []map[string]any
}

func newFakeRegistry(t *testing.T, handler commandHandler) *fakeRegistry {
	t.Helper()
	f := &fakeRegistry{t: t, handler: handler}
	upgrader := websocket.Upgrader{}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		f.serve(conn)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

// url returns the ws:// endpoint of the fake.
func (f *fakeRegistry) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeRegistry) serve(conn *websocket.Conn) {
	if err := conn.WriteJSON(map[string]any{"type": "auth_required"}); err != nil {
		return
	}
	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth["access_token"] != testToken {
		conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "invalid token"}) //nolint:errcheck
		return
	}
	if err := conn.WriteJSON(map[string]any{"type": "auth_ok"}); err != nil {
		return
	}

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()

		for i := 0; i < f.eventsBeforeResult; i++ {
			if err := conn.WriteJSON(map[string]any{"type": "event", "event": map[string]any{"n": i}}); err != nil {
				return
			}
		}

		msgType, _ := msg["type"].(string)
		result, wireErr := f.handler(msgType, msg)
		resp := map[string]any{"id": msg["id"], "type": "result"}
		if wireErr != nil {
			resp["success"] = false
			resp["error"] = map[string]any{"code": wireErr.Code, "message": wireErr.Message}
		} else {
			resp["success"] = true
			resp["result"] = result
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}

// commands returns the types of all received command frames.
func (f *fakeRegistry) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, msg := range f.received {
		if t, ok := msg["type"].(string); ok {
			types = append(types, t)
		}
	}
	return types
}

// lastPayload returns the most recently received command frame.
func (f *fakeRegistry) lastPayload() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return nil
	}
	return f.received[len(f.received)-1]
}

func newTestClient(t *testing.T, url, token string) *Client {
	t.Helper()
	client := New(config.RegistryConfig{
		URL:         url,
		Token:       token,
		CallTimeout: 5,
		DialTimeout: 5,
	}, logging.Default())
	t.Cleanup(func() { client.Close() })
	return client
}

func TestClientListAreas(t *testing.T) {
	fake := newFakeRegistry(t, func(msgType string, _ map[string]any) (any, *wireError) {
		if msgType != cmdAreaList {
			t.Errorf("command = %q, want %q", msgType, cmdAreaList)
		}
		return []map[string]any{
			{"area_id": "kitchen", "name": "Kitchen"},
			{"area_id": "living", "name": "Living Room"},
		}, nil
	})
	client := newTestClient(t, fake.url(), testToken)

	areas, err := client.ListAreas(context.Background())
	if err != nil {
		t.Fatalf("ListAreas() error = %v", err)
	}
	if len(areas) != 2 || areas[0].ID != "kitchen" || areas[1].Name != "Living Room" {
		t.Errorf("areas = %+v", areas)
	}
}

func TestClientNoToken(t *testing.T) {
	fake := newFakeRegistry(t, func(string, map[string]any) (any, *wireError) { return nil, nil })
	client := newTestClient(t, fake.url(), "")

	if _, err := client.ListAreas(context.Background()); !errors.Is(err, ErrNoToken) {
		t.Errorf("ListAreas() error = %v, want ErrNoToken", err)
	}
}

func TestClientAuthRejected(t *testing.T) {
	fake := newFakeRegistry(t, func(string, map[string]any) (any, *wireError) { return nil, nil })
	client := newTestClient(t, fake.url(), "wrong-token")

	if _, err := client.ListAreas(context.Background()); !errors.Is(err, ErrAuthFailed) {
		t.Errorf("ListAreas() error = %v, want ErrAuthFailed", err)
	}
}

func TestClientDialFailure(t *testing.T) {
	client := newTestClient(t, "ws://127.0.0.1:1/api/websocket", testToken)

	if _, err := client.ListAreas(context.Background()); !errors.Is(err, ErrTransport) {
		t.Errorf("ListAreas() error = %v, want ErrTransport", err)
	}
}

// A failed result frame surfaces as *APIError and the connection stays
// usable for the next call.
func TestClientAPIError(t *testing.T) {
	var calls int
	fake := newFakeRegistry(t, func(string, map[string]any) (any, *wireError) {
		calls++
		if calls == 1 {
			return nil, &wireError{Code: "invalid_format", Message: "bad field"}
		}
		return []map[string]any{}, nil
	})
	client := newTestClient(t, fake.url(), testToken)
	ctx := context.Background()

	err := client.UpdateEntity(ctx, "light.hob", Fields{"bogus": true})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("UpdateEntity() error = %v, want *APIError", err)
	}
	if apiErr.Code != "invalid_format" || apiErr.Message != "bad field" {
		t.Errorf("apiErr = %+v", apiErr)
	}

	if _, err := client.ListAreas(ctx); err != nil {
		t.Errorf("call after APIError failed: %v", err)
	}
}

func TestClientSkipsEventFrames(t *testing.T) {
	fake := newFakeRegistry(t, func(string, map[string]any) (any, *wireError) {
		return []map[string]any{{"entity_id": "light.hob", "state": "on"}}, nil
	})
	fake.eventsBeforeResult = 3
	client := newTestClient(t, fake.url(), testToken)

	states, err := client.ListStates(context.Background())
	if err != nil {
		t.Fatalf("ListStates() error = %v", err)
	}
	if len(states) != 1 || states[0].EntityID != "light.hob" {
		t.Errorf("states = %+v", states)
	}
}

func TestClientUpdateEntityPayload(t *testing.T) {
	fake := newFakeRegistry(t, func(string, map[string]any) (any, *wireError) {
		return map[string]any{}, nil
	})
	client := newTestClient(t, fake.url(), testToken)

	// Nil field values must go over the wire as explicit nulls; the
	// registry needs them to clear a field.
	if err := client.UpdateEntity(context.Background(), "light.hob", Fields{"area_id": nil}); err != nil {
		t.Fatalf("UpdateEntity() error = %v", err)
	}

	payload := fake.lastPayload()
	if payload["type"] != cmdEntityUpdate {
		t.Errorf("type = %v", payload["type"])
	}
	if payload["entity_id"] != "light.hob" {
		t.Errorf("entity_id = %v", payload["entity_id"])
	}
	if v, present := payload["area_id"]; !present || v != nil {
		t.Errorf("area_id = %v (present=%v), want explicit null", v, present)
	}
}

func TestClientCommandsAndIDsIncrement(t *testing.T) {
	fake := newFakeRegistry(t, func(msgType string, _ map[string]any) (any, *wireError) {
		switch msgType {
		case cmdAreaCreate:
			return map[string]any{"area_id": "new1", "name": "Attic"}, nil
		default:
			return []map[string]any{}, nil
		}
	})
	client := newTestClient(t, fake.url(), testToken)
	ctx := context.Background()

	if _, err := client.ListDevices(ctx); err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	area, err := client.CreateArea(ctx, "Attic")
	if err != nil {
		t.Fatalf("CreateArea() error = %v", err)
	}
	if area.ID != "new1" || area.Name != "Attic" {
		t.Errorf("area = %+v", area)
	}
	if err := client.RemoveEntity(ctx, "sensor.gone"); err != nil {
		t.Fatalf("RemoveEntity() error = %v", err)
	}

	want := []string{cmdDeviceList, cmdAreaCreate, cmdEntityRemove}
	got := fake.commands()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}

	// Frame ids must be distinct and increasing.
	fake.mu.Lock()
	frames := append([]map[string]any(nil), fake.received...)
	fake.mu.Unlock()
	var lastID float64
	for _, msg := range frames {
		id, ok := msg["id"].(float64)
		if !ok || id <= lastID {
			t.Errorf("frame id = %v after %v, want increasing", msg["id"], lastID)
		}
		lastID = id
	}
}

func TestDeviceDisplayName(t *testing.T) {
	tests := []struct {
		name   string
		device Device
		want   string
	}{
		{"user name wins", Device{Name: "shelly-1", NameByUser: "Hob Light"}, "Hob Light"},
		{"integration name fallback", Device{Name: "shelly-1"}, "shelly-1"},
		{"empty", Device{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.device.DisplayName(); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStateFriendlyName(t *testing.T) {
	s := State{EntityID: "light.hob", State: "on", Attributes: map[string]any{"friendly_name": "Hob"}}
	if s.FriendlyName() != "Hob" {
		t.Errorf("FriendlyName() = %q", s.FriendlyName())
	}
	if (State{}).FriendlyName() != "" {
		t.Error("FriendlyName() on empty state should be empty")
	}
}
