package homeassistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/goleak"

	"github.com/harunnryd/fallback/pkg/agent"
	"github.com/harunnryd/fallback/pkg/errorsx"
	"github.com/harunnryd/fallback/pkg/logging"
	"github.com/harunnryd/fallback/pkg/registry"
)

type handler func(msg map[string]any) (result any, errCode string)

// fakeServer speaks enough of the Home Assistant websocket protocol for tests.
type fakeServer struct {
	t        *testing.T
	srv      *httptest.Server
	token    string
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]handler
	received []map[string]any
	conn     *websocket.Conn
	subs     map[string]float64
	writeMu  sync.Mutex
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{
		t:        t,
		token:    "secret",
		handlers: make(map[string]handler),
		subs:     make(map[string]float64),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) url() string { return f.srv.URL }

func (f *fakeServer) handle(typ string, h handler) {
	f.mu.Lock()
	f.handlers[typ] = h
	f.mu.Unlock()
}

func (f *fakeServer) write(v any) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		_ = conn.WriteJSON(v)
	}
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != websocketPath {
		http.NotFound(w, r)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	f.write(map[string]any{"type": "auth_required", "ha_version": "2026.10.0"})
	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth["access_token"] != f.token {
		f.write(map[string]any{"type": "auth_invalid", "message": "Invalid access token"})
		return
	}
	f.write(map[string]any{"type": "auth_ok", "ha_version": "2026.10.0"})

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		typ, _ := msg["type"].(string)
		id := msg["id"]
		f.mu.Lock()
		f.received = append(f.received, msg)
		h := f.handlers[typ]
		if typ == "subscribe_events" {
			ev, _ := msg["event_type"].(string)
			f.subs[ev], _ = id.(float64)
		}
		f.mu.Unlock()

		switch {
		case typ == "subscribe_events" || typ == "unsubscribe_events":
			f.write(map[string]any{"id": id, "type": "result", "success": true, "result": nil})
		case h == nil:
			f.write(map[string]any{"id": id, "type": "result", "success": false,
				"error": map[string]any{"code": "unknown_command", "message": "Unknown command."}})
		default:
			result, code := h(msg)
			if code != "" {
				f.write(map[string]any{"id": id, "type": "result", "success": false,
					"error": map[string]any{"code": code, "message": "failed"}})
				continue
			}
			f.write(map[string]any{"id": id, "type": "result", "success": true, "result": result})
		}
	}
}

func (f *fakeServer) subscribed(eventType string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[eventType]
	return ok
}

func (f *fakeServer) fire(eventType string, data map[string]any) {
	f.mu.Lock()
	id := f.subs[eventType]
	f.mu.Unlock()
	f.write(map[string]any{"id": id, "type": "event", "event": map[string]any{"event_type": eventType, "data": data}})
}

func (f *fakeServer) lastOf(typ string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.received) - 1; i >= 0; i-- {
		if f.received[i]["type"] == typ {
			return f.received[i]
		}
	}
	return nil
}

func dialFake(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		URL:            f.url(),
		Token:          f.token,
		RequestTimeout: 2 * time.Second,
		Logger:         logging.Discard(),
	})
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestDialAuthAndRegistries(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f := newFakeServer(t)
	defer f.srv.Close()
	f.handle(cmdEntityRegistryList, func(map[string]any) (any, string) {
		return []map[string]any{
			{"entity_id": "light.kitchen", "name": "Kitchen Light", "area_id": "kitchen"},
			{"entity_id": "fan.office", "name": nil, "device_id": "dev1"},
		}, ""
	})
	f.handle(cmdDeviceRegistryList, func(map[string]any) (any, string) {
		return []map[string]any{{"id": "dev1", "name": "Acme Fan", "name_by_user": "Ceiling Fan", "area_id": "office"}}, ""
	})
	f.handle(cmdAreaRegistryList, func(map[string]any) (any, string) {
		return []map[string]any{{"area_id": "kitchen", "name": "Kitchen"}}, ""
	})
	f.handle(cmdGetStates, func(map[string]any) (any, string) {
		return []map[string]any{{"entity_id": "fan.office", "state": "on", "attributes": map[string]any{"friendly_name": "Office Fan"}}}, ""
	})
	f.handle(cmdExposedEntities, func(map[string]any) (any, string) {
		return map[string]any{"exposed_entities": map[string]any{"light.kitchen": map[string]any{"conversation": true}}}, ""
	})

	c := dialFake(t, f)
	defer c.Close()
	ctx := context.Background()

	if c.Version() != "2026.10.0" {
		t.Fatalf("unexpected version %q", c.Version())
	}
	entities, err := c.Entities(ctx)
	if err != nil || len(entities) != 2 || entities[0].AreaID != "kitchen" {
		t.Fatalf("unexpected entities: %+v %v", entities, err)
	}
	devices, err := c.Devices(ctx)
	if err != nil || len(devices) != 1 || devices[0].DisplayName() != "Ceiling Fan" {
		t.Fatalf("unexpected devices: %+v %v", devices, err)
	}
	areas, err := c.Areas(ctx)
	if err != nil || len(areas) != 1 {
		t.Fatalf("unexpected areas: %+v %v", areas, err)
	}
	st, ok, err := c.State(ctx, "fan.office")
	if err != nil || !ok || st.FriendlyName() != "Office Fan" {
		t.Fatalf("unexpected state: %+v %v %v", st, ok, err)
	}
	exposed, err := c.IsExposed(ctx, "conversation", "light.kitchen")
	if err != nil || !exposed {
		t.Fatalf("expected light.kitchen exposed, got %v %v", exposed, err)
	}
	if exposed, _ := c.IsExposed(ctx, "conversation", "fan.office"); exposed {
		t.Fatalf("expected fan.office hidden")
	}
}

func TestDialRejectsBadToken(t *testing.T) {
	f := newFakeServer(t)
	_, err := Dial(context.Background(), Config{URL: f.url(), Token: "wrong", DialRetries: 3, DialBackoff: time.Millisecond, Logger: logging.Discard()})
	if !errorsx.HasReason(err, errorsx.ReasonHAAuth) {
		t.Fatalf("expected auth reason, got %v", err)
	}
}

func TestCommandErrors(t *testing.T) {
	f := newFakeServer(t)
	c := dialFake(t, f)
	defer c.Close()

	err := c.Call(context.Background(), "no/such/command", nil, nil)
	if !errorsx.HasReason(err, errorsx.ReasonHACommand) {
		t.Fatalf("expected command reason, got %v", err)
	}
	if !strings.Contains(err.Error(), "unknown_command") {
		t.Fatalf("expected api error code in %q", err.Error())
	}
}

func TestExecuteSendsTargetAndServiceData(t *testing.T) {
	f := newFakeServer(t)
	f.handle(cmdCallService, func(map[string]any) (any, string) { return map[string]any{"context": map[string]any{}}, "" })
	c := dialFake(t, f)
	defer c.Close()

	err := c.Execute(context.Background(), "climate", "set_temperature", "climate.living_room",
		map[string]any{"entity_id": "climate.living_room", "temperature": 72.0})
	if err != nil {
		t.Fatalf("execute error: %v", err)
	}
	msg := f.lastOf(cmdCallService)
	if msg["domain"] != "climate" || msg["service"] != "set_temperature" {
		t.Fatalf("unexpected call: %+v", msg)
	}
	target, _ := msg["target"].(map[string]any)
	data, _ := msg["service_data"].(map[string]any)
	if target["entity_id"] != "climate.living_room" || data["temperature"] != 72.0 {
		t.Fatalf("unexpected payload: %+v", msg)
	}
	if _, dup := data["entity_id"]; dup {
		t.Fatalf("expected entity_id only in target")
	}
}

func TestRegistryEventsNotifyListeners(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f := newFakeServer(t)
	defer f.srv.Close()
	exposedCalls := 0
	f.handle(cmdExposedEntities, func(map[string]any) (any, string) {
		f.mu.Lock()
		exposedCalls++
		f.mu.Unlock()
		return map[string]any{"exposed_entities": map[string]any{}}, ""
	})
	c := dialFake(t, f)

	var mu sync.Mutex
	var changes int
	var exposedIDs []string
	c.OnChange(registry.ChangeDevice, func() {
		mu.Lock()
		changes++
		mu.Unlock()
	})
	unsub := c.OnExposureChange("conversation", func(id string) {
		mu.Lock()
		exposedIDs = append(exposedIDs, id)
		mu.Unlock()
	})
	waitFor(t, func() bool {
		return f.subscribed("device_registry_updated") && f.subscribed("entity_registry_updated")
	})

	if _, err := c.IsExposed(context.Background(), "conversation", "light.kitchen"); err != nil {
		t.Fatalf("is exposed: %v", err)
	}
	f.fire("device_registry_updated", map[string]any{"action": "update"})
	f.fire("entity_registry_updated", map[string]any{"action": "update", "entity_id": "light.kitchen"})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return changes == 1 && len(exposedIDs) == 1
	})
	if exposedIDs[0] != "light.kitchen" {
		t.Fatalf("unexpected exposure ids: %v", exposedIDs)
	}

	// The entity event drops the cached exposure table.
	if _, err := c.IsExposed(context.Background(), "conversation", "light.kitchen"); err != nil {
		t.Fatalf("is exposed: %v", err)
	}
	f.mu.Lock()
	calls := exposedCalls
	f.mu.Unlock()
	if calls != 2 {
		t.Fatalf("expected exposure table refetch, got %d fetches", calls)
	}

	unsub()
	f.fire("entity_registry_updated", map[string]any{"entity_id": "light.office"})
	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	n := len(exposedIDs)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expected no calls after unsubscribe, got %d", n)
	}
	_ = c.Close()
}

func TestConversationAgent(t *testing.T) {
	f := newFakeServer(t)
	f.handle(cmdConversationProcess, func(msg map[string]any) (any, string) {
		typ := "action_done"
		speech := "Turned on the light"
		if msg["agent_id"] == "conversation.openai" {
			typ = "error"
			speech = "Sorry, I couldn't understand that"
		}
		return map[string]any{
			"conversation_id": "conv-1",
			"response": map[string]any{
				"response_type": typ,
				"speech":        map[string]any{"plain": map[string]any{"speech": speech}},
			},
		}, ""
	})
	f.handle(cmdConversationAgents, func(map[string]any) (any, string) {
		return map[string]any{"agents": []map[string]any{
			{"id": "conversation.home_assistant", "name": "Home Assistant"},
			{"id": "conversation.openai", "name": "OpenAI"},
		}}, ""
	})
	c := dialFake(t, f)
	defer c.Close()
	ctx := context.Background()

	ha := DefaultAgent(c)
	resp, err := ha.Process(ctx, agent.Request{Text: "turn on the light", Language: "en"})
	if err != nil || resp.IsError() || resp.Speech != "Turned on the light" || resp.ConversationID != "conv-1" {
		t.Fatalf("unexpected response: %+v %v", resp, err)
	}
	if msg := f.lastOf(cmdConversationProcess); msg["agent_id"] != DefaultAgentEntity || msg["language"] != "en" {
		t.Fatalf("unexpected request: %+v", msg)
	}

	factory := NewFactory(c)
	a, err := factory(agent.Spec{ID: "openai", Name: "OpenAI", Settings: map[string]any{"agent_id": "conversation.openai"}})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	resp, err = a.Process(ctx, agent.Request{Text: "hm", ConversationID: "c7"})
	if err != nil || !resp.IsError() {
		t.Fatalf("expected error classification, got %+v %v", resp, err)
	}

	reg := agent.NewRegistry(ha, a)
	if reg.Resolve("conversation.openai") != "openai" {
		t.Fatalf("expected entity id to resolve to configured agent")
	}

	agents, err := c.ListAgents(ctx)
	if err != nil || len(agents) != 2 || agents[1].Name != "OpenAI" {
		t.Fatalf("unexpected agents: %+v %v", agents, err)
	}
}

func TestCallsFailAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	f := newFakeServer(t)
	defer f.srv.Close()
	c := dialFake(t, f)
	_ = c.Close()
	select {
	case <-c.Done():
	default:
		t.Fatalf("expected done after close")
	}
	if err := c.Call(context.Background(), cmdGetStates, nil, nil); err == nil {
		t.Fatalf("expected error after close")
	}
}

func TestWebsocketURL(t *testing.T) {
	cases := []struct{ in, want string }{
		{"http://ha.local:8123", "ws://ha.local:8123/api/websocket"},
		{"https://ha.example.com/", "wss://ha.example.com/api/websocket"},
		{"ws://ha.local:8123/api/websocket", "ws://ha.local:8123/api/websocket"},
	}
	for _, tc := range cases {
		got, err := websocketURL(tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("websocketURL(%q) = %q, %v; expected %q", tc.in, got, err, tc.want)
		}
	}
	if _, err := websocketURL("ftp://x"); err == nil {
		t.Fatalf("expected scheme error")
	}
}
