package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"telemetry-bridge/internal/model"
	"telemetry-bridge/internal/telemetry"
)

func startBus(t *testing.T) *EventBus {
	bus := NewEventBus(zaptest.NewLogger(t))
	go bus.Start()
	t.Cleanup(bus.Close)
	return bus
}

func next(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case event := <-events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return Event{}
	}
}

func TestEventBusPublishesDisplayAndObserverEvents(t *testing.T) {
	bus := startBus(t)
	events := bus.Subscribe()

	bus.ShowReading(model.SensorReading{Temperature: 21.5, Humidity: 48})
	reading := next(t, events)
	assert.Equal(t, EventReading, reading.Type)
	assert.Equal(t, "21.5", reading.Data["temperature_text"])
	assert.Equal(t, "48.0", reading.Data["humidity_text"])

	device := arduino
	bus.StateChanged(model.NewStateChange(model.StatePermissionPending, model.StateOpen, &device, "link opened"))
	change := next(t, events)
	assert.Equal(t, EventStateChanged, change.Type)
	assert.Equal(t, "OPEN", change.Data["to"])
	assert.Equal(t, "PERMISSION_PENDING", change.Data["from"])

	bus.FrameRejected(arduino, model.RawFrame{Seq: 4, Data: []byte("not-json")}, errors.New("bad"))
	rejected := next(t, events)
	assert.Equal(t, EventFrameRejected, rejected.Type)
	assert.Equal(t, "not-json", rejected.Data["frame"])

	bus.ForwardCompleted(telemetry.Completion{Seq: 4, StatusCode: 503, Err: errors.New("collector responded 503")})
	completed := next(t, events)
	assert.Equal(t, false, completed.Data["success"])
	assert.Equal(t, 503, completed.Data["status_code"])
}

func TestEventBusFiltersByType(t *testing.T) {
	bus := startBus(t)
	states := bus.Subscribe(EventStateChanged)

	bus.ShowText("ignored")
	bus.StateChanged(model.NewStateChange(model.StateOpen, model.StateDisconnected, nil, "device detached"))

	assert.Equal(t, EventStateChanged, next(t, states).Type)
	select {
	case event := <-states:
		t.Fatalf("unexpected event %s", event.Type)
	case <-time.After(20 * time.Millisecond):
	}

	bus.Unsubscribe(states)
	bus.StateChanged(model.NewStateChange(model.StateDisconnected, model.StatePermissionPending, nil, "device selected"))
	select {
	case event := <-states:
		t.Fatalf("event after unsubscribe: %s", event.Type)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestWebSocketStreamsEvents(t *testing.T) {
	bus := startBus(t)
	sup := newFakeSupervisor(model.StateOpen)
	// Server-side client goroutines may outlive the test
	ws := NewWebSocketHandler(bus, sup, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ws.Run(ctx)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	ws.RegisterRoutes(router.Group("/ws"))
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/telemetry"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var msg WebSocketMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "initial_status", msg.Type)
	assert.Equal(t, "OPEN", msg.Data.(map[string]interface{})["state"])

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "subscribe", Data: map[string]interface{}{"topic": EventReading}}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "subscribe_confirmed", msg.Type)

	require.Eventually(t, func() bool {
		return ws.GetConnectionStats().TotalConnections == 1
	}, time.Second, 5*time.Millisecond)

	bus.ShowText("filtered out")
	bus.ShowReading(model.SensorReading{Temperature: 21.5, Humidity: 48})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventReading, msg.Type)
	assert.Equal(t, "21.5", msg.Data.(map[string]interface{})["temperature_text"])

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping", RequestID: "r1"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "pong", msg.Type)
	assert.Equal(t, "r1", msg.RequestID)
}
