package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"channel-trader/internal/config"
	"channel-trader/internal/notify"
	"channel-trader/internal/position"
	"channel-trader/internal/store"
)

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (c *capturePublisher) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestService_RecordAndList(t *testing.T) {
	ctx := context.Background()
	pub := &capturePublisher{}
	svc, err := NewService(ctx, newTestStore(t), pub, nil)
	require.NoError(t, err)

	svc.RecordBalance(ctx, "USDT", 1000)
	svc.RecordPosition(ctx, position.New(position.SideLong, decimal.RequireFromString("2.5"), "p1", 1.5, 2000))
	svc.RecordError(ctx, "查询持仓失败", errors.New("timeout"), map[string]interface{}{"symbol": "ETHUSDT"})
	svc.RecordDelivery(notify.Delivery{Messages: 3, Forced: true})

	all, err := svc.ListEvents(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, EventNotification, all[0].Type)
	assert.Equal(t, EventBalance, all[3].Type)
	assert.Greater(t, all[0].ID, all[3].ID)

	positions, err := svc.ListEvents(ctx, EventPosition, 10)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	var p PositionPayload
	require.NoError(t, json.Unmarshal(positions[0].Payload.(json.RawMessage), &p))
	assert.Equal(t, "long", p.Side)
	assert.Equal(t, "2.5", p.Quantity)
	assert.Equal(t, "p1", p.PositionID)

	require.Len(t, pub.events, 4)
	assert.Equal(t, all[3].ID, pub.events[0].ID)
}

func TestService_ListLimit(t *testing.T) {
	ctx := context.Background()
	svc, err := NewService(ctx, newTestStore(t), nil, nil)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		svc.RecordCycle(ctx, CyclePayload{Close: float64(i)})
	}
	events, err := svc.ListEvents(ctx, EventCycle, 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestNewService_RequiresStore(t *testing.T) {
	_, err := NewService(context.Background(), nil, nil, nil)
	assert.Error(t, err)
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.Publish(Event{ID: 7, Type: EventOrder, Payload: OrderPayload{Action: "open_long", Executed: true}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var got struct {
		ID      int64        `json:"id"`
		Type    EventType    `json:"type"`
		Payload OrderPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, EventOrder, got.Type)
	assert.Equal(t, "open_long", got.Payload.Action)
}

func TestHub_PublishAfterStopDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastQueue*2; i++ {
			hub.Publish(Event{Type: EventCycle})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish 阻塞")
	}
}
