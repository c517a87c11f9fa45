package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"channel-trader/internal/notify"
	"channel-trader/internal/position"
	"channel-trader/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);
`

// Publisher 接收已落库的事件，用于实时推送。
type Publisher interface {
	Publish(event Event)
}

// Service 负责持久化监控事件，并可选地推送给实时订阅者。
type Service struct {
	store     *store.Store
	publisher Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(ctx context.Context, st *store.Store, publisher Publisher, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := st.Migrate(ctx, schema); err != nil {
		return nil, fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return &Service{
		store:     st,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}, nil
}

// Record 写入单个事件，返回带 ID 的事件。
func (s *Service) Record(ctx context.Context, event Event) (Event, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return event, fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	res, err := s.store.DB().ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return event, fmt.Errorf("monitor: 写入事件失败: %w", err)
	}
	if id, idErr := res.LastInsertId(); idErr == nil {
		event.ID = id
	}

	if s.publisher != nil {
		s.publisher.Publish(event)
	}
	return event, nil
}

func (s *Service) record(ctx context.Context, typ EventType, payload interface{}) {
	if _, err := s.Record(ctx, Event{Type: typ, Payload: payload}); err != nil {
		s.logger.Warn("记录监控事件失败", zap.String("type", string(typ)), zap.Error(err))
	}
}

// RecordCycle 记录一次轮询结果。
func (s *Service) RecordCycle(ctx context.Context, payload CyclePayload) {
	s.record(ctx, EventCycle, payload)
}

// RecordOrder 记录下单结果。
func (s *Service) RecordOrder(ctx context.Context, payload OrderPayload) {
	s.record(ctx, EventOrder, payload)
}

// RecordPosition 记录持仓快照。
func (s *Service) RecordPosition(ctx context.Context, pos position.Position) {
	s.record(ctx, EventPosition, PositionPayload{
		Side:          string(pos.Side),
		Quantity:      pos.Quantity.String(),
		PositionID:    pos.ID,
		EntryPrice:    pos.EntryPrice,
		UnrealizedPnL: pos.UnrealizedPnL,
	})
}

// RecordBalance 记录余额变化。
func (s *Service) RecordBalance(ctx context.Context, marginCoin string, available float64) {
	s.record(ctx, EventBalance, BalancePayload{MarginCoin: marginCoin, Available: available})
}

// RecordDelivery 记录通知推送，可直接作为 notify.WithObserver 的回调。
func (s *Service) RecordDelivery(d notify.Delivery) {
	payload := NotificationPayload{
		Messages:   d.Messages,
		Attachment: d.HasAttachment,
		Forced:     d.Forced,
	}
	if d.Err != nil {
		payload.Error = d.Err.Error()
	}
	s.record(context.Background(), EventNotification, payload)
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{Message: msg, Context: ctxMap}
	if err != nil {
		payload.Error = err.Error()
	}
	s.record(ctx, EventError, payload)
}

// ListEvents 按类型检索最近事件，eventType 为空时返回全部类型。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			id      int64
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&id, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			ts = time.Time{}
		}

		events = append(events, Event{
			ID:        id,
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}
	return events, nil
}
