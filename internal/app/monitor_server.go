package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"channel-trader/internal/monitor"
	"channel-trader/internal/position"
	"channel-trader/internal/stats"
)

type eventLister interface {
	ListEvents(ctx context.Context, eventType monitor.EventType, limit int) ([]monitor.Event, error)
}

// statusSnapshot 为 /stats 返回的当前状态。
type statusSnapshot struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Quantity      string   `json:"quantity"`
	PositionID    string   `json:"position_id,omitempty"`
	EntryPrice    float64  `json:"entry_price"`
	UnrealizedPnL float64  `json:"unrealized_pnl"`
	Balance       float64  `json:"balance"`
	WinCount      int64    `json:"win_count"`
	LossCount     int64    `json:"loss_count"`
	WinRate       *float64 `json:"win_rate,omitempty"`
}

func newStatusSnapshot(symbol string, pos position.Position, balance float64, counter stats.Counter) statusSnapshot {
	s := statusSnapshot{
		Symbol:        symbol,
		Side:          string(pos.Side),
		Quantity:      pos.Quantity.String(),
		PositionID:    pos.ID,
		EntryPrice:    pos.EntryPrice,
		UnrealizedPnL: pos.UnrealizedPnL,
		Balance:       balance,
		WinCount:      counter.Wins,
		LossCount:     counter.Losses,
	}
	if rate, ok := counter.WinRate(); ok {
		s.WinRate = &rate
	}
	return s
}

func newMonitorHandler(events eventLister, hub *monitor.Hub, status func() statusSnapshot, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := monitor.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = monitor.EventType(strings.ToLower(typ))
		}

		list, err := events.ListEvents(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, list, logger)
	})
	mux.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status(), logger)
	})
	if hub != nil {
		mux.HandleFunc("/ws", hub.ServeWs)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入监控响应失败", zap.Error(err))
	}
}

// serveMonitor 阻塞运行监控接口直到 ctx 结束。监听失败只记录日志，不影响交易主循环。
func serveMonitor(ctx context.Context, port int, handler http.Handler, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info("监控接口已启动", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("关闭监控服务失败", zap.Error(err))
		}
		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("监控服务异常", zap.Error(err))
		}
		return nil
	}
}
