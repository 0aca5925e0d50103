// Package activity publishes an operator activity feed. Recording never fails
// the caller: sink errors are logged and dropped.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/internal/logging"
)

const (
	KindQRScan         = "qr_scan"
	KindDeparture      = "departure"
	KindFaceCapture    = "face_capture"
	KindVisitorCreated = "visitor_created"
	KindServerActivity = "server_activity"
)

type Event struct {
	Kind       string         `json:"kind"`
	VisitorID  string         `json:"visitor_id,omitempty"`
	OperatorID string         `json:"operator_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	At         time.Time      `json:"at"`
}

type Sink interface {
	Record(ctx context.Context, evt Event)
}

// Log writes events to the structured logger only.
type Log struct {
	log logging.Logger
}

func NewLog(log logging.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Record(ctx context.Context, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	l.log.Info(ctx, "activity", "kind", evt.Kind, "visitor_id", evt.VisitorID, "operator_id", evt.OperatorID, "details", evt.Details)
}

// RedisStream appends events to a capped Redis stream that dashboards tail.
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
	log    logging.Logger
}

func NewRedisStream(client *redis.Client, stream string, maxLen int64, log logging.Logger) *RedisStream {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen, log: log}
}

func (r *RedisStream) Record(ctx context.Context, evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	details := "{}"
	if len(evt.Details) > 0 {
		if b, err := json.Marshal(evt.Details); err == nil {
			details = string(b)
		}
	}
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		MaxLen: r.maxLen,
		Values: map[string]any{
			"kind":        evt.Kind,
			"visitor_id":  evt.VisitorID,
			"operator_id": evt.OperatorID,
			"at":          evt.At.Format(time.RFC3339Nano),
			"details":     details,
		},
	}).Err()
	if err != nil {
		r.log.Warn(ctx, "activity publish failed", "kind", evt.Kind, "visitor_id", evt.VisitorID, "err", err)
	}
}

// Recent returns up to n events, newest first.
func (r *RedisStream) Recent(ctx context.Context, n int64) ([]Event, error) {
	msgs, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		evt := Event{
			Kind:       str(m.Values["kind"]),
			VisitorID:  str(m.Values["visitor_id"]),
			OperatorID: str(m.Values["operator_id"]),
		}
		evt.At, _ = time.Parse(time.RFC3339Nano, str(m.Values["at"]))
		if d := str(m.Values["details"]); d != "" && d != "{}" {
			_ = json.Unmarshal([]byte(d), &evt.Details)
		}
		out = append(out, evt)
	}
	return out, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
