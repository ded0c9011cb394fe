/**
 * @description
 * Trigger queue for request-created events.
 * A Redis Stream with one consumer group; delivery is at-least-once, so the
 * processor must absorb duplicates. Failed entries stay pending with a retry
 * time, and entries idle under a vanished consumer are claimed by live ones.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/curio-market/backend/internal/metrics"
	"github.com/curio-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	TriggerStream       = "appraisal:requests"
	TriggerGroup        = "processors"
	triggerAttemptsKey  = "appraisal:attempts"
	triggerRetryAtKey   = "appraisal:retry_at"
	triggerStreamMaxLen = 100000
)

// TriggerQueue wraps the request-created stream and its consumer group
type TriggerQueue struct {
	redis  *redis.Client
	stream string
	group  string
	now    func() time.Time
}

// TriggerMessage is one delivered stream entry.
// Request is nil and DecodeErr is set when the payload could not be decoded.
type TriggerMessage struct {
	ID        string
	RequestID uuid.UUID
	Request   *models.AppraisalRequest
	DecodeErr error
}

// NewTriggerQueue creates a TriggerQueue on the default stream and group
func NewTriggerQueue(rdb *redis.Client) *TriggerQueue {
	return &TriggerQueue{
		redis:  rdb,
		stream: TriggerStream,
		group:  TriggerGroup,
		now:    time.Now,
	}
}

// EnsureGroup creates the stream and consumer group if they do not exist yet
func (q *TriggerQueue) EnsureGroup(ctx context.Context) error {
	err := q.redis.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

// Enqueue appends a request-created event and returns the stream entry id
func (q *TriggerQueue) Enqueue(ctx context.Context, req *models.AppraisalRequest) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	id, err := q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		MaxLen: triggerStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"request_id": req.ID.String(),
			"payload":    string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue appraisal %s: %w", req.ID, err)
	}
	return id, nil
}

// ReadNew waits up to block for entries never delivered to the group.
// A non-positive block returns immediately.
func (q *TriggerQueue) ReadNew(ctx context.Context, consumer string, count int64, block time.Duration) ([]TriggerMessage, error) {
	if block <= 0 {
		block = -1
	}
	return q.readGroup(ctx, consumer, ">", count, block)
}

// ReadDue first takes over entries other consumers left unacknowledged for at
// least claimIdle, then returns up to count of this consumer's pending
// entries whose retry time has passed. It never blocks.
func (q *TriggerQueue) ReadDue(ctx context.Context, consumer string, count int64, claimIdle time.Duration) ([]TriggerMessage, error) {
	if claimIdle > 0 {
		if err := q.claimIdle(ctx, consumer, count, claimIdle); err != nil {
			return nil, err
		}
	}

	now := q.now()
	var due []TriggerMessage
	start := "0"
	for int64(len(due)) < count {
		page, err := q.readGroup(ctx, consumer, start, count, -1)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}

		retryAt, err := q.retryTimes(ctx, page)
		if err != nil {
			return nil, err
		}
		for i, m := range page {
			if retryAt[i].After(now) {
				continue
			}
			due = append(due, m)
			if int64(len(due)) == count {
				break
			}
		}

		if int64(len(page)) < count {
			break
		}
		start = page[len(page)-1].ID
	}
	return due, nil
}

// claimIdle moves entries idle for at least minIdle to consumer, so entries
// left behind by a consumer that went away are not stranded.
func (q *TriggerQueue) claimIdle(ctx context.Context, consumer string, count int64, minIdle time.Duration) error {
	ids, _, err := q.redis.XAutoClaimJustID(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil {
		return fmt.Errorf("claim idle entries: %w", err)
	}
	if len(ids) > 0 {
		metrics.TriggerClaimedTotal.Add(float64(len(ids)))
	}
	return nil
}

func (q *TriggerQueue) readGroup(ctx context.Context, consumer, start string, count int64, block time.Duration) ([]TriggerMessage, error) {
	streams, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: consumer,
		Streams:  []string{q.stream, start},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []TriggerMessage
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, decodeTriggerMessage(m))
		}
	}
	return out, nil
}

// retryTimes returns each entry's scheduled retry time; the zero time means due now
func (q *TriggerQueue) retryTimes(ctx context.Context, msgs []TriggerMessage) ([]time.Time, error) {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	vals, err := q.redis.HMGet(ctx, triggerRetryAtKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("load retry times: %w", err)
	}

	out := make([]time.Time, len(msgs))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			out[i] = time.UnixMilli(ms)
		}
	}
	return out, nil
}

func decodeTriggerMessage(m redis.XMessage) TriggerMessage {
	msg := TriggerMessage{ID: m.ID}

	if raw, ok := m.Values["request_id"].(string); ok {
		msg.RequestID, _ = uuid.Parse(raw)
	}

	raw, ok := m.Values["payload"].(string)
	if !ok {
		msg.DecodeErr = errors.New("missing payload")
		return msg
	}

	var req models.AppraisalRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		msg.DecodeErr = fmt.Errorf("decode payload: %w", err)
		return msg
	}
	msg.Request = &req
	if msg.RequestID == uuid.Nil {
		msg.RequestID = req.ID
	}
	return msg
}

// Ack removes the entry from the group's pending list and forgets its retry state
func (q *TriggerQueue) Ack(ctx context.Context, id string) error {
	if err := q.redis.XAck(ctx, q.stream, q.group, id).Err(); err != nil {
		return err
	}
	_, err := q.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, triggerAttemptsKey, id)
		pipe.HDel(ctx, triggerRetryAtKey, id)
		return nil
	})
	return err
}

// RecordFailure increments and returns the failed-attempt count for an entry
func (q *TriggerQueue) RecordFailure(ctx context.Context, id string) (int64, error) {
	return q.redis.HIncrBy(ctx, triggerAttemptsKey, id, 1).Result()
}

// ScheduleRetry keeps ReadDue from returning the entry until delay has passed
func (q *TriggerQueue) ScheduleRetry(ctx context.Context, id string, delay time.Duration) error {
	at := q.now().Add(delay).UnixMilli()
	return q.redis.HSet(ctx, triggerRetryAtKey, id, at).Err()
}
