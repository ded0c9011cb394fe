package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/metrics"
	"github.com/curio-market/backend/internal/models"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ResultChannel carries ResultEvent JSON for every finished appraisal
const ResultChannel = "appraisal:results"

// ResultEvent announces that a request reached a terminal status
type ResultEvent struct {
	RequestID uuid.UUID               `json:"request_id"`
	Status    models.AppraisalStatus  `json:"status"`
	Result    *models.AppraisalResult `json:"result,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// PublishResultEvent broadcasts an event to every API instance
func PublishResultEvent(ctx context.Context, rdb *redis.Client, event ResultEvent) error {
	if rdb == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return rdb.Publish(ctx, ResultChannel, payload).Err()
}

// ResultStreamHub multiplexes one Redis subscription to the SSE clients
// waiting on individual requests.
type ResultStreamHub struct {
	redis       *redis.Client
	channelName string
	log         logger.Component

	mu          sync.RWMutex
	subscribers map[uuid.UUID]map[chan ResultEvent]struct{}

	cancel    context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
}

// NewResultStreamHub starts the hub; it stops when ctx is cancelled or Close is called.
func NewResultStreamHub(ctx context.Context, rdb *redis.Client, channel string) *ResultStreamHub {
	ctx, cancel := context.WithCancel(ctx)
	hub := &ResultStreamHub{
		redis:       rdb,
		channelName: channel,
		log:         logger.Named("ResultStreamHub"),
		subscribers: make(map[uuid.UUID]map[chan ResultEvent]struct{}),
		cancel:      cancel,
		done:        make(chan struct{}),
		ready:       make(chan struct{}),
	}

	go hub.run(ctx)

	return hub
}

func (h *ResultStreamHub) run(ctx context.Context) {
	defer close(h.done)

	for {
		pubsub := h.redis.Subscribe(ctx, h.channelName)
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			if ctx.Err() != nil {
				return
			}
			h.log.Error("subscribe failed: %v", err)
		} else {
			h.readyOnce.Do(func() { close(h.ready) })
			h.consume(ctx, pubsub.Channel(redis.WithChannelSize(1024)))
			_ = pubsub.Close()
		}

		// Avoid tight loop if Redis connection drops
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (h *ResultStreamHub) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event ResultEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				h.log.Warn("dropping malformed event: %v", err)
				continue
			}
			h.broadcast(event)
		}
	}
}

func (h *ResultStreamHub) broadcast(event ResultEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers[event.RequestID] {
		// One terminal event per request; a full buffer already holds it.
		select {
		case sub <- event:
		default:
		}
	}
}

// Subscribe registers a listener for one request and returns a channel plus cleanup function.
func (h *ResultStreamHub) Subscribe(requestID uuid.UUID) (<-chan ResultEvent, func()) {
	ch := make(chan ResultEvent, 1)

	h.mu.Lock()
	subs, ok := h.subscribers[requestID]
	if !ok {
		subs = make(map[chan ResultEvent]struct{})
		h.subscribers[requestID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()
	metrics.ResultStreamSubscribers.Inc()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(subs, ch)
			if len(subs) == 0 {
				delete(h.subscribers, requestID)
			}
			h.mu.Unlock()
			metrics.ResultStreamSubscribers.Dec()
		})
	}

	return ch, unsubscribe
}

// Ready is closed once the first Redis subscription is confirmed
func (h *ResultStreamHub) Ready() <-chan struct{} {
	return h.ready
}

// Close stops the subscription loop and waits for it to exit
func (h *ResultStreamHub) Close() {
	h.cancel()
	<-h.done
}
