package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parlakisik/carrier-exchange/src/internal/httpclient"
)

// DefaultQueueSize bounds the webhook deliveries waiting for the worker.
const DefaultQueueSize = 256

type delivery struct {
	url      string
	envelope Envelope
}

// Publisher logs every event and delivers it to the webhooks registered
// for its type, or to the catch-all webhook. Delivery runs on a background
// worker so Publish never waits on the network.
type Publisher struct {
	source     string
	httpClient *httpclient.Client

	mu        sync.RWMutex
	endpoints map[string]string
	fallback  string
	closed    bool

	queue chan delivery
	done  chan struct{}
}

func NewPublisher(source string) *Publisher {
	return NewPublisherWithClient(source, httpclient.NewClient(source, 5*time.Second))
}

func NewPublisherWithClient(source string, client *httpclient.Client) *Publisher {
	p := &Publisher{
		source:     source,
		httpClient: client,
		endpoints:  make(map[string]string),
		queue:      make(chan delivery, DefaultQueueSize),
		done:       make(chan struct{}),
	}
	go p.deliver()
	return p
}

// Close stops accepting webhook deliveries and waits until the queued ones
// are sent or ctx ends.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RegisterEndpoint routes eventType to webhookURL. An empty eventType sets
// the catch-all webhook.
func (p *Publisher) RegisterEndpoint(eventType, webhookURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if eventType == "" {
		p.fallback = webhookURL
		return
	}
	p.endpoints[eventType] = webhookURL
}

// Publish never fails on delivery problems; those are logged.
func (p *Publisher) Publish(ctx context.Context, eventType string, data any) error {
	payload, err := toMap(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	auctionID, _ := payload["auction_id"].(string)
	now := time.Now().UTC()
	envelope := Envelope{
		EventID:        "evt_" + uuid.NewString(),
		EventType:      eventType,
		SchemaVersion:  "1.0",
		IdempotencyKey: fmt.Sprintf("%s_%s_%d", eventType, auctionID, now.UnixNano()),
		Timestamp:      now,
		Source:         p.source,
		AuctionID:      auctionID,
		Data:           payload,
	}

	slog.InfoContext(ctx, "event_published",
		"event_id", envelope.EventID,
		"event_type", envelope.EventType,
		"auction_id", auctionID,
	)

	if url := p.endpointFor(eventType); url != "" {
		p.enqueue(ctx, delivery{url: url, envelope: envelope})
	}
	return nil
}

func (p *Publisher) enqueue(ctx context.Context, d delivery) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		slog.WarnContext(ctx, "webhook_dropped", "event_type", d.envelope.EventType, "reason", "publisher closed")
		return
	}
	select {
	case p.queue <- d:
	default:
		slog.WarnContext(ctx, "webhook_dropped", "event_type", d.envelope.EventType, "reason", "queue full")
	}
}

func (p *Publisher) deliver() {
	defer close(p.done)
	for d := range p.queue {
		p.sendWebhook(context.Background(), d.url, d.envelope)
	}
}

func (p *Publisher) endpointFor(eventType string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if url, ok := p.endpoints[eventType]; ok {
		return url
	}
	return p.fallback
}

func (p *Publisher) sendWebhook(ctx context.Context, url string, envelope Envelope) {
	headers := map[string]string{
		"X-Event-ID":   envelope.EventID,
		"X-Event-Type": envelope.EventType,
	}
	if err := p.httpClient.PostJSON(ctx, url, envelope, nil, headers); err != nil {
		slog.WarnContext(ctx, "webhook_failed",
			"url", url,
			"event_type", envelope.EventType,
			"error", err,
		)
	}
}

// toMap flattens a typed event payload into the envelope's data map.
func toMap(data any) (map[string]any, error) {
	if m, ok := data.(map[string]any); ok {
		return m, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}
