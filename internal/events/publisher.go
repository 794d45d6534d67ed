// Package events publishes completed-order events to Kafka so
// downstream services (fulfillment, accounting) learn about finished
// checkouts without polling the merchant API.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/AltanReisoglu/UCP-AGENT/internal/domain"
)

const publishTimeout = time.Second * 5

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements engine.Listener and forwards terminal session
// changes to Kafka. Writes happen on an internal goroutine so the
// engine's per-session lock is never held across a broker round trip.
type Publisher struct {
	writer kafkaWriter
	queue  chan kafka.Message
	wg     sync.WaitGroup
	once   sync.Once
}

func NewPublisher(topic string, brokers ...string) *Publisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w)
}

func newPublisher(w kafkaWriter) *Publisher {
	p := &Publisher{
		writer: w,
		queue:  make(chan kafka.Message, 128),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			log.Printf("failed to publish event key=%s: %v", msg.Key, err)
		}
		cancel()
	}
}

// OnSessionChange implements engine.Listener. Only completed and
// canceled sessions produce events; intermediate updates stay local.
func (p *Publisher) OnSessionChange(session *domain.CheckoutSession) {
	if !session.Status.IsTerminal() {
		return
	}

	eventType := "checkout-canceled"
	payload := map[string]interface{}{
		"checkout_id": session.ID,
		"currency":    session.Currency,
		"status":      session.Status,
		"updated_at":  session.UpdatedAt,
	}
	if session.Status == domain.CheckoutStatusCompleted && session.Order != nil {
		eventType = "checkout-completed"
		payload["order_id"] = session.Order.ID
		payload["grand_total"] = session.Totals.GrandTotal
		payload["mandate_digest"] = session.Order.MandateDigest
		payload["completed_at"] = session.Order.CompletedAt
	}

	value, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal %s event for %v: %v", eventType, session.ID, err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(session.ID), // checkout_id for ordering
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	select {
	case p.queue <- msg:
	default:
		log.Printf("event queue full, dropping %s event for %v", eventType, session.ID)
	}
}

// Close drains queued events and shuts down the writer.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.queue) })
	p.wg.Wait()
	return p.writer.Close()
}
