package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"grouporder-services/internal/grouporder"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	GroupOrderExchange  = "grouporder.events"
	GroupOrderPlacedRK  = "grouporder.placed"
	GroupOrderQueue     = "grouporder.orders.create"
	GroupOrderDLX       = "grouporder.dead"
	GroupOrderDLQ       = "grouporder.orders.dlq"
	GroupOrderDeadRK    = "dead"
	GroupOrderEventType = "grouporder.placed"
)

// PlacedEvent is the message body for a finalized group order.
type PlacedEvent struct {
	Type       string                `json:"type"`
	Submission grouporder.Submission `json:"submission"`
}

// EnsureGroupOrderTopology declares the events exchange, the order-creation queue
// and its dead-letter queue.
func EnsureGroupOrderTopology(qc *Client) error {
	if err := qc.EnsureExchangeKind(GroupOrderExchange, "topic"); err != nil {
		return err
	}
	if err := qc.EnsureExchangeKind(GroupOrderDLX, "direct"); err != nil {
		return err
	}
	if _, err := qc.EnsureQueueWithArgs(GroupOrderDLQ, nil); err != nil {
		return err
	}
	if err := qc.BindQueue(GroupOrderDLQ, GroupOrderDLX, GroupOrderDeadRK); err != nil {
		return err
	}
	if _, err := qc.EnsureQueueWithArgs(GroupOrderQueue, amqp.Table{
		"x-dead-letter-exchange":    GroupOrderDLX,
		"x-dead-letter-routing-key": GroupOrderDeadRK,
	}); err != nil {
		return err
	}
	// '#' so future routing keys like grouporder.placed.v2 still land here.
	return qc.BindQueue(GroupOrderQueue, GroupOrderExchange, "grouporder.placed.#")
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, exchange, routingKey, messageID string, payload any) error
}

// Publisher hands placed orders to the order-creation consumer through RabbitMQ.
type Publisher struct {
	qc jsonPublisher
}

func NewPublisher(qc *Client) *Publisher {
	return &Publisher{qc: qc}
}

func (p *Publisher) Submit(ctx context.Context, sub grouporder.Submission) error {
	event := PlacedEvent{Type: GroupOrderEventType, Submission: sub}
	if err := p.qc.PublishJSON(ctx, GroupOrderExchange, GroupOrderPlacedRK, sub.SessionID, event); err != nil {
		return fmt.Errorf("publish %s: %w", GroupOrderPlacedRK, err)
	}
	return nil
}

// DecodePlacedEvent parses a message body produced by Publisher.
func DecodePlacedEvent(body []byte) (PlacedEvent, error) {
	var event PlacedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return PlacedEvent{}, fmt.Errorf("decode placed event: %w", err)
	}
	if event.Type != GroupOrderEventType {
		return PlacedEvent{}, fmt.Errorf("unexpected event type %q", event.Type)
	}
	if event.Submission.SessionID == "" {
		return PlacedEvent{}, fmt.Errorf("placed event without session id")
	}
	return event, nil
}
