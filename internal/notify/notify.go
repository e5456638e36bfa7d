// Package notify fans committed state changes out to the listening
// collaborators: WebSocket terminals in the branch, and the RabbitMQ queues
// consumed by cash reconciliation and inventory. Every publish is
// fire-and-forget after the DB commit; failures are logged and never fail
// the request that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/comanda-pos/api/internal/ws"
)

// Queue names consumed by the downstream collaborators.
const (
	QueueSettlementRecorded = "settlement.recorded"
	QueueOrderCancelled     = "order.cancelled"
	QueueInventoryDeduct    = "inventory.deduct"
)

// Events is the single notification surface the handlers call. A nil hub or
// empty AMQP URL disables that leg; the other keeps working.
type Events struct {
	hub     *ws.Hub
	amqpURL string
}

func New(hub *ws.Hub, amqpURL string) *Events {
	return &Events{hub: hub, amqpURL: amqpURL}
}

// Broadcast pushes one event to every terminal in the branch.
func (e *Events) Broadcast(branchID uuid.UUID, eventType string, payload interface{}) {
	if e == nil || e.hub == nil {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	e.hub.BroadcastToBranch(branchID, ws.Event{Type: eventType, Payload: body})
}

// Publish enqueues one persistent message for a downstream consumer. The
// connection is dialed per publish; settlement volume is low enough that a
// pooled channel is not worth the reconnect handling.
func (e *Events) Publish(ctx context.Context, queue string, payload interface{}) error {
	if e == nil || e.amqpURL == "" {
		return nil
	}

	conn, err := amqp.Dial(e.amqpURL)
	if err != nil {
		log.Printf("ERROR: rabbitmq dial: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Printf("ERROR: rabbitmq channel: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		log.Printf("ERROR: rabbitmq declare %s: %v", queue, err)
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s message: %v", queue, err)
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		log.Printf("ERROR: rabbitmq publish %s: %v", queue, err)
		return err
	}
	return nil
}

// SettlementMessage is the record handed to the cash-reconciliation
// consumer. Amounts are fixed-point strings.
type SettlementMessage struct {
	SettlementID   uuid.UUID `json:"settlement_id"`
	OrderID        uuid.UUID `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	BranchID       uuid.UUID `json:"branch_id"`
	PaymentMethod  string    `json:"payment_method"`
	Amount         string    `json:"amount"`
	AmountReceived string    `json:"amount_received"`
	ChangeAmount   string    `json:"change_amount"`
	ProcessedBy    uuid.UUID `json:"processed_by"`
	ProcessedAt    time.Time `json:"processed_at"`
}

// InventoryLine is one product deduction for the inventory consumer.
type InventoryLine struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int32     `json:"quantity"`
}

// InventoryMessage asks the inventory collaborator to deduct the consumed
// stock for a settled order.
type InventoryMessage struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	BranchID    uuid.UUID       `json:"branch_id"`
	Lines       []InventoryLine `json:"lines"`
	SettledAt   time.Time       `json:"settled_at"`
}
