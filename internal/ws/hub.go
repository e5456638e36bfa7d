package ws

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// Event types pushed to floor and kitchen displays.
const (
	EventTableChanged    = "table.changed"
	EventOrderChanged    = "order.changed"
	EventOrderItemAdded  = "order.item_added"
	EventOrderItemVoided = "order.item_voided"
	EventOrderSettled    = "order.settled"
	EventOrderCancelled  = "order.cancelled"
)

// Event is one push message. Payload is pre-marshalled by the producer so
// the hub never blocks on reflection.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type branchEvent struct {
	BranchID uuid.UUID
	Event    Event
}

// Hub fans events out to the terminals of a branch. Each branch is a room;
// a terminal only ever sees its own branch's traffic.
type Hub struct {
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *branchEvent

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *branchEvent, 256),
	}
}

// Run is the hub's main loop; call as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.branchID] == nil {
				h.rooms[client.branchID] = make(map[*Client]bool)
			}
			h.rooms[client.branchID][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.branchID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.branchID)
					}
				}
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			h.mu.Lock()
			clients := h.rooms[event.BranchID]

			message, err := json.Marshal(event.Event)
			if err != nil {
				h.mu.Unlock()
				continue
			}

			for client := range clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer: drop the connection rather than the branch.
					close(client.send)
					delete(h.rooms[event.BranchID], client)
					if len(h.rooms[event.BranchID]) == 0 {
						delete(h.rooms, event.BranchID)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastToBranch sends an event to every terminal connected for a branch.
func (h *Hub) BroadcastToBranch(branchID uuid.UUID, event Event) {
	h.broadcast <- &branchEvent{BranchID: branchID, Event: event}
}
