package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, branchID uuid.UUID) *Client {
	return &Client{
		hub:      hub,
		branchID: branchID,
		send:     make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	branchID := uuid.New()
	client := mockClient(hub, branchID)

	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms[branchID] == nil {
		t.Fatal("branch room not created")
	}
	if !hub.rooms[branchID][client] {
		t.Fatal("client not registered in branch room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	branchID := uuid.New()
	client := mockClient(hub, branchID)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	// Room should be cleaned up when empty
	if hub.rooms[branchID] != nil {
		t.Fatal("branch room not cleaned up after last client unregistered")
	}
}

func TestBroadcastStaysInBranch(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	branch1 := uuid.New()
	branch2 := uuid.New()

	client1 := mockClient(hub, branch1)
	client2 := mockClient(hub, branch2)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	testPayload := json.RawMessage(`{"table_id":"test-123"}`)
	hub.BroadcastToBranch(branch1, Event{
		Type:    EventTableChanged,
		Payload: testPayload,
	})

	// Check client1 receives the message
	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != EventTableChanged {
			t.Errorf("expected type %q, got %q", EventTableChanged, received.Type)
		}
		if string(received.Payload) != string(testPayload) {
			t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	// Check client2 does NOT receive the message
	select {
	case <-client2.send:
		t.Fatal("client2 should not have received another branch's message")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message received
	}
}

func TestBroadcastToMultipleClientsInSameBranch(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	branchID := uuid.New()
	client1 := mockClient(hub, branchID)
	client2 := mockClient(hub, branchID)

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToBranch(branchID, Event{
		Type:    EventOrderItemAdded,
		Payload: json.RawMessage(`{}`),
	})

	for i, c := range []*Client{client1, client2} {
		select {
		case <-c.send:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestSlowConsumerIsDropped(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	branchID := uuid.New()
	// A full send buffer marks the consumer as slow.
	client := &Client{hub: hub, branchID: branchID, send: make(chan []byte)}

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToBranch(branchID, Event{Type: EventOrderChanged, Payload: json.RawMessage(`{}`)})
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[branchID] != nil {
		t.Fatal("slow consumer should have been dropped and its room cleaned up")
	}
}
