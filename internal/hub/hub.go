// Package hub fans recomputed reputation snapshots out to websocket
// subscribers. A single actor goroutine owns all subscription state; the
// public API communicates with it over a command channel, so no locks are
// needed and slow clients can be evicted without blocking broadcasts.
//
// Each connection has exactly one writer goroutine regardless of how many
// subjects it follows, keeping websocket writes serialized.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
	"github.com/ZulAmi/proofwork-reputation/internal/metrics"
)

const snapshotFetchTimeout = 10 * time.Second

// SnapshotFunc resolves the current snapshot for a subject, used to push an
// initial state to each new subscriber.
type SnapshotFunc func(ctx context.Context, subjectID string) (domain.ReputationSnapshot, error)

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	subjectID string
	conn      *websocket.Conn
	replyCh   chan registerResult
}

func (cmdRegister) hubCmd() {}

type registerResult struct {
	connID uuid.UUID
	err    error
}

type cmdAttach struct {
	connID    uuid.UUID
	subjectID string
	replyCh   chan error
}

func (cmdAttach) hubCmd() {}

type cmdDisconnect struct {
	connID uuid.UUID
}

func (cmdDisconnect) hubCmd() {}

type cmdBroadcast struct {
	subjectID string
	data      []byte
}

func (cmdBroadcast) hubCmd() {}

type cmdSendTo struct {
	subjectID string
	connID    uuid.UUID
	data      []byte
}

func (cmdSendTo) hubCmd() {}

type cmdClientCount struct {
	subjectID string
	replyCh   chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct {
	doneCh chan struct{}
}

func (cmdStop) hubCmd() {}

// --- Hub ---

type Hub struct {
	cmdCh                chan hubCmd
	writers              map[uuid.UUID]*clientWriter
	subjects             map[string]map[uuid.UUID]*clientWriter
	membership           map[uuid.UUID]map[string]struct{}
	snapshot             SnapshotFunc
	clock                clockwork.Clock
	maxClientsPerSubject int
}

func NewHub(snapshot SnapshotFunc, clock clockwork.Clock, maxClientsPerSubject int) *Hub {
	hub := &Hub{
		cmdCh:                make(chan hubCmd, 256),
		writers:              make(map[uuid.UUID]*clientWriter),
		subjects:             make(map[string]map[uuid.UUID]*clientWriter),
		membership:           make(map[uuid.UUID]map[string]struct{}),
		snapshot:             snapshot,
		clock:                clock,
		maxClientsPerSubject: maxClientsPerSubject,
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdAttach:
			c.replyCh <- h.join(c.subjectID, c.connID)
		case cmdDisconnect:
			h.handleDisconnect(c.connID, "")
		case cmdBroadcast:
			h.handleBroadcast(c)
		case cmdSendTo:
			h.handleSendTo(c)
		case cmdClientCount:
			c.replyCh <- len(h.subjects[c.subjectID])
		case cmdStop:
			h.handleStop()
			close(c.doneCh)
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if len(h.subjects[c.subjectID]) >= h.maxClientsPerSubject {
		slog.Warn("Rejecting subscriber, subject at capacity",
			"subjectId", c.subjectID,
			"limit", h.maxClientsPerSubject,
		)
		c.conn.Close()
		c.replyCh <- registerResult{err: fmt.Errorf("subject %s at subscriber capacity (%d)", c.subjectID, h.maxClientsPerSubject)}
		return
	}

	connID := uuid.New()
	h.writers[connID] = newClientWriter(c.conn, h.clock)
	h.membership[connID] = make(map[string]struct{})
	metrics.HubConnectedClients.Inc()

	if err := h.join(c.subjectID, connID); err != nil {
		// Capacity was checked above, so join cannot fail here, but keep
		// the connection consistent if that ever changes.
		h.handleDisconnect(connID, err.Error())
		c.replyCh <- registerResult{err: err}
		return
	}
	c.replyCh <- registerResult{connID: connID}
}

// join adds an existing connection to a subject's subscriber set and kicks
// off the initial snapshot push.
func (h *Hub) join(subjectID string, connID uuid.UUID) error {
	cw, ok := h.writers[connID]
	if !ok {
		return fmt.Errorf("unknown connection")
	}
	if _, already := h.membership[connID][subjectID]; already {
		return nil
	}

	clients, exists := h.subjects[subjectID]
	if !exists {
		clients = make(map[uuid.UUID]*clientWriter)
		h.subjects[subjectID] = clients
	}
	if len(clients) >= h.maxClientsPerSubject {
		return fmt.Errorf("subject %s at subscriber capacity (%d)", subjectID, h.maxClientsPerSubject)
	}

	clients[connID] = cw
	h.membership[connID][subjectID] = struct{}{}
	slog.Debug("Subscriber joined subject", "subjectId", subjectID, "clients", len(clients))

	// Push the current snapshot to just this subscriber. Fetched off the
	// actor goroutine so a recomputation cannot stall other commands.
	if h.snapshot != nil {
		go h.deliverInitialSnapshot(subjectID, connID)
	}
	return nil
}

func (h *Hub) deliverInitialSnapshot(subjectID string, connID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotFetchTimeout)
	defer cancel()

	snapshot, err := h.snapshot(ctx, subjectID)
	if err != nil {
		slog.Warn("Initial snapshot fetch failed, subscriber waits for next update",
			"subjectId", subjectID,
			"error", err,
		)
		return
	}

	data, err := json.Marshal(h.updateMessage(subjectID, snapshot))
	if err != nil {
		slog.Error("Marshaling initial snapshot failed", "subjectId", subjectID, "error", err)
		return
	}
	h.cmdCh <- cmdSendTo{subjectID: subjectID, connID: connID, data: data}
}

func (h *Hub) handleSendTo(c cmdSendTo) {
	if _, member := h.membership[c.connID][c.subjectID]; !member {
		return
	}
	cw := h.writers[c.connID]
	if cw == nil {
		return
	}
	if !cw.trySend(c.data) {
		h.evictSlow(c.subjectID, c.connID)
	}
}

func (h *Hub) handleDisconnect(connID uuid.UUID, reason string) {
	cw, exists := h.writers[connID]
	if !exists {
		return
	}

	for subjectID := range h.membership[connID] {
		clients := h.subjects[subjectID]
		delete(clients, connID)
		if len(clients) == 0 {
			delete(h.subjects, subjectID)
		}
	}
	delete(h.membership, connID)
	delete(h.writers, connID)
	metrics.HubConnectedClients.Dec()

	if reason != "" {
		cw.stopGraceful(reason)
	} else {
		cw.stop()
	}
}

func (h *Hub) handleBroadcast(c cmdBroadcast) {
	clients, exists := h.subjects[c.subjectID]
	if !exists {
		return
	}
	metrics.HubBroadcastsTotal.Inc()

	var slow []uuid.UUID
	for connID, cw := range clients {
		if !cw.trySend(c.data) {
			slow = append(slow, connID)
		}
	}
	for _, connID := range slow {
		h.evictSlow(c.subjectID, connID)
	}
}

func (h *Hub) evictSlow(subjectID string, connID uuid.UUID) {
	slog.Warn("Evicting slow subscriber", "subjectId", subjectID)
	metrics.HubSlowClientsEvicted.Inc()
	h.handleDisconnect(connID, "too slow consuming updates")
}

func (h *Hub) handleStop() {
	for connID, cw := range h.writers {
		cw.stopGraceful("server shutting down")
		delete(h.writers, connID)
		delete(h.membership, connID)
		metrics.HubConnectedClients.Dec()
	}
	clear(h.subjects)
}

func (h *Hub) updateMessage(subjectID string, snapshot domain.ReputationSnapshot) domain.ReputationUpdate {
	return domain.ReputationUpdate{
		Type:      domain.UpdateTypeReputation,
		SubjectID: subjectID,
		Snapshot:  snapshot,
		Timestamp: h.clock.Now(),
	}
}

// --- Public API ---

// Subscribe registers a connection for a subject's updates and returns the
// connection ID used for further attaches and for disconnect. The hub takes
// ownership of all writes to the connection.
func (h *Hub) Subscribe(subjectID string, conn *websocket.Conn) (uuid.UUID, error) {
	replyCh := make(chan registerResult, 1)
	h.cmdCh <- cmdRegister{subjectID: subjectID, conn: conn, replyCh: replyCh}
	result := <-replyCh
	return result.connID, result.err
}

// Attach subscribes an already-registered connection to another subject.
func (h *Hub) Attach(connID uuid.UUID, subjectID string) error {
	replyCh := make(chan error, 1)
	h.cmdCh <- cmdAttach{connID: connID, subjectID: subjectID, replyCh: replyCh}
	return <-replyCh
}

// Disconnect removes a connection from all subjects and closes it.
func (h *Hub) Disconnect(connID uuid.UUID) {
	h.cmdCh <- cmdDisconnect{connID: connID}
}

// Broadcast pushes a snapshot to every subscriber of the subject.
// Implements domain.Broadcaster.
func (h *Hub) Broadcast(subjectID string, snapshot domain.ReputationSnapshot) {
	data, err := json.Marshal(h.updateMessage(subjectID, snapshot))
	if err != nil {
		slog.Error("Marshaling broadcast failed", "subjectId", subjectID, "error", err)
		return
	}
	h.cmdCh <- cmdBroadcast{subjectID: subjectID, data: data}
}

// ClientCount returns the number of live subscribers for a subject.
func (h *Hub) ClientCount(subjectID string) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdClientCount{subjectID: subjectID, replyCh: replyCh}
	return <-replyCh
}

// Stop disconnects all subscribers and shuts the actor down.
func (h *Hub) Stop() {
	doneCh := make(chan struct{})
	h.cmdCh <- cmdStop{doneCh: doneCh}
	<-doneCh
}
