// Package realtime pushes user events to connected websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

const (
	MaxConnsPerUser = 10
	sendBufferSize  = 64

	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongWait      = 60 * time.Second
)

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	userID uuid.UUID
	conn   *websocket.Conn
	errCh  chan error
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	userID uuid.UUID
	conn   *websocket.Conn
}

func (cmdUnregister) hubCmd() {}

type cmdDeliver struct {
	userID uuid.UUID
	data   []byte
}

func (cmdDeliver) hubCmd() {}

type cmdClientCount struct {
	userID  uuid.UUID
	replyCh chan int
}

func (cmdClientCount) hubCmd() {}

type cmdStop struct {
	done chan struct{}
}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-cw.sendCh:
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = cw.conn.Close()
				return
			}
		case <-ticker.C:
			_ = cw.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = cw.conn.Close()
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	_ = cw.conn.Close()
}

// --- Hub ---

// Hub owns every websocket connection of this instance, grouped by user.
// All state lives in the run goroutine; methods send it commands.
type Hub struct {
	cmdCh   chan hubCmd
	clients map[uuid.UUID]map[*websocket.Conn]*clientWriter
	log     *logrus.Logger
}

// NewHub starts a hub.
func NewHub(log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		clients: make(map[uuid.UUID]map[*websocket.Conn]*clientWriter),
		log:     log,
	}
	go h.run()
	return h
}

// Register adds a connection for userID. It fails, closing conn, when the user
// already has MaxConnsPerUser connections.
func (h *Hub) Register(userID uuid.UUID, conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	h.cmdCh <- cmdRegister{userID: userID, conn: conn, errCh: errCh}
	return <-errCh
}

// Unregister removes a connection.
func (h *Hub) Unregister(userID uuid.UUID, conn *websocket.Conn) {
	h.cmdCh <- cmdUnregister{userID: userID, conn: conn}
}

// Deliver sends event to every connection of its user on this instance.
func (h *Hub) Deliver(event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.WithError(err).Warn("Failed to marshal realtime event")
		return
	}
	h.cmdCh <- cmdDeliver{userID: event.UserID, data: data}
}

// ClientCount returns the number of connections userID has on this instance.
func (h *Hub) ClientCount(userID uuid.UUID) int {
	replyCh := make(chan int, 1)
	h.cmdCh <- cmdClientCount{userID: userID, replyCh: replyCh}
	return <-replyCh
}

// Stop closes every connection and stops the hub.
func (h *Hub) Stop() {
	done := make(chan struct{})
	h.cmdCh <- cmdStop{done: done}
	<-done
}

// Serve registers conn and reads from it until the client goes away.
// Clients never send anything meaningful; reading keeps pong handling alive.
func (h *Hub) Serve(userID uuid.UUID, conn *websocket.Conn) error {
	if err := h.Register(userID, conn); err != nil {
		return err
	}
	defer h.Unregister(userID, conn)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.userID, c.conn)
		case cmdDeliver:
			h.handleDeliver(c)
		case cmdClientCount:
			c.replyCh <- len(h.clients[c.userID])
		case cmdStop:
			for userID, conns := range h.clients {
				for conn, cw := range conns {
					cw.stop()
					delete(conns, conn)
				}
				delete(h.clients, userID)
			}
			close(c.done)
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*websocket.Conn]*clientWriter)
		h.clients[c.userID] = conns
	}
	if len(conns) >= MaxConnsPerUser {
		_ = c.conn.Close()
		c.errCh <- fmt.Errorf("max connections per user (%d) reached", MaxConnsPerUser)
		return
	}
	conns[c.conn] = newClientWriter(c.conn)
	h.log.WithFields(logrus.Fields{"user_id": c.userID, "connections": len(conns)}).Debug("Realtime client registered")
	c.errCh <- nil
}

func (h *Hub) handleUnregister(userID uuid.UUID, conn *websocket.Conn) {
	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	cw, ok := conns[conn]
	if !ok {
		return
	}
	cw.stop()
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) handleDeliver(c cmdDeliver) {
	conns := h.clients[c.userID]
	var slow []*websocket.Conn
	for conn, cw := range conns {
		select {
		case cw.sendCh <- c.data:
		default:
			slow = append(slow, conn)
		}
	}
	for _, conn := range slow {
		h.log.WithField("user_id", c.userID).Warn("Dropping slow realtime client")
		h.handleUnregister(c.userID, conn)
	}
}

// LocalPublisher delivers events straight to the hub of this instance. It is
// used when no Redis event bus is configured.
type LocalPublisher struct {
	Hub *Hub
}

var _ domain.EventPublisher = LocalPublisher{}

// Publish implements domain.EventPublisher.
func (p LocalPublisher) Publish(_ context.Context, event domain.Event) error {
	p.Hub.Deliver(event)
	return nil
}
