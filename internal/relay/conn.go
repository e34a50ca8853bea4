// Patchbay - Live-Coding Panel Sync and Control Surface
// Copyright 2026 Patchbay contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/patchbay-live/patchbay

package relay

import (
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/patchbay-live/patchbay/internal/logging"
	"github.com/patchbay-live/patchbay/internal/protocol"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// connIDCounter generates unique, monotonically increasing ids so
// connections can be iterated in a consistent order during fan-out.
var connIDCounter atomic.Uint64

// Conn is a middleman between one websocket connection and the hub. Its
// role starts as unknown and is assigned by the hub when the peer sends
// client.register; the role field is owned by the hub.
type Conn struct {
	id   uint64
	hub  *Hub
	ws   *websocket.Conn
	send chan protocol.Envelope
}

// NewConn wraps an upgraded websocket connection.
func NewConn(hub *Hub, ws *websocket.Conn) *Conn {
	return &Conn{
		id:   connIDCounter.Add(1),
		hub:  hub,
		ws:   ws,
		send: make(chan protocol.Envelope, hub.sendBuffer),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uint64 {
	return c.id
}

// readPump pumps raw frames from the websocket to the hub. The hub owns
// all interpretation; a malformed frame never tears down the connection
// from this side.
func (c *Conn) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Uint64("conn_id", c.id).Msg("unexpected websocket close error")
			}
			break
		}
		c.hub.inbound <- frame{conn: c, data: data}
	}
}

// writePump pumps envelopes from the hub to the websocket connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel
				if err := c.ws.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.ws.WriteJSON(env); err != nil {
				logging.Error().Err(err).Uint64("conn_id", c.id).Msg("failed to write envelope")
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start begins reading and writing for the connection.
func (c *Conn) Start() {
	go c.writePump()
	go c.readPump()
}
