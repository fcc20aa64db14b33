package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/CUknot/roomchat/chat"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 10000

	sendBuffer = 256
)

var errClientClosed = errors.New("client closed")

// Client represents a connected websocket client. It is the chat.Sink of
// its session.
type Client struct {
	hub        *Hub
	controller *chat.Controller
	conn       *websocket.Conn
	session    *chat.Session

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

func newClient(hub *Hub, controller *chat.Controller, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:        hub,
		controller: controller,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Deliver queues payload for the writer. It fails once the connection is
// closing or when ctx expires first.
func (c *Client) Deliver(ctx context.Context, payload []byte) error {
	select {
	case <-c.done:
		return errClientClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errClientClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
	})
}

func (c *Client) sendEvent(eventType string, payload interface{}) {
	msgBytes, err := json.Marshal(chat.Event{Type: eventType, Payload: payload})
	if err != nil {
		log.Printf("error marshaling %s event: %v", eventType, err)
		return
	}
	if err := c.Deliver(c.ctx, msgBytes); err != nil {
		log.Printf("error sending %s event to session %s: %v", eventType, c.session.ID, err)
	}
}

func (c *Client) sendError(message string) {
	c.sendEvent(chat.EventError, chat.ErrorPayload{Message: message})
}

// readPump pumps messages from the websocket connection to the controller
func (c *Client) readPump() {
	defer func() {
		c.controller.Disconnect(c.session)
		c.hub.unregister(c)
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}

		HandleIncomingMessage(c, message)
	}
}

// writePump pumps queued payloads to the websocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
