// network/connection.go
package network

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrBackpressure     = errors.New("send buffer full")
	ErrConnectionClosed = errors.New("connection closed")
	ErrMalformedFrame   = errors.New("malformed frame")
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Envelope is the frame every event travels in, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps payload into an envelope frame.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

type Connection interface {
	Send(frame []byte) error
	Close() error
	RemoteAddr() net.Addr
	SetHeartbeat(interval time.Duration)
	ReadEnvelope() (*Envelope, error)
}

// WSConnection queues outbound frames so a slow client never blocks the
// room that is broadcasting to it.
type WSConnection struct {
	conn      *websocket.Conn
	send      chan []byte
	heartbeat time.Duration
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
}

func NewWSConnection(conn *websocket.Conn) *WSConnection {
	c := &WSConnection{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *WSConnection) Send(frame []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *WSConnection) ReadEnvelope() (*Envelope, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("%w: envelope without event", ErrMalformedFrame)
	}
	return &env, nil
}

// SetHeartbeat starts pinging every interval and expects a pong within two.
func (c *WSConnection) SetHeartbeat(interval time.Duration) {
	c.mu.Lock()
	c.heartbeat = interval
	c.mu.Unlock()

	c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(interval * 2))
	})
}

func (c *WSConnection) SetReadLimit(limit int64) {
	c.conn.SetReadLimit(limit)
}

func (c *WSConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	<-c.done
	return c.conn.Close()
}

func (c *WSConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *WSConnection) pingInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.heartbeat
}

func (c *WSConnection) writePump() {
	defer close(c.done)

	ping := time.NewTicker(time.Second)
	defer ping.Stop()
	lastPing := time.Now()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.drain()
				return
			}
		case now := <-ping.C:
			interval := c.pingInterval()
			if interval <= 0 || now.Sub(lastPing) < interval {
				continue
			}
			lastPing = now
			if err := c.conn.WriteControl(websocket.PingMessage, nil, now.Add(writeTimeout)); err != nil {
				c.drain()
				return
			}
		}
	}
}

// drain discards queued frames until Close so Send never blocks on a dead
// writer.
func (c *WSConnection) drain() {
	c.conn.Close()
	for range c.send {
	}
}
