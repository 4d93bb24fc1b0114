// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
)

// Client represents one WebSocket connection to the relay. It carries the
// client-declared replay offset and the transport's resumed-session flag
// from the handshake; neither is persisted server-side.
type Client struct {
	id           string
	conn         *websocket.Conn
	send         chan []byte
	hub          *Hub
	submitter    *Submitter
	addr         string
	closed       bool
	resumed      bool
	serverOffset int64
	rateLimiter  *rateLimiter
	rateLimit    int
	refill       time.Duration
	log          zerolog.Logger
}

// newClient creates a Client for an upgraded connection. The send channel
// is buffered so fanout stays non-blocking up to the buffer size.
func newClient(conn *websocket.Conn, hub *Hub, submitter *Submitter, cfg *Config, addr string, log zerolog.Logger) *Client {
	id := uuid.NewString()
	if conn != nil {
		// Content length is bounded in runes; the frame limit leaves room
		// for 4-byte runes plus the envelope itself.
		conn.SetReadLimit(int64(4*cfg.MaxMessageLength) + 1024)
	}

	return &Client{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, 256),
		hub:         hub,
		submitter:   submitter,
		addr:        addr,
		closed:      false,
		rateLimiter: newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefill),
		rateLimit:   cfg.RateLimitBurst,
		refill:      cfg.RateLimitRefill,
		log:         log.With().Str("client", id).Str("addr", addr).Logger(),
	}
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn().Err(err).Msg("error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs the error appropriately and returns true if the read
// loop should break.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		c.log.Warn().Msg("frame exceeded maximum size")
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Info().Err(err).Msg("client disconnected")
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Info().Err(err).Msg("client connection closed")
		return true
	}

	if websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig) {
		c.log.Warn().Err(err).Msg("unexpected WebSocket error")
		return true
	}

	c.log.Warn().Err(err).Msg("WebSocket read error")
	return true
}

// checkRateLimit reports whether the next frame may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		c.log.Warn().
			Int("burst", c.rateLimit).
			Dur("refill", c.refill).
			Msg("rate limit exceeded; discarding frame")
		return false
	}
	return true
}

// handleFrame decodes an inbound envelope and dispatches it. Malformed
// frames are dropped; they carry no usable ack correlation.
func (c *Client) handleFrame(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug().Err(err).Msg("dropping malformed frame")
		return
	}

	switch env.Type {
	case eventSubmit:
		c.submitter.Submit(c.hub.ctx, env.Content, env.ClientToken, c.ackFunc(env.Seq))
	default:
		c.log.Debug().Str("type", env.Type).Msg("dropping frame with unknown type")
	}
}

// ackFunc builds the one-shot response channel for a submission. A
// submission without a seq requested no ack; the handler still runs but the
// result is discarded.
func (c *Client) ackFunc(seq *int64) AckFunc {
	if seq == nil {
		return nil
	}
	return func(ack Ack) {
		ack.Type = eventAck
		ack.Seq = *seq
		payload, err := json.Marshal(ack)
		if err != nil {
			c.log.Error().Err(err).Msg("failed to encode ack")
			return
		}
		if !c.hub.safeSend(c, payload) {
			c.log.Debug().Msg("client went away before ack delivery")
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		if err := c.conn.Close(); err != nil {
			if !isExpectedCloseError(err) {
				c.log.Warn().Err(err).Msg("error closing connection in readPump")
			}
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.handleReadError(err) {
				break
			}
		}

		if !c.checkRateLimit() {
			continue
		}

		c.handleFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handleOutbound(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error closing connection in writePump")
		}
	}
}

// handleOutbound writes one outbound payload and returns false if the
// connection should be closed.
func (c *Client) handleOutbound(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline")
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing frame")
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing close message")
		}
	}
	return false
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn().Err(err).Msg("error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn().Err(err).Msg("error writing ping message")
		}
		return false
	}
	return true
}
