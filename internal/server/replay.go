// Package server implements backlog replay for reconnecting clients.
package server

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/VaagenIM-CardSharp/intern-chat/internal/store"
)

// replayBatchLimit caps a single backlog query. Larger backlogs are
// truncated oldest-first; the client's next reconnect picks up the rest.
const replayBatchLimit = 500

// Replayer streams missed messages to a newly established connection. It
// runs only when the transport did not resume a prior session, so
// session-level recovery is never duplicated.
type Replayer struct {
	store *store.Store
	hub   *Hub
	log   zerolog.Logger
}

// NewReplayer wires the replay engine to its store and hub.
func NewReplayer(st *store.Store, hub *Hub, log zerolog.Logger) *Replayer {
	return &Replayer{
		store: st,
		hub:   hub,
		log:   log.With().Str("component", "replay").Logger(),
	}
}

// Backfill streams every message persisted after offset to the given client
// only, in ascending id order, shaped identically to live broadcasts.
//
// Failures are logged and swallowed: the connection proceeds without
// backlog rather than being torn down, and no retry is attempted. The
// client's own offset bookkeeping recovers on its next reconnect.
func (r *Replayer) Backfill(ctx context.Context, client *Client, offset int64) {
	messages, err := r.store.ListAfter(ctx, offset, replayBatchLimit)
	if err != nil {
		r.log.Error().Err(err).Int64("offset", offset).Msg("failed to replay missed messages")
		return
	}

	for _, msg := range messages {
		payload, err := json.Marshal(Delivery{Type: eventMessage, ID: msg.ID, Content: msg.Content})
		if err != nil {
			r.log.Error().Err(err).Int64("id", msg.ID).Msg("failed to encode replay event")
			return
		}
		if !r.hub.safeSend(client, payload) {
			r.log.Debug().Str("client", client.id).Msg("client went away during replay")
			return
		}
	}
}

// parseOffset coerces a client-declared offset to a non-negative integer,
// defaulting to 0 when absent, non-numeric, or negative.
func parseOffset(raw string) int64 {
	if raw == "" {
		return 0
	}
	offset, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}
