// Package server implements the idempotent submission path: validate,
// persist, resolve duplicate races, acknowledge.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/VaagenIM-CardSharp/intern-chat/internal/store"
)

// AckFunc delivers the outcome of a single submission back to its sender.
// A nil AckFunc is valid: the submission is still validated and persisted,
// only the response is discarded.
type AckFunc func(Ack)

// Submitter accepts candidate messages from connections, persists them, and
// resolves duplicate-submission races through the store's uniqueness
// constraint. Each submission is independent; Submitter carries no
// per-connection state.
type Submitter struct {
	store            *store.Store
	hub              *Hub
	maxMessageLength int
	log              zerolog.Logger
}

// NewSubmitter wires the submission handler to its store and fanout hub.
// maxMessageLength bounds content length in runes.
func NewSubmitter(st *store.Store, hub *Hub, maxMessageLength int, log zerolog.Logger) *Submitter {
	return &Submitter{
		store:            st,
		hub:              hub,
		maxMessageLength: maxMessageLength,
		log:              log.With().Str("component", "submit").Logger(),
	}
}

// Submit runs one submission through validate → persist → acknowledge.
//
// Validation failures never touch the store. A duplicate client token is
// resolved to the originally assigned offset and acknowledged as a
// duplicate without re-broadcasting; the message was already delivered
// once. Only a brand-new persistence triggers fanout.
func (s *Submitter) Submit(ctx context.Context, content json.RawMessage, clientToken *string, ack AckFunc) {
	if ack == nil {
		ack = func(Ack) {}
	}

	text, ok := decodeText(content)
	if !ok {
		ack(Ack{Type: eventAck, OK: false, Error: ErrCodeInvalidMessageType})
		return
	}

	if utf8.RuneCountInString(text) > s.maxMessageLength {
		ack(Ack{Type: eventAck, OK: false, Error: ErrCodeMessageTooLong, Limit: s.maxMessageLength})
		return
	}

	msg, err := s.store.Append(ctx, text, clientToken)
	switch {
	case err == nil:
		s.deliver(msg)
		ack(Ack{Type: eventAck, OK: true, ServerOffset: msg.ID})

	case errors.Is(err, store.ErrDuplicateToken):
		s.resolveDuplicate(ctx, clientToken, ack)

	default:
		s.log.Error().Err(err).Str("clientToken", tokenForLog(clientToken)).Msg("failed to persist chat message")
		ack(Ack{Type: eventAck, OK: false, Error: ErrCodeInternal})
	}
}

// resolveDuplicate turns a uniqueness conflict into the previously assigned
// offset. A conflict whose row cannot be found and a lookup infrastructure
// failure are reported as distinct error codes so clients can tell
// "definitely duplicate, id unknown" from "lookup failed". No retry is
// attempted in either case.
func (s *Submitter) resolveDuplicate(ctx context.Context, clientToken *string, ack AckFunc) {
	if clientToken == nil {
		ack(Ack{Type: eventAck, OK: false, Error: ErrCodeMessageExistsNoID})
		return
	}

	existing, err := s.store.LookupByToken(ctx, *clientToken)
	switch {
	case err == nil:
		ack(Ack{Type: eventAck, OK: true, Duplicate: true, ServerOffset: existing.ID})
	case errors.Is(err, store.ErrNotFound):
		ack(Ack{Type: eventAck, OK: false, Error: ErrCodeMessageExistsNoID})
	default:
		s.log.Error().Err(err).Str("clientToken", *clientToken).Msg("failed to fetch existing message id")
		ack(Ack{Type: eventAck, OK: false, Error: ErrCodeDuplicateLookupFail})
	}
}

func (s *Submitter) deliver(msg store.Message) {
	payload, err := json.Marshal(Delivery{Type: eventMessage, ID: msg.ID, Content: msg.Content})
	if err != nil {
		s.log.Error().Err(err).Int64("id", msg.ID).Msg("failed to encode delivery event")
		return
	}
	s.hub.Broadcast(payload)
}

// decodeText accepts only JSON string content. Numbers, objects, arrays,
// booleans, and missing content all fail type validation.
func decodeText(content json.RawMessage) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	var text string
	if err := json.Unmarshal(content, &text); err != nil {
		return "", false
	}
	return text, true
}

func tokenForLog(clientToken *string) string {
	if clientToken == nil {
		return ""
	}
	return *clientToken
}
