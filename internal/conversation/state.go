// Package conversation reconciles each requester's messages into a booking
// draft and drives the turn: extraction, field merge, availability and the
// reservation transaction, then the reply. Turns are consumed from a queue so
// the webhook can acknowledge immediately.
package conversation

import (
	"time"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/nlu"
)

// Phase is where a requester's draft stands.
type Phase string

const (
	PhaseEmpty     Phase = "EMPTY"
	PhasePartial   Phase = "PARTIAL"
	PhaseReady     Phase = "READY"
	PhaseCompleted Phase = "COMPLETED"
)

const (
	FieldCourt = "cancha"
	FieldDate  = "fecha"
	FieldTime  = "hora"
)

// State is one requester's conversation.
type State struct {
	Requester    string
	Request      domain.ReservationRequest
	Phase        Phase
	History      []nlu.ChatMessage
	LastActivity time.Time
}

// Merge applies incoming over prior field by field. A field present in
// incoming wins; an absent one keeps the prior value.
func Merge(prior, incoming domain.ReservationRequest) domain.ReservationRequest {
	out := prior
	if incoming.Court != nil {
		out.Court = incoming.Court
	}
	if incoming.Date != nil {
		out.Date = incoming.Date
	}
	if incoming.Time != nil {
		out.Time = incoming.Time
	}
	if incoming.DurationMinutes != nil {
		out.DurationMinutes = incoming.DurationMinutes
	}
	if incoming.CustomerName != nil {
		out.CustomerName = incoming.CustomerName
	}
	return out
}

// Missing lists the required fields still absent, in asking order.
func Missing(req domain.ReservationRequest) []string {
	var missing []string
	if req.Court == nil {
		missing = append(missing, FieldCourt)
	}
	if req.Date == nil {
		missing = append(missing, FieldDate)
	}
	if req.Time == nil {
		missing = append(missing, FieldTime)
	}
	return missing
}

// PhaseOf derives the phase from the accumulated draft.
func PhaseOf(req domain.ReservationRequest) Phase {
	switch {
	case req.Empty():
		return PhaseEmpty
	case len(Missing(req)) > 0:
		return PhasePartial
	default:
		return PhaseReady
	}
}

// apply merges a turn's fields and advances the phase.
func (s *State) apply(fields domain.ReservationRequest) {
	s.Request = Merge(s.Request, fields)
	s.Phase = PhaseOf(s.Request)
}

// clear drops the draft and history, returning to EMPTY.
func (s *State) clear() {
	s.Request = domain.ReservationRequest{}
	s.History = nil
	s.Phase = PhaseEmpty
}

func (s *State) remember(role, content string) {
	if content == "" {
		return
	}
	s.History = append(s.History, nlu.ChatMessage{Role: role, Content: content})
}

func (s State) clone() State {
	out := s
	if s.History != nil {
		out.History = append([]nlu.ChatMessage(nil), s.History...)
	}
	return out
}
