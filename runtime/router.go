package runtime

import (
	"log/slog"
	"time"

	"pairchat/domain"
	"pairchat/protocol"
)

type Outcome int

const (
	Dropped Outcome = iota
	Delivered
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "dropped"
}

// DeliveryObserver is notified of every routed envelope.
type DeliveryObserver interface {
	ObserveDelivery(envelopeType string, outcome Outcome)
}

type noopObserver struct{}

func (noopObserver) ObserveDelivery(string, Outcome) {}

// Router writes envelopes to sessions. It holds the registry it resolves
// recipients from and nothing else; there is no replay queue, a session
// without a live link simply misses the envelope.
type Router struct {
	registry *Registry
	observer DeliveryObserver
	log      *slog.Logger
}

func NewRouter(log *slog.Logger, registry *Registry, observer DeliveryObserver) *Router {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Router{registry: registry, observer: observer, log: log}
}

func (r *Router) SendToSession(s *Session, env protocol.Envelope) Outcome {
	data, err := protocol.Encode(env)
	if err != nil {
		r.log.Error("Unable to encode envelope", "type", env.EnvelopeType(), "error", err)
		r.observer.ObserveDelivery(env.EnvelopeType(), Dropped)
		return Dropped
	}
	return r.deliver(s, env.EnvelopeType(), data)
}

func (r *Router) deliver(s *Session, envType string, data []byte) Outcome {
	link := s.Link()
	if link == nil || s.Closed() {
		r.observer.ObserveDelivery(envType, Dropped)
		return Dropped
	}
	if err := link.Send(data); err != nil {
		r.log.Debug("Delivery failed", "session_id", s.ID(), "type", envType, "error", err)
		r.observer.ObserveDelivery(envType, Dropped)
		return Dropped
	}
	s.Touch(time.Now())
	r.observer.ObserveDelivery(envType, Delivered)
	return Delivered
}

// Reply answers a connection that has no session yet.
func (r *Router) Reply(link *Link, env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		r.log.Error("Unable to encode envelope", "type", env.EnvelopeType(), "error", err)
		return err
	}
	if err := link.Send(data); err != nil {
		r.observer.ObserveDelivery(env.EnvelopeType(), Dropped)
		return err
	}
	r.observer.ObserveDelivery(env.EnvelopeType(), Delivered)
	return nil
}

// Broadcast encodes once and writes to every live session but exceptID.
// A failing recipient does not stop the others.
func (r *Router) Broadcast(env protocol.Envelope, exceptID string) int {
	data, err := protocol.Encode(env)
	if err != nil {
		r.log.Error("Unable to encode broadcast", "type", env.EnvelopeType(), "error", err)
		return 0
	}
	delivered := 0
	for _, s := range r.registry.ListAll() {
		if s.ID() == exceptID {
			continue
		}
		if r.deliver(s, env.EnvelopeType(), data) == Delivered {
			delivered++
		}
	}
	return delivered
}

// RouteMessage acknowledges the sender and forwards the message to every
// other participant currently connected. Outcomes are keyed by user id.
func (r *Router) RouteMessage(conv *Conversation, msg domain.Message, sender *Session, clientID string) map[string]Outcome {
	outcomes := make(map[string]Outcome, 2)
	senderID := msg.From
	if sender != nil {
		senderID = sender.ID()
		outcomes[senderID] = r.SendToSession(sender, protocol.MessageSent(clientID, msg))
	}
	for _, p := range conv.Participants() {
		if p == senderID {
			continue
		}
		recipient := r.registry.FindByID(p)
		if recipient == nil {
			outcomes[p] = Dropped
			r.observer.ObserveDelivery(protocol.TypeMessage, Dropped)
			continue
		}
		outcomes[p] = r.SendToSession(recipient, protocol.Message(conv.ID(), msg))
	}
	return outcomes
}
