package coordination

import "time"

// Claim is a session's declared scope.
type Claim struct {
	SessionID string
	Label     string
	Paths     []string
	Ts        time.Time
}

// Binding is a key/value decision visible to every session.
type Binding struct {
	Key     string
	Value   string
	ByLabel string
	Ts      time.Time
}

// Request is a cross-session ask.
type Request struct {
	FromLabel string
	ToLabel   string
	Message   string
	Ts        time.Time
}

// RequestAck acknowledges a Request by the sender's label.
type RequestAck struct {
	FromLabel string
	Ts        time.Time
}

// BoardState is the derived, current-state view of a coordination log: the
// pure function of replaying every line in order.
type BoardState struct {
	Claims   map[string]Claim // keyed by session_id
	Bindings []Binding        // deduped by key, newest wins, discovery order preserved
	Requests []Request
	Acks     []RequestAck
}

// DeriveBoardState replays the log from scratch and returns the current
// board state. Replaying a compacted log must reproduce this exactly.
func (l *Log) DeriveBoardState() (BoardState, error) {
	events, err := l.ReadAll()
	if err != nil {
		return BoardState{}, err
	}
	return derive(events), nil
}

func derive(events []LogEvent) BoardState {
	state := BoardState{Claims: map[string]Claim{}}
	bindingIndex := map[string]int{}

	for _, e := range events {
		switch e.EventType {
		case EventClaim:
			var p ClaimPayload
			if decodePayload(e.Payload, &p) {
				state.Claims[e.SessionID] = Claim{SessionID: e.SessionID, Label: p.Label, Paths: p.Paths, Ts: e.Ts}
			}
		case EventUnclaim:
			delete(state.Claims, e.SessionID)
		case EventBinding:
			var p BindingPayload
			if decodePayload(e.Payload, &p) {
				b := Binding{Key: p.Key, Value: p.Value, ByLabel: p.ByLabel, Ts: e.Ts}
				if idx, ok := bindingIndex[p.Key]; ok {
					state.Bindings[idx] = b
				} else {
					bindingIndex[p.Key] = len(state.Bindings)
					state.Bindings = append(state.Bindings, b)
				}
			}
		case EventRequest:
			var p RequestPayload
			if decodePayload(e.Payload, &p) {
				state.Requests = append(state.Requests, Request{FromLabel: p.FromLabel, ToLabel: p.ToLabel, Message: p.Message, Ts: e.Ts})
			}
		case EventRequestAck:
			var p RequestAckPayload
			if decodePayload(e.Payload, &p) {
				state.Acks = append(state.Acks, RequestAck{FromLabel: p.FromLabel, Ts: e.Ts})
			}
		}
	}
	return state
}

func decodePayload(raw []byte, v interface{}) bool {
	return jsonUnmarshalQuiet(raw, v)
}

// BindingConflict is the existing live binding for a key, returned when a
// caller tries to record a different value for it so the caller can
// confirm before overwriting.
func (bs BoardState) BindingConflict(key, newValue string) (Binding, bool) {
	for _, b := range bs.Bindings {
		if b.Key == key {
			if b.Value != newValue {
				return b, true
			}
			return Binding{}, false
		}
	}
	return Binding{}, false
}

// RequestsAddressedTo returns requests targeting myLabel that have not yet
// been acknowledged by anyone sending an ack with the same from_label.
func (bs BoardState) RequestsAddressedTo(myLabel string) []Request {
	acked := map[string]bool{}
	for _, a := range bs.Acks {
		acked[a.FromLabel] = true
	}

	var out []Request
	for _, r := range bs.Requests {
		if r.ToLabel != myLabel {
			continue
		}
		if acked[r.FromLabel] {
			continue
		}
		out = append(out, r)
	}
	return out
}
