package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current on-disk event schema. Bumping it triggers a
// migration in Open.
const SchemaVersion = 2

// ProvenanceRel names the relationship a provenance edge expresses between
// an event and some other event or session.
type ProvenanceRel string

const (
	RelSupersedes ProvenanceRel = "supersedes"
	RelBasedOn    ProvenanceRel = "based_on"
)

// ProvenanceRef points from an event to something that informed it: a prior
// decision it supersedes, or the session it was digested from.
type ProvenanceRef struct {
	Target string        `json:"target"`
	Rel    ProvenanceRel `json:"rel"`
	Note   string        `json:"note,omitempty"`
}

// Refs groups the three kinds of pointers an event may carry.
type Refs struct {
	Blobs      []string        `json:"blobs,omitempty"`
	Events     []string        `json:"events,omitempty"`
	Provenance []ProvenanceRef `json:"provenance,omitempty"`
}

// Event is one append-only ledger record. Hash is a deterministic digest of
// every other field; ParentHash must equal the Hash of the event appended
// immediately before it in the ledger, whatever that event's branch.
type Event struct {
	EventID       string          `json:"event_id"`
	Ts            time.Time       `json:"ts"`
	EventType     string          `json:"event_type"`
	Branch        string          `json:"branch"`
	ParentHash    string          `json:"parent_hash,omitempty"`
	Hash          string          `json:"hash"`
	Payload       json.RawMessage `json:"payload"`
	Refs          Refs            `json:"refs"`
	SchemaVersion int             `json:"schema_version"`
	Digests       []string        `json:"digests,omitempty"`
	EventFamily   string          `json:"event_family,omitempty"`
	EventLevel    string          `json:"event_level,omitempty"`
}

// NewEventID returns a ULID-style identifier prefixed for the event
// namespace. It is time-sortable, which keeps IDs roughly in insertion
// order even though the authoritative order is the hash chain.
func NewEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return "evt_" + id.String()
}

// ComputeHash returns the content hash of e, ignoring whatever is currently
// in e.Hash. Re-hashing a stored event (with Hash blanked) must reproduce
// its stored Hash — that invariant is what lets a reader detect tampering
// or corruption independent of the database.
func ComputeHash(e Event) string {
	e.Hash = ""
	// Payload and Refs participate via their canonical JSON encodings;
	// map-free structs keep field order stable across encodes.
	b, err := json.Marshal(e)
	if err != nil {
		// Event fields are all plain JSON-safe types; Marshal cannot
		// fail for us for any value we actually construct.
		panic(fmt.Sprintf("ledger: event is not marshalable: %v", err))
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Seal stamps e with a freshly computed Hash and returns it.
func Seal(e Event) Event {
	e.Hash = ComputeHash(e)
	return e
}
