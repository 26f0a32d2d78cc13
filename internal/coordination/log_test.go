package coordination

import (
	"path/filepath"
	"testing"
)

func TestDeriveBoardStateClaimsAndUnclaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordination.jsonl")
	log := Open(path)

	if err := log.WriteClaim("s1", "auth", []string{"crates/auth/*"}); err != nil {
		t.Fatalf("WriteClaim: %v", err)
	}
	if err := log.WriteClaim("s2", "billing", []string{"crates/billing/*"}); err != nil {
		t.Fatalf("WriteClaim: %v", err)
	}
	if err := log.WriteUnclaim("s2"); err != nil {
		t.Fatalf("WriteUnclaim: %v", err)
	}

	state, err := log.DeriveBoardState()
	if err != nil {
		t.Fatalf("DeriveBoardState: %v", err)
	}
	if _, ok := state.Claims["s1"]; !ok {
		t.Fatalf("expected s1 claim to survive")
	}
	if _, ok := state.Claims["s2"]; ok {
		t.Fatalf("expected s2 claim to be removed by unclaim")
	}
}

func TestBindingsDedupedByKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordination.jsonl")
	log := Open(path)

	if err := log.WriteBinding("s1", "auth.method", "JWT", "auth"); err != nil {
		t.Fatal(err)
	}
	if err := log.WriteBinding("s1", "auth.method", "OAuth", "auth"); err != nil {
		t.Fatal(err)
	}

	state, err := log.DeriveBoardState()
	if err != nil {
		t.Fatalf("DeriveBoardState: %v", err)
	}
	if len(state.Bindings) != 1 {
		t.Fatalf("len(Bindings) = %d, want 1", len(state.Bindings))
	}
	if state.Bindings[0].Value != "OAuth" {
		t.Fatalf("Bindings[0].Value = %q, want OAuth (last write wins)", state.Bindings[0].Value)
	}
}

func TestLegacyDecisionAliasedToBinding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordination.jsonl")
	log := Open(path)
	if err := log.append(LogEvent{SessionID: "s1", EventType: "decision", Payload: marshalPayload(BindingPayload{Key: "k", Value: "v", ByLabel: "auth"})}); err != nil {
		t.Fatal(err)
	}

	state, err := log.DeriveBoardState()
	if err != nil {
		t.Fatalf("DeriveBoardState: %v", err)
	}
	if len(state.Bindings) != 1 || state.Bindings[0].Key != "k" {
		t.Fatalf("legacy decision event was not aliased to binding: %+v", state.Bindings)
	}
}

func TestCompactIsFixedPoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordination.jsonl")
	log := Open(path)

	_ = log.WriteClaim("s1", "auth", []string{"crates/auth/*"})
	_ = log.WriteBinding("s1", "auth.method", "JWT", "auth")
	_ = log.WriteRequest("s2", "billing", "auth", "need token format")
	_ = log.WriteRequestAck("s1", "billing")

	before, err := log.DeriveBoardState()
	if err != nil {
		t.Fatalf("DeriveBoardState (before): %v", err)
	}

	if err := log.Compact(); err != nil {
		t.Fatalf("Compact: %v", err)
	}

	after, err := log.DeriveBoardState()
	if err != nil {
		t.Fatalf("DeriveBoardState (after): %v", err)
	}

	if len(before.Claims) != len(after.Claims) || len(before.Bindings) != len(after.Bindings) ||
		len(before.Requests) != len(after.Requests) || len(before.Acks) != len(after.Acks) {
		t.Fatalf("compaction is not a fixed point: before=%+v after=%+v", before, after)
	}
}

func TestRequestsAddressedToExcludesAcked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coordination.jsonl")
	log := Open(path)

	_ = log.WriteRequest("s2", "billing", "auth", "need token format")
	state, _ := log.DeriveBoardState()
	if got := state.RequestsAddressedTo("auth"); len(got) != 1 {
		t.Fatalf("expected 1 pending request, got %d", len(got))
	}

	_ = log.WriteRequestAck("s1", "billing")
	state, _ = log.DeriveBoardState()
	if got := state.RequestsAddressedTo("auth"); len(got) != 0 {
		t.Fatalf("expected request to be acked, got %d pending", len(got))
	}
}
