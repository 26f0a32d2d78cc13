package bridge

import (
	"strings"
	"testing"
)

func TestRedactMasksBearerToken(t *testing.T) {
	in := []byte(`{"auth":"Bearer sk-proj-abcdef1234567890"}`)
	out := string(Redact(in))
	if strings.Contains(out, "abcdef1234567890") {
		t.Fatalf("token leaked: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("no redaction applied: %s", out)
	}
}

func TestRedactMasksKeyValueSecret(t *testing.T) {
	in := []byte(`api_key=live-1234567890abcdef and more text`)
	out := string(Redact(in))
	if strings.Contains(out, "1234567890abcdef") {
		t.Fatalf("secret leaked: %s", out)
	}
}

func TestRedactLeavesOrdinaryTextAlone(t *testing.T) {
	in := []byte(`{"cwd":"/home/user/project","tool_name":"Edit"}`)
	out := string(Redact(in))
	if out != string(in) {
		t.Fatalf("unexpected mutation: %s", out)
	}
}
