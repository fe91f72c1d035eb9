package mail

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"
)

func TestInviteRendersActivationLink(t *testing.T) {
	var buf bytes.Buffer
	m := &LogMailer{Logger: log.New(&buf, "", 0), BaseURL: "https://app.classhub.test"}

	if err := m.SendInvite(context.Background(), "kid@alpha.test", "Northside High", "tok123"); err != nil {
		t.Fatalf("send: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Northside High") {
		t.Fatalf("missing org name: %s", out)
	}
	if !strings.Contains(out, "https://app.classhub.test/activate?token=tok123") {
		t.Fatalf("missing activation link: %s", out)
	}
}

func TestRecoveryRendersResetLink(t *testing.T) {
	var buf bytes.Buffer
	m := &LogMailer{Logger: log.New(&buf, "", 0), BaseURL: "https://app.classhub.test"}

	if err := m.SendRecovery(context.Background(), "ann@alpha.test", "tok456"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.Contains(buf.String(), "https://app.classhub.test/reset-password?token=tok456") {
		t.Fatalf("missing reset link: %s", buf.String())
	}
}
