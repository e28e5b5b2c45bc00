package identity

import (
	"testing"
	"time"
)

func TestExpiredBoundary(t *testing.T) {
	expiry := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ident := Identity{ExpiresAt: &expiry}

	if ident.Expired(expiry.Add(-time.Second)) {
		t.Error("key must be valid before the expiry instant")
	}
	if !ident.Expired(expiry) {
		t.Error("key must be invalid exactly at the expiry instant")
	}
	if !ident.Expired(expiry.Add(time.Second)) {
		t.Error("key must be invalid after the expiry instant")
	}

	forever := Identity{}
	if forever.Expired(expiry.Add(24 * time.Hour)) {
		t.Error("identity without an expiry must never expire")
	}
}
