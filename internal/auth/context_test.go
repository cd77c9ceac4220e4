package auth

import (
	"context"
	"testing"
)

func TestIdentityRoundTrip(t *testing.T) {
	ctx := WithIdentity(context.Background(), Identity{AccountID: 7, Email: "alice@example.com", SessionID: 3})

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected identity in context")
	}
	if got.AccountID != 7 || got.Email != "alice@example.com" || got.SessionID != 3 {
		t.Errorf("identity = %+v", got)
	}
	if AccountID(ctx) != 7 {
		t.Errorf("AccountID = %d, want 7", AccountID(ctx))
	}
}

func TestAnonymousContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Error("expected no identity")
	}
	if AccountID(context.Background()) != 0 {
		t.Error("expected account 0 without identity")
	}
}
