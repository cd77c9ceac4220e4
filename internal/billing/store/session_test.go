package store

import (
	"context"
	"testing"
	"time"
)

func TestSessionCreateAndGetByToken(t *testing.T) {
	db := openTestDB(t)
	as := NewAccountStore(db)
	ss := NewSessionStore(db)
	ctx := context.Background()

	a, _ := as.Create(ctx, "alice@example.com")
	token, sess, err := ss.Create(ctx, a.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64", len(token))
	}
	if sess.AccountID != a.ID {
		t.Errorf("account_id = %d, want %d", sess.AccountID, a.ID)
	}

	got, err := ss.GetByToken(ctx, token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("got %+v, want session %d", got, sess.ID)
	}
}

func TestSessionTokenNotStoredInPlaintext(t *testing.T) {
	db := openTestDB(t)
	as := NewAccountStore(db)
	ss := NewSessionStore(db)
	ctx := context.Background()

	a, _ := as.Create(ctx, "alice@example.com")
	token, _, _ := ss.Create(ctx, a.ID, time.Hour)

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sessions WHERE token_hash = ?`, token).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Error("plaintext token found in sessions table")
	}
}

func TestSessionGetByTokenInvalid(t *testing.T) {
	ss := NewSessionStore(openTestDB(t))

	got, err := ss.GetByToken(context.Background(), "invalid-token")
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got != nil {
		t.Error("expected nil for unknown token")
	}
}

func TestSessionExpired(t *testing.T) {
	db := openTestDB(t)
	as := NewAccountStore(db)
	ss := NewSessionStore(db)
	ctx := context.Background()

	a, _ := as.Create(ctx, "alice@example.com")
	token, _, _ := ss.Create(ctx, a.ID, -time.Minute)

	got, err := ss.GetByToken(ctx, token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got != nil {
		t.Error("expected nil for expired session")
	}

	n, err := ss.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
}
