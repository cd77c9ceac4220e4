package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukerupert/paysync/internal/auth"
	"github.com/dukerupert/paysync/internal/billing/event"
	"github.com/dukerupert/paysync/internal/billing/model"
	"github.com/dukerupert/paysync/internal/billing/store"
	"github.com/dukerupert/paysync/internal/billing/stripe"
	"github.com/dukerupert/paysync/internal/database"
)

var errProviderDown = errors.New("provider unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type testEnv struct {
	db        *sql.DB
	accounts  *store.AccountStore
	customers *store.CustomerStore
	subs      *store.SubscriptionStore
	orders    *store.OrderStore
	provider  *fakeProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &testEnv{
		db:        db,
		accounts:  store.NewAccountStore(db),
		customers: store.NewCustomerStore(db),
		subs:      store.NewSubscriptionStore(db),
		orders:    store.NewOrderStore(db),
		provider:  newFakeProvider(),
	}
}

func (e *testEnv) identity(t *testing.T, email string) auth.Identity {
	t.Helper()
	a, err := e.accounts.Create(context.Background(), email)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return auth.Identity{AccountID: a.ID, Email: a.Email}
}

func (e *testEnv) countRows(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	if err := e.db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// fakeProvider records provider calls. CreateCustomer hands out ids from ids
// first, then cus_1, cus_2, ...
type fakeProvider struct {
	mu        sync.Mutex
	ids       []string
	next      int
	created   []string
	deleted   []string
	sessions  []stripe.CheckoutParams
	snapshots map[string]*stripe.Snapshot
	fetches   int

	createErr   error
	checkoutErr error
	latestErr   error

	// onCreate runs after an id is allocated, outside the lock.
	onCreate func()
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{snapshots: make(map[string]*stripe.Snapshot)}
}

func (p *fakeProvider) CreateCustomer(_ context.Context, email string, accountID int64) (string, error) {
	p.mu.Lock()
	if p.createErr != nil {
		p.mu.Unlock()
		return "", p.createErr
	}
	var id string
	if len(p.ids) > 0 {
		id, p.ids = p.ids[0], p.ids[1:]
	} else {
		p.next++
		id = fmt.Sprintf("cus_%d", p.next)
	}
	p.created = append(p.created, id)
	hook := p.onCreate
	p.mu.Unlock()

	if hook != nil {
		hook()
	}
	return id, nil
}

func (p *fakeProvider) DeleteCustomer(_ context.Context, customerID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, customerID)
	return nil
}

func (p *fakeProvider) CreateCheckoutSession(_ context.Context, params stripe.CheckoutParams) (*stripe.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.checkoutErr != nil {
		return nil, p.checkoutErr
	}
	p.sessions = append(p.sessions, params)
	id := fmt.Sprintf("cs_test_%d", len(p.sessions))
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id}, nil
}

func (p *fakeProvider) LatestSubscription(_ context.Context, customerID string) (*stripe.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.latestErr != nil {
		return nil, p.latestErr
	}
	snap, ok := p.snapshots[customerID]
	if !ok {
		return &stripe.Snapshot{Subscription: model.NotStartedSubscription(customerID)}, nil
	}
	// Hand out a copy so callers cannot mutate the configured state.
	sub := *snap.Subscription
	return &stripe.Snapshot{Subscription: &sub, Competing: snap.Competing}, nil
}

func (p *fakeProvider) setSubscription(sub *model.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[sub.CustomerID] = &stripe.Snapshot{Subscription: sub}
}

// fakeVerifier accepts payloads whose signature equals its secret.
type fakeVerifier struct {
	secret string
}

func (v fakeVerifier) ConstructEvent(payload []byte, sig string) (event.Envelope, error) {
	if sig != v.secret {
		return event.Envelope{}, event.ErrInvalidSignature
	}
	var raw struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return event.Envelope{}, err
	}
	return event.Envelope{ID: raw.ID, Type: raw.Type, Object: raw.Data.Object}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []string
}

func (n *recordingNotifier) SubscriptionUpdated(customerID string, _ *model.Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, customerID)
}

// failingSubs fails selected writes on top of the real store.
type failingSubs struct {
	*store.SubscriptionStore
	insertErr error
	upsertErr error
}

func (s *failingSubs) InsertNotStarted(ctx context.Context, customerID string) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	return s.SubscriptionStore.InsertNotStarted(ctx, customerID)
}

func (s *failingSubs) Upsert(ctx context.Context, sub *model.Subscription) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.SubscriptionStore.Upsert(ctx, sub)
}

type failingCustomers struct {
	*store.CustomerStore
	insertErr error
}

func (s *failingCustomers) Insert(ctx context.Context, accountID int64, customerID string) (*model.BillingCustomer, error) {
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	return s.CustomerStore.Insert(ctx, accountID, customerID)
}

func ptr[T any](v T) *T { return &v }
