package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/paysync/internal/billing/store"
	billingstripe "github.com/dukerupert/paysync/internal/billing/stripe"
	"github.com/dukerupert/paysync/internal/database"
	"github.com/dukerupert/paysync/internal/logging"
)

const webhookSecret = "whsec_test_secret"

// fakeStripe answers the handful of API calls the service makes.
type fakeStripe struct {
	customers atomic.Int32
	subStatus atomic.Value // string
}

func (f *fakeStripe) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/customers":
		n := f.customers.Add(1)
		fmt.Fprintf(w, `{"id":"cus_%d","object":"customer"}`, n)
	case r.Method == http.MethodPost && r.URL.Path == "/v1/checkout/sessions":
		w.Write([]byte(`{"id":"cs_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_1"}`))
	case r.Method == http.MethodGet && r.URL.Path == "/v1/subscriptions":
		status, _ := f.subStatus.Load().(string)
		if status == "" {
			w.Write([]byte(`{"object":"list","url":"/v1/subscriptions","has_more":false,"data":[]}`))
			return
		}
		fmt.Fprintf(w, `{"object":"list","url":"/v1/subscriptions","has_more":false,"data":[{
			"id":"sub_1","object":"subscription","status":%q,"cancel_at_period_end":false,
			"items":{"object":"list","data":[{"id":"si_1","price":{"id":"price_pro","object":"price"},
				"current_period_start":1700000000,"current_period_end":1702592000}]}
		}]}`, status)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"unknown route"}}`))
	}
}

type testServer struct {
	*httptest.Server
	stripe   *fakeStripe
	sessions *store.SessionStore
	accounts *store.AccountStore
	logs     *logBuffer
}

// logBuffer collects log output written from handler goroutines.
type logBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Split(strings.TrimSpace(b.buf.String()), "\n")
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := &fakeStripe{}
	api := httptest.NewServer(fake)
	t.Cleanup(api.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(api.URL),
	})
	cfg.Stripe = billingstripe.Config{SecretKey: "sk_test_123", WebhookSecret: webhookSecret}
	client := billingstripe.NewClientWithBackends(cfg.Stripe, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	logs := &logBuffer{}
	logger := logging.New(logs, "info", "json")
	srv := httptest.NewServer(NewWithClient(db, client, cfg, logger).Router())
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		stripe:   fake,
		sessions: store.NewSessionStore(db),
		accounts: store.NewAccountStore(db),
		logs:     logs,
	}
}

func (s *testServer) token(t *testing.T, email string) string {
	t.Helper()
	a, err := s.accounts.Create(context.Background(), email)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	token, _, err := s.sessions.Create(context.Background(), a.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) webhook(t *testing.T, payload string, secret string) *http.Response {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req, _ := http.NewRequest(http.MethodPost, s.URL+"/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, Config{})
	resp := s.do(t, http.MethodGet, "/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, Config{})
	resp := s.do(t, http.MethodGet, "/metrics", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCheckoutPreflightSkipsAuth(t *testing.T) {
	s := newTestServer(t, Config{})
	resp := s.do(t, http.MethodOptions, "/api/checkout", "", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin")
	}
}

func TestCheckoutRejectsOtherMethods(t *testing.T) {
	s := newTestServer(t, Config{})
	resp := s.do(t, http.MethodGet, "/api/checkout", "", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func TestServiceLogsCarryOneComponent(t *testing.T) {
	s := newTestServer(t, Config{})
	token := s.token(t, "alice@example.com")

	body := `{"priceId":"price_pro","mode":"subscription","successUrl":"https://example.com/ok","cancelUrl":"https://example.com/no"}`
	if resp := s.do(t, http.MethodPost, "/api/checkout", token, body); resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout: status = %d", resp.StatusCode)
	}

	var sawCreate bool
	for _, line := range s.logs.lines() {
		if n := strings.Count(line, `"component":`); n != 1 {
			t.Errorf("component keys = %d in %s", n, line)
		}
		if strings.Contains(line, `"msg":"customer created"`) {
			sawCreate = true
		}
	}
	if !sawCreate {
		t.Error("expected a customer created log line")
	}
}

func TestCheckoutAuthBeforeValidation(t *testing.T) {
	s := newTestServer(t, Config{})

	resp := s.do(t, http.MethodPost, "/api/checkout", "", `{}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", resp.StatusCode)
	}
	resp = s.do(t, http.MethodPost, "/api/checkout", s.token(t, "alice@example.com"), `{}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want 400", resp.StatusCode)
	}
	if n := s.stripe.customers.Load(); n != 0 {
		t.Errorf("stripe customers created = %d, want 0", n)
	}
}

func TestCheckoutRateLimited(t *testing.T) {
	s := newTestServer(t, Config{CheckoutRateLimit: 2})
	token := s.token(t, "alice@example.com")

	for i := range 2 {
		if resp := s.do(t, http.MethodPost, "/api/checkout", token, `{}`); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("request %d: status = %d, want 400", i+1, resp.StatusCode)
		}
	}
	resp := s.do(t, http.MethodPost, "/api/checkout", token, `{}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestWebhookRejectsForgedSignature(t *testing.T) {
	s := newTestServer(t, Config{})
	resp := s.webhook(t, `{"id":"evt_1","object":"event","type":"customer.subscription.updated","data":{"object":{"id":"sub_1","customer":"cus_1"}}}`, "whsec_forged")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSubscriptionFlow(t *testing.T) {
	s := newTestServer(t, Config{})
	token := s.token(t, "alice@example.com")

	body := `{"priceId":"price_pro","mode":"subscription","successUrl":"https://example.com/ok","cancelUrl":"https://example.com/no"}`
	resp := s.do(t, http.MethodPost, "/api/checkout", token, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout: status = %d", resp.StatusCode)
	}
	var checkout struct {
		SessionID string `json:"sessionId"`
		URL       string `json:"url"`
	}
	json.NewDecoder(resp.Body).Decode(&checkout)
	if checkout.SessionID != "cs_1" || checkout.URL == "" {
		t.Fatalf("checkout = %+v", checkout)
	}

	var view struct {
		CustomerID string `json:"customer_id"`
		Status     string `json:"subscription_status"`
	}
	json.NewDecoder(s.do(t, http.MethodGet, "/api/subscription", token, "").Body).Decode(&view)
	if view.CustomerID != "cus_1" || view.Status != "not_started" {
		t.Fatalf("before webhook: %+v", view)
	}

	s.stripe.subStatus.Store("active")
	resp = s.webhook(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session","customer":"cus_1","mode":"subscription","payment_status":"paid"}}}`, webhookSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook: status = %d", resp.StatusCode)
	}

	var ent struct {
		Premium bool `json:"premium"`
	}
	json.NewDecoder(s.do(t, http.MethodGet, "/api/entitlements", token, "").Body).Decode(&ent)
	if !ent.Premium {
		t.Error("premium = false after active subscription")
	}

	s.stripe.subStatus.Store("canceled")
	resp = s.webhook(t, `{"id":"evt_2","object":"event","type":"customer.subscription.deleted","data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1"}}}`, webhookSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook: status = %d", resp.StatusCode)
	}
	json.NewDecoder(s.do(t, http.MethodGet, "/api/entitlements", token, "").Body).Decode(&ent)
	if ent.Premium {
		t.Error("premium = true after cancellation")
	}
}

func TestOneTimePaymentRecordsOrder(t *testing.T) {
	s := newTestServer(t, Config{})
	token := s.token(t, "bob@example.com")

	body := `{"priceId":"price_ebook","mode":"payment","successUrl":"https://example.com/ok","cancelUrl":"https://example.com/no"}`
	if resp := s.do(t, http.MethodPost, "/api/checkout", token, body); resp.StatusCode != http.StatusOK {
		t.Fatalf("checkout: status = %d", resp.StatusCode)
	}

	event := `{"id":"evt_9","object":"event","type":"checkout.session.completed","data":{"object":{
		"id":"cs_789","object":"checkout.session","customer":"cus_1","mode":"payment","payment_status":"paid",
		"payment_intent":"pi_1","amount_subtotal":1000,"amount_total":1200,"currency":"usd"}}}`
	for range 2 {
		if resp := s.webhook(t, event, webhookSecret); resp.StatusCode != http.StatusOK {
			t.Fatalf("webhook: status = %d", resp.StatusCode)
		}
	}

	var orders []struct {
		SessionID   string `json:"checkout_session_id"`
		AmountTotal int64  `json:"amount_total"`
		Status      string `json:"order_status"`
	}
	json.NewDecoder(s.do(t, http.MethodGet, "/api/orders", token, "").Body).Decode(&orders)
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].SessionID != "cs_789" || orders[0].AmountTotal != 1200 || orders[0].Status != "completed" {
		t.Errorf("order = %+v", orders[0])
	}
}
