package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"WhalePulse/internal/domain/models"
	xhttp "WhalePulse/pkg/http"
)

func TestWebhookChannelPostsSlackPayload(t *testing.T) {
	var (
		mu   sync.Mutex
		body map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		json.Unmarshal(raw, &body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, xhttp.NewClient(xhttp.WithTimeout(2*time.Second)))
	rec := &models.AlertRecord{
		ID:       1,
		Kind:     "trade_executed",
		Priority: models.PriorityHigh,
		Payload:  `{"asset":"BTC"}`,
	}
	if err := ch.Send(context.Background(), rec); err != nil {
		t.Fatalf("send: %v", err)
	}

	mu.Lock()
	text := body["text"]
	mu.Unlock()
	if !strings.Contains(text, "trade_executed") || !strings.Contains(text, "BTC") {
		t.Fatalf("webhook text = %q", text)
	}
}

func TestWebhookChannelReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, xhttp.NewClient(xhttp.WithTimeout(2*time.Second)))
	err := ch.Send(context.Background(), &models.AlertRecord{ID: 1, Kind: "x"})
	if err == nil {
		t.Fatalf("expected error on 429 response")
	}
}
