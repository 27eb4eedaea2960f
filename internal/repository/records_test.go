package repository

import (
	"testing"
	"time"

	"WhalePulse/internal/domain/models"
)

func TestRecordStoreWindowQueries(t *testing.T) {
	s := NewRecordStore(time.Hour, 0)
	now := time.Now()

	for _, off := range []time.Duration{-30 * time.Minute, -10 * time.Minute, -1 * time.Minute} {
		s.AddWhale(models.WhaleRecord{
			Asset: "BTC", Timestamp: now.Add(off), AmountUSD: 100_000, Direction: models.WhaleAccumulate,
		})
	}

	got := s.WhalesBetween("BTC", now.Add(-15*time.Minute), now)
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}

	// The lower bound is inclusive, the upper exclusive.
	got = s.WhalesBetween("BTC", now.Add(-10*time.Minute), now.Add(-1*time.Minute))
	if len(got) != 1 {
		t.Fatalf("half-open window returned %d records, want 1", len(got))
	}
}

func TestRecordStoreRetention(t *testing.T) {
	s := NewRecordStore(time.Minute, 0)
	now := time.Now()

	s.AddSentiment(models.SentimentRecord{Asset: "BTC", Timestamp: now.Add(-5 * time.Minute), Score: 0.5})
	s.AddSentiment(models.SentimentRecord{Asset: "BTC", Timestamp: now, Score: 0.1})

	got := s.SentimentBetween("BTC", now.Add(-time.Hour), now.Add(time.Minute))
	if len(got) != 1 || got[0].Score != 0.1 {
		t.Fatalf("stale record survived retention: %+v", got)
	}
}

func TestRecordStoreCapPerAsset(t *testing.T) {
	s := NewRecordStore(time.Hour, 3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		s.AddWhale(models.WhaleRecord{
			Asset: "BTC", Timestamp: now.Add(time.Duration(i) * time.Second),
			AmountUSD: float64(i + 1), Direction: models.WhaleAccumulate,
		})
	}

	got := s.WhalesBetween("BTC", now.Add(-time.Hour), now.Add(time.Hour))
	if len(got) != 3 {
		t.Fatalf("got %d records, want cap of 3", len(got))
	}
	if got[0].AmountUSD != 3 {
		t.Fatalf("oldest surviving record = %f, want 3 (oldest evicted first)", got[0].AmountUSD)
	}
}

func TestRecordStoreRecentPrices(t *testing.T) {
	s := NewRecordStore(time.Hour, 0)
	now := time.Now()

	for i, p := range []float64{100, 101, 102, 103, 104} {
		s.AddTick(models.PriceTick{Asset: "ETH", Price: p, Timestamp: now.Add(time.Duration(i) * time.Second)})
	}

	got := s.RecentPrices("ETH", 3)
	if len(got) != 3 {
		t.Fatalf("got %d prices, want 3", len(got))
	}
	if got[0] != 102 || got[2] != 104 {
		t.Fatalf("prices not oldest-first: %v", got)
	}

	if got := s.RecentPrices("ETH", 10); len(got) != 5 {
		t.Fatalf("asked for more than stored, got %d, want 5", len(got))
	}
}

func TestRecordStoreAssets(t *testing.T) {
	s := NewRecordStore(time.Hour, 0)
	now := time.Now()

	s.AddWhale(models.WhaleRecord{Asset: "BTC", Timestamp: now, AmountUSD: 1, Direction: models.WhaleAccumulate})
	s.AddSentiment(models.SentimentRecord{Asset: "ETH", Timestamp: now, Score: 0.1})
	s.AddTick(models.PriceTick{Asset: "SOL", Price: 1, Timestamp: now})

	assets := s.Assets()
	if len(assets) != 3 {
		t.Fatalf("assets = %v, want union of all three streams", assets)
	}
	seen := make(map[string]bool)
	for _, a := range assets {
		seen[a] = true
	}
	for _, want := range []string{"BTC", "ETH", "SOL"} {
		if !seen[want] {
			t.Fatalf("asset %s missing from %v", want, assets)
		}
	}
}
