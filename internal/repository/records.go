package repository

import (
	"sync"
	"time"

	"WhalePulse/internal/domain/models"
)

// RecordStore buffers raw inbound records per asset for windowed feature
// extraction. Retention is time-based with a hard per-asset cap, pruned on
// append so the store stays bounded without a sweeper goroutine.
type RecordStore struct {
	retention time.Duration
	capPer    int

	mu        sync.Mutex
	whales    map[string][]models.WhaleRecord
	sentiment map[string][]models.SentimentRecord
	prices    map[string][]models.PriceTick
}

func NewRecordStore(retention time.Duration, capPerAsset int) *RecordStore {
	if retention == 0 {
		retention = time.Hour
	}
	if capPerAsset == 0 {
		capPerAsset = 4096
	}
	return &RecordStore{
		retention: retention,
		capPer:    capPerAsset,
		whales:    make(map[string][]models.WhaleRecord),
		sentiment: make(map[string][]models.SentimentRecord),
		prices:    make(map[string][]models.PriceTick),
	}
}

func (s *RecordStore) AddWhale(r models.WhaleRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.retention)
	buf := append(s.whales[r.Asset], r)
	for len(buf) > 0 && (buf[0].Timestamp.Before(cutoff) || len(buf) > s.capPer) {
		buf = buf[1:]
	}
	s.whales[r.Asset] = buf
}

func (s *RecordStore) AddSentiment(r models.SentimentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.retention)
	buf := append(s.sentiment[r.Asset], r)
	for len(buf) > 0 && (buf[0].Timestamp.Before(cutoff) || len(buf) > s.capPer) {
		buf = buf[1:]
	}
	s.sentiment[r.Asset] = buf
}

func (s *RecordStore) AddTick(t models.PriceTick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-s.retention)
	buf := append(s.prices[t.Asset], t)
	for len(buf) > 0 && (buf[0].Timestamp.Before(cutoff) || len(buf) > s.capPer) {
		buf = buf[1:]
	}
	s.prices[t.Asset] = buf
}

// WhalesBetween returns whale records for an asset inside [from, to).
func (s *RecordStore) WhalesBetween(asset string, from, to time.Time) []models.WhaleRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.WhaleRecord
	for _, r := range s.whales[asset] {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out
}

// SentimentBetween returns sentiment records for an asset inside [from, to).
func (s *RecordStore) SentimentBetween(asset string, from, to time.Time) []models.SentimentRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SentimentRecord
	for _, r := range s.sentiment[asset] {
		if !r.Timestamp.Before(from) && r.Timestamp.Before(to) {
			out = append(out, r)
		}
	}
	return out
}

// RecentPrices returns up to n most recent prices for an asset, oldest first.
func (s *RecordStore) RecentPrices(asset string, n int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.prices[asset]
	if len(buf) > n {
		buf = buf[len(buf)-n:]
	}
	out := make([]float64, len(buf))
	for i, t := range buf {
		out[i] = t.Price
	}
	return out
}

// Assets lists assets that have at least one record of any stream.
func (s *RecordStore) Assets() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for a := range s.whales {
		seen[a] = struct{}{}
	}
	for a := range s.sentiment {
		seen[a] = struct{}{}
	}
	for a := range s.prices {
		seen[a] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	return out
}
