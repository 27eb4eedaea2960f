package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"WhalePulse/internal/domain/models"
)

var (
	windowStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	windowEnd   = windowStart.Add(10 * time.Minute)
)

func whale(offset time.Duration, amountUSD float64, direction string) models.WhaleRecord {
	return models.WhaleRecord{
		Asset:     "BTC",
		Timestamp: windowStart.Add(offset),
		AmountUSD: amountUSD,
		Direction: direction,
		WalletID:  "w1",
	}
}

func sentiment(offset time.Duration, score float64, mentions int) models.SentimentRecord {
	return models.SentimentRecord{
		Asset:        "BTC",
		Timestamp:    windowStart.Add(offset),
		Score:        score,
		MentionCount: mentions,
		Source:       "x",
	}
}

func baseSentiment() []models.SentimentRecord {
	return []models.SentimentRecord{
		sentiment(1*time.Minute, 0.1, 10),
		sentiment(2*time.Minute, 0.1, 10),
		sentiment(8*time.Minute, 0.1, 10),
	}
}

func TestNormalizeInsufficientData(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{MinWhaleRecords: 2, MinSentimentRecords: 3})

	_, err := n.Normalize(
		[]models.WhaleRecord{whale(time.Minute, 100_000, models.WhaleAccumulate)},
		baseSentiment(), "BTC", windowStart, windowEnd)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}

	_, err = n.Normalize(
		[]models.WhaleRecord{
			whale(time.Minute, 100_000, models.WhaleAccumulate),
			whale(2*time.Minute, 100_000, models.WhaleAccumulate),
		},
		baseSentiment()[:2], "BTC", windowStart, windowEnd)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestNormalizeNetFlow(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})
	v, err := n.Normalize(
		[]models.WhaleRecord{
			whale(1*time.Minute, 300_000, models.WhaleAccumulate),
			whale(2*time.Minute, 100_000, models.WhaleDistribute),
		},
		baseSentiment(), "BTC", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if v.WhaleNetFlowUSD != 200_000 {
		t.Fatalf("net flow = %f, want 200000", v.WhaleNetFlowUSD)
	}
}

func TestNormalizeUrgency(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})

	// All whale volume in the second half of the window.
	v, err := n.Normalize(
		[]models.WhaleRecord{
			whale(6*time.Minute, 100_000, models.WhaleAccumulate),
			whale(9*time.Minute, 100_000, models.WhaleAccumulate),
		},
		baseSentiment(), "BTC", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if v.WhaleUrgency != 1 {
		t.Fatalf("urgency = %f, want 1", v.WhaleUrgency)
	}

	// All of it in the first half.
	v, err = n.Normalize(
		[]models.WhaleRecord{
			whale(1*time.Minute, 100_000, models.WhaleAccumulate),
			whale(2*time.Minute, 100_000, models.WhaleAccumulate),
		},
		baseSentiment(), "BTC", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if v.WhaleUrgency != 0 {
		t.Fatalf("urgency = %f, want 0", v.WhaleUrgency)
	}
}

func TestNormalizeImpact(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})
	v, err := n.Normalize(
		[]models.WhaleRecord{
			whale(1*time.Minute, 100_000, models.WhaleAccumulate),
			whale(2*time.Minute, 300_000, models.WhaleAccumulate),
		},
		baseSentiment(), "BTC", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if math.Abs(v.WhaleImpact-0.75) > 1e-9 {
		t.Fatalf("impact = %f, want 0.75", v.WhaleImpact)
	}
}

func TestNormalizeWeightedSentiment(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})
	v, err := n.Normalize(
		[]models.WhaleRecord{
			whale(1*time.Minute, 100_000, models.WhaleAccumulate),
			whale(2*time.Minute, 100_000, models.WhaleAccumulate),
		},
		[]models.SentimentRecord{
			sentiment(1*time.Minute, 0.5, 10),
			sentiment(2*time.Minute, -0.5, 30),
			sentiment(3*time.Minute, 0, 0), // zero mentions weigh as one
		},
		"BTC", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := (0.5*10 - 0.5*30 + 0) / 41.0
	if math.Abs(v.SentimentScore-want) > 1e-9 {
		t.Fatalf("sentiment = %f, want %f", v.SentimentScore, want)
	}
	if v.MentionCount != 40 {
		t.Fatalf("mentions = %d, want 40", v.MentionCount)
	}
}

func TestNormalizeSentimentVelocity(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})
	v, err := n.Normalize(
		[]models.WhaleRecord{
			whale(1*time.Minute, 100_000, models.WhaleAccumulate),
			whale(2*time.Minute, 100_000, models.WhaleAccumulate),
		},
		[]models.SentimentRecord{
			sentiment(1*time.Minute, 0.0, 10),
			sentiment(2*time.Minute, 0.2, 10),
			sentiment(8*time.Minute, 0.5, 10),
		},
		"BTC", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	// Second-half mean 0.5 minus first-half mean 0.1.
	if math.Abs(v.SentimentVelocity-0.4) > 1e-9 {
		t.Fatalf("velocity = %f, want 0.4", v.SentimentVelocity)
	}
}

func TestNormalizeWindowIsHalfOpen(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{MinWhaleRecords: 2, MinSentimentRecords: 3})

	// A record exactly at windowEnd is outside; exactly at windowStart is in.
	_, err := n.Normalize(
		[]models.WhaleRecord{
			whale(0, 100_000, models.WhaleAccumulate),
			whale(10*time.Minute, 100_000, models.WhaleAccumulate),
		},
		baseSentiment(), "BTC", windowStart, windowEnd)
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("record at windowEnd counted: err = %v", err)
	}
}

func TestNormalizeIgnoresOtherAssets(t *testing.T) {
	n := NewNormalizer(NormalizerConfig{})
	other := whale(1*time.Minute, 500_000, models.WhaleAccumulate)
	other.Asset = "ETH"

	v, err := n.Normalize(
		[]models.WhaleRecord{
			other,
			whale(2*time.Minute, 100_000, models.WhaleAccumulate),
			whale(3*time.Minute, 100_000, models.WhaleAccumulate),
		},
		baseSentiment(), "BTC", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if v.WhaleNetFlowUSD != 200_000 {
		t.Fatalf("net flow = %f, cross-asset record leaked in", v.WhaleNetFlowUSD)
	}
}

func TestLogReturns(t *testing.T) {
	if r := LogReturns([]float64{100}); r != nil {
		t.Fatalf("short series should return nil")
	}
	r := LogReturns([]float64{100, 110, 99})
	if len(r) != 2 {
		t.Fatalf("len = %d, want 2", len(r))
	}
	if math.Abs(r[0]-math.Log(1.1)) > 1e-12 {
		t.Fatalf("r[0] = %f", r[0])
	}
}

func TestRealizedVolatility(t *testing.T) {
	if v := RealizedVolatility([]float64{0.01, 0.01}, 4); v != 0 {
		t.Fatalf("short history should report 0, got %f", v)
	}
	if v := RealizedVolatility([]float64{0, 0, 0, 0}, 4); v != 0 {
		t.Fatalf("flat returns should report 0, got %f", v)
	}

	returns := []float64{0.01, -0.01, 0.01, -0.01}
	want := math.Sqrt(4 * 0.0001 / 3)
	if v := RealizedVolatility(returns, 4); math.Abs(v-want) > 1e-12 {
		t.Fatalf("vol = %f, want %f", v, want)
	}
}
