package features

import (
	"errors"
	"math"
	"time"

	"WhalePulse/internal/domain/models"
)

// ErrInsufficientData means a window held fewer source records than the
// configured minimum. Callers treat it as "no signal this cycle".
var ErrInsufficientData = errors.New("insufficient data in window")

// NormalizerConfig bounds how many source records a window must hold before
// a feature vector is produced.
type NormalizerConfig struct {
	MinWhaleRecords     int
	MinSentimentRecords int
}

// Normalizer fuses whale and sentiment records into per-(asset, window)
// feature vectors. Purely functional; safe to run concurrently per asset.
type Normalizer struct {
	cfg NormalizerConfig
}

func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	if cfg.MinWhaleRecords <= 0 {
		cfg.MinWhaleRecords = 2
	}
	if cfg.MinSentimentRecords <= 0 {
		cfg.MinSentimentRecords = 3
	}
	return &Normalizer{cfg: cfg}
}

// Normalize converts raw records inside [windowStart, windowEnd) into a
// feature vector. Records outside the window are ignored.
func (n *Normalizer) Normalize(
	whale []models.WhaleRecord,
	sentiment []models.SentimentRecord,
	asset string,
	windowStart, windowEnd time.Time,
) (models.FeatureVector, error) {
	var v models.FeatureVector

	inWhale := filterWhale(whale, asset, windowStart, windowEnd)
	inSent := filterSentiment(sentiment, asset, windowStart, windowEnd)
	if len(inWhale) < n.cfg.MinWhaleRecords || len(inSent) < n.cfg.MinSentimentRecords {
		return v, ErrInsufficientData
	}

	v.Asset = asset
	v.WindowStart = windowStart
	v.WindowEnd = windowEnd
	v.WhaleNetFlowUSD = netFlowUSD(inWhale)
	v.WhaleUrgency = urgency(inWhale, windowStart, windowEnd)
	v.WhaleImpact = impact(inWhale)
	v.SentimentScore = weightedSentiment(inSent)
	v.SentimentVelocity = sentimentVelocity(inSent, windowStart, windowEnd)
	for _, s := range inSent {
		v.MentionCount += s.MentionCount
	}
	return v, nil
}

func filterWhale(in []models.WhaleRecord, asset string, from, to time.Time) []models.WhaleRecord {
	out := make([]models.WhaleRecord, 0, len(in))
	for _, r := range in {
		if r.Asset != asset || r.AmountUSD <= 0 {
			continue
		}
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func filterSentiment(in []models.SentimentRecord, asset string, from, to time.Time) []models.SentimentRecord {
	out := make([]models.SentimentRecord, 0, len(in))
	for _, r := range in {
		if r.Asset != asset {
			continue
		}
		if r.Timestamp.Before(from) || !r.Timestamp.Before(to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// netFlowUSD is accumulation minus distribution in USD.
func netFlowUSD(recs []models.WhaleRecord) float64 {
	var flow float64
	for _, r := range recs {
		if r.Direction == models.WhaleDistribute {
			flow -= r.AmountUSD
		} else {
			flow += r.AmountUSD
		}
	}
	return flow
}

// urgency measures how front-loaded whale volume is toward the end of the
// window: 0 when all volume is in the first half, 1 when all of it landed in
// the second half.
func urgency(recs []models.WhaleRecord, from, to time.Time) float64 {
	mid := from.Add(to.Sub(from) / 2)
	var total, recent float64
	for _, r := range recs {
		total += r.AmountUSD
		if !r.Timestamp.Before(mid) {
			recent += r.AmountUSD
		}
	}
	if total <= 0 {
		return 0
	}
	return clamp01(recent / total)
}

// impact is the largest single transaction's share of window volume.
func impact(recs []models.WhaleRecord) float64 {
	var total, max float64
	for _, r := range recs {
		total += r.AmountUSD
		if r.AmountUSD > max {
			max = r.AmountUSD
		}
	}
	if total <= 0 {
		return 0
	}
	return clamp01(max / total)
}

// weightedSentiment is the mention-weighted mean score, falling back to a
// plain mean when mention counts are absent.
func weightedSentiment(recs []models.SentimentRecord) float64 {
	var sum, weight float64
	for _, r := range recs {
		w := float64(r.MentionCount)
		if w <= 0 {
			w = 1
		}
		sum += r.Score * w
		weight += w
	}
	if weight <= 0 {
		return 0
	}
	return sum / weight
}

// sentimentVelocity is the mean score of the window's second half minus the
// first half: positive when tone is improving.
func sentimentVelocity(recs []models.SentimentRecord, from, to time.Time) float64 {
	mid := from.Add(to.Sub(from) / 2)
	var earlySum, lateSum float64
	var earlyN, lateN int
	for _, r := range recs {
		if r.Timestamp.Before(mid) {
			earlySum += r.Score
			earlyN++
		} else {
			lateSum += r.Score
			lateN++
		}
	}
	if earlyN == 0 || lateN == 0 {
		return 0
	}
	return lateSum/float64(lateN) - earlySum/float64(earlyN)
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
