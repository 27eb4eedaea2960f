package models

import "time"

// WhaleDirection classifies a large-holder transaction.
const (
	WhaleAccumulate = "accumulate"
	WhaleDistribute = "distribute"
)

// WhaleRecord is a normalized large-holder transaction delivered by the
// on-chain collaborator. Consumed as-is; never mutated.
type WhaleRecord struct {
	Asset     string    `json:"asset"`
	Timestamp time.Time `json:"timestamp"`
	AmountUSD float64   `json:"amount_usd"`
	Direction string    `json:"direction"` // accumulate | distribute
	WalletID  string    `json:"wallet_id"`
}

// SentimentRecord is a normalized social-sentiment sample for an asset.
type SentimentRecord struct {
	Asset        string    `json:"asset"`
	Timestamp    time.Time `json:"timestamp"`
	Score        float64   `json:"score"` // [-1, 1]
	MentionCount int       `json:"mention_count"`
	Source       string    `json:"source"`
}

// FeatureVector is the fused per-(asset, window) view of both streams.
// Immutable once produced. Urgency and impact are normalized to [0, 1];
// the sentiment score stays in [-1, 1].
type FeatureVector struct {
	Asset             string    `json:"asset"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
	WhaleNetFlowUSD   float64   `json:"whale_net_flow_usd"`
	WhaleUrgency      float64   `json:"whale_urgency"`
	WhaleImpact       float64   `json:"whale_impact"`
	SentimentScore    float64   `json:"sentiment_score"`
	SentimentVelocity float64   `json:"sentiment_velocity"`
	MentionCount      int       `json:"mention_count"`
}

// PriceTick is a quoted price sample for an asset.
type PriceTick struct {
	Asset     string    `json:"asset"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
