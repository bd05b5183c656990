// Package types defines the core data structures for the bizdna system.
// These types represent interaction records, behavioral profiles, operator
// memories, conversations and the provider configuration used to drive the
// assistant.
package types

// RecordKind identifies which upstream collection an interaction record came from.
type RecordKind string

// Interaction record kinds
const (
	// RecordFeedback is a customer feedback entry (review) with a 1-5 score.
	RecordFeedback RecordKind = "feedback"

	// RecordPost is a post published by the operator.
	RecordPost RecordKind = "post"

	// RecordQuestion is a question asked by a customer.
	RecordQuestion RecordKind = "question"
)

// IsValid reports whether k is a known record kind.
func (k RecordKind) IsValid() bool {
	switch k {
	case RecordFeedback, RecordPost, RecordQuestion:
		return true
	}
	return false
}

// TopicSentiment labels the bucket a topic was extracted from.
type TopicSentiment string

// Topic sentiment constants
const (
	SentimentPositive TopicSentiment = "positive"
	SentimentNegative TopicSentiment = "negative"
	SentimentNeutral  TopicSentiment = "neutral"
)

// GrowthTrend describes the direction of recent feedback volume.
type GrowthTrend string

// Growth trend constants
const (
	TrendGrowing   GrowthTrend = "growing"
	TrendStable    GrowthTrend = "stable"
	TrendDeclining GrowthTrend = "declining"
)

// Reply tone labels derived from the formality score.
const (
	ToneProfessional = "professional"
	ToneFriendly     = "friendly"
	ToneCasual       = "casual"
)

// Reply length labels derived from the mean response length.
const (
	LengthShort  = "short"
	LengthMedium = "medium"
	LengthLong   = "long"
)

// ClampInt bounds v to [lo, hi].
func ClampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
