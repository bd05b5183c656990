package types

import "time"

// TopicSignal is a domain keyword and how often it was mentioned in one
// sentiment bucket.
type TopicSignal struct {
	Topic        string         `json:"topic"`
	MentionCount int            `json:"mention_count"`
	Sentiment    TopicSentiment `json:"sentiment"`
}

// ReplyStyle summarises how the operator answers customers.
type ReplyStyle struct {
	Tone           string `json:"tone"`            // professional, friendly, casual
	Length         string `json:"length"`          // short, medium, long
	UsesEmoji      bool   `json:"uses_emoji"`      // more than 30% of responses contain emoji
	FormalityLevel int    `json:"formality_level"` // 1..10
}

// ContactTime is a (weekday, hour) slot with high publishing activity.
type ContactTime struct {
	Day  string `json:"day"`
	Hour int    `json:"hour"`
}

// BehavioralProfile is the derived, cached summary of an operator's
// historical interaction patterns (the "DNA"). One profile exists per
// (OperatorID, Scope) pair.
type BehavioralProfile struct {
	// Identity
	OperatorID string `json:"operator_id"`
	Scope      string `json:"scope"`
	Name       string `json:"name"`
	Category   string `json:"category"`

	// Derived signals
	TopTopics        []TopicSignal `json:"top_topics"`
	Strengths        []string      `json:"strengths"`
	Weaknesses       []string      `json:"weaknesses"`
	ReplyStyle       ReplyStyle    `json:"reply_style"`
	SignaturePhrases []string      `json:"signature_phrases"`

	// Timing signals
	PeakDays         []string      `json:"peak_days"`
	BestContactTimes []ContactTime `json:"best_contact_times"`

	// Aggregate metrics
	AverageRating  float64     `json:"average_rating"`
	TotalRecords   int         `json:"total_records"`
	ResponseRate   int         `json:"response_rate"`   // 0..100
	SentimentScore int         `json:"sentiment_score"` // -100..100
	GrowthTrend    GrowthTrend `json:"growth_trend"`

	// Facet volumes used for completeness scoring
	FeedbackCount int `json:"feedback_count"`
	PostCount     int `json:"post_count"`
	QuestionCount int `json:"question_count"`

	// Meta
	ConfidenceScore  int       `json:"confidence_score"`  // 0..100
	DataCompleteness int       `json:"data_completeness"` // 0..100
	LastComputedAt   time.Time `json:"last_computed_at"`
}

// IsStale reports whether the profile was computed more than window ago.
func (p *BehavioralProfile) IsStale(now time.Time, window time.Duration) bool {
	if p == nil || p.LastComputedAt.IsZero() {
		return true
	}
	return now.Sub(p.LastComputedAt) >= window
}

// EmptyProfile returns a zero-signal profile for an operator. It is used when
// no profile can be built and the assistant must still answer.
func EmptyProfile(operatorID, scope string) *BehavioralProfile {
	return &BehavioralProfile{
		OperatorID:       operatorID,
		Scope:            scope,
		TopTopics:        []TopicSignal{},
		Strengths:        []string{},
		Weaknesses:       []string{},
		SignaturePhrases: []string{},
		PeakDays:         []string{},
		BestContactTimes: []ContactTime{},
		GrowthTrend:      TrendStable,
		ReplyStyle: ReplyStyle{
			Tone:           ToneFriendly,
			Length:         LengthShort,
			FormalityLevel: 5,
		},
	}
}
