package profile

import "github.com/scrypster/bizdna/internal/analyzer"

// Completeness weights. Each facet adds its weight once its threshold is met.
const (
	identityWeight      = 20
	feedbackWeight      = 30
	postsWeight         = 20
	responseRateWeight  = 15
	questionsWeight     = 15
	minFeedbackForScore = 10
	minPostsForScore    = 5
	minResponseRate     = 50

	volumeBonus        = 20
	minRecordsForBonus = 50
)

// Completeness scores how much of the expected data the profile was built
// from, 0..100.
func Completeness(sig analyzer.Signals, hasIdentity bool) int {
	score := 0
	if hasIdentity {
		score += identityWeight
	}
	if sig.FeedbackCount >= minFeedbackForScore {
		score += feedbackWeight
	}
	if sig.PostCount >= minPostsForScore {
		score += postsWeight
	}
	if sig.ResponseRate >= minResponseRate {
		score += responseRateWeight
	}
	if sig.QuestionCount > 0 {
		score += questionsWeight
	}
	return min(score, 100)
}

// Confidence is completeness plus a volume bonus once enough records were
// seen, capped at 100.
func Confidence(completeness, totalRecords int) int {
	score := completeness
	if totalRecords >= minRecordsForBonus {
		score += volumeBonus
	}
	return min(score, 100)
}
