// Package analyzer derives behavioral signals from a batch of interaction
// records. The analysis is rule-based: keyword matching, lexicon counts and
// volume buckets. It is a heuristic stand-in for real NLP and should not be
// read as anything stronger.
package analyzer

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/scrypster/bizdna/pkg/types"
)

// Signals is the output of Analyze. The zero value (as returned for empty
// input) has empty, non-nil slices.
type Signals struct {
	PositiveTopics []types.TopicSignal
	NegativeTopics []types.TopicSignal
	NeutralTopics  []types.TopicSignal
	TopTopics      []types.TopicSignal

	Strengths  []string
	Weaknesses []string

	SentimentScore int // -100..100

	ReplyStyle       types.ReplyStyle
	SignaturePhrases []string

	PeakDays         []string
	BestContactTimes []types.ContactTime

	AverageRating float64
	ResponseRate  int // 0..100
	GrowthTrend   types.GrowthTrend

	TotalRecords   int
	FeedbackCount  int
	PostCount      int
	QuestionCount  int
	PositiveCount  int
	NegativeCount  int
	NeutralCount   int
	RespondedCount int
}

// Analyzer runs the heuristics with a fixed set of tunables.
type Analyzer struct {
	tun      Tunables
	keywords map[string]bool
}

// New creates an Analyzer. Zero-valued tunables are not defaulted; callers
// normally start from DefaultTunables.
func New(tun Tunables) *Analyzer {
	kw := make(map[string]bool, len(tun.Keywords))
	for _, k := range tun.Keywords {
		kw[foldAccents(strings.ToLower(k))] = true
	}
	return &Analyzer{tun: tun, keywords: kw}
}

var defaultAnalyzer = New(DefaultTunables())

// Analyze runs the default analyzer over records.
func Analyze(records []types.InteractionRecord) Signals {
	return defaultAnalyzer.Analyze(records)
}

// Analyze derives signals from records. It is pure and deterministic: the
// same input always yields the same output, and no wall-clock time is read.
func (a *Analyzer) Analyze(records []types.InteractionRecord) Signals {
	sig := emptySignals()
	if len(records) == 0 {
		return sig
	}

	var positive, negative, neutral []types.InteractionRecord
	var ratingSum, rated int
	var responded []string
	var feedbackResponded int

	for _, r := range records {
		sig.TotalRecords++
		switch r.Kind {
		case types.RecordFeedback:
			sig.FeedbackCount++
			if r.HasResponse() {
				feedbackResponded++
			}
		case types.RecordPost:
			sig.PostCount++
		case types.RecordQuestion:
			sig.QuestionCount++
		}

		switch {
		case r.Score != nil && *r.Score >= a.tun.PositiveMinScore:
			positive = append(positive, r)
		case r.Score != nil && *r.Score <= a.tun.NegativeMaxScore:
			negative = append(negative, r)
		default:
			neutral = append(neutral, r)
		}

		if r.Score != nil {
			ratingSum += *r.Score
			rated++
		}
		if r.HasResponse() {
			responded = append(responded, *r.Response)
		}
	}

	sig.PositiveCount = len(positive)
	sig.NegativeCount = len(negative)
	sig.NeutralCount = len(neutral)
	sig.RespondedCount = len(responded)

	sig.PositiveTopics = a.topics(positive, types.SentimentPositive)
	sig.NegativeTopics = a.topics(negative, types.SentimentNegative)
	sig.NeutralTopics = a.topics(neutral, types.SentimentNeutral)
	sig.TopTopics = a.mergeTopics(sig.PositiveTopics, sig.NegativeTopics, sig.NeutralTopics)
	sig.Strengths = topicNames(sig.PositiveTopics, a.tun.MaxStrengths)
	sig.Weaknesses = topicNames(sig.NegativeTopics, a.tun.MaxStrengths)

	if rated > 0 {
		sig.AverageRating = math.Round(float64(ratingSum)/float64(rated)*100) / 100
		sig.SentimentScore = sentimentScore(len(positive), len(negative), rated)
	}
	if sig.FeedbackCount > 0 {
		sig.ResponseRate = types.ClampInt(
			int(math.Round(float64(feedbackResponded)/float64(sig.FeedbackCount)*100)), 0, 100)
	}

	sig.ReplyStyle = a.replyStyle(responded)
	sig.SignaturePhrases = a.signaturePhrases(responded)
	sig.PeakDays, sig.BestContactTimes = a.timing(records)
	sig.GrowthTrend = a.growthTrend(records)

	return sig
}

func emptySignals() Signals {
	return Signals{
		PositiveTopics:   []types.TopicSignal{},
		NegativeTopics:   []types.TopicSignal{},
		NeutralTopics:    []types.TopicSignal{},
		TopTopics:        []types.TopicSignal{},
		Strengths:        []string{},
		Weaknesses:       []string{},
		SignaturePhrases: []string{},
		PeakDays:         []string{},
		BestContactTimes: []types.ContactTime{},
		GrowthTrend:      types.TrendStable,
		ReplyStyle: types.ReplyStyle{
			Tone:           types.ToneFriendly,
			Length:         types.LengthShort,
			FormalityLevel: 5,
		},
	}
}

// sentimentScore is round((pos/total - neg/total) * 100), bounded to ±100.
func sentimentScore(pos, neg, total int) int {
	if total == 0 {
		return 0
	}
	raw := (float64(pos)/float64(total) - float64(neg)/float64(total)) * 100
	return types.ClampInt(int(math.Round(raw)), -100, 100)
}

// topics counts domain keyword occurrences across the bucket's text.
func (a *Analyzer) topics(bucket []types.InteractionRecord, sentiment types.TopicSentiment) []types.TopicSignal {
	counts := make(map[string]int)
	for _, r := range bucket {
		for _, tok := range tokenize(r.Text) {
			if a.keywords[tok] {
				counts[tok]++
			}
		}
	}

	out := make([]types.TopicSignal, 0, len(counts))
	for kw, n := range counts {
		if n < a.tun.MinKeywordMentions {
			continue
		}
		out = append(out, types.TopicSignal{Topic: kw, MentionCount: n, Sentiment: sentiment})
	}
	sortTopics(out)
	if len(out) > a.tun.MaxTopicsPerBucket {
		out = out[:a.tun.MaxTopicsPerBucket]
	}
	return out
}

func (a *Analyzer) mergeTopics(buckets ...[]types.TopicSignal) []types.TopicSignal {
	var all []types.TopicSignal
	for _, b := range buckets {
		all = append(all, b...)
	}
	sortTopics(all)
	if len(all) > a.tun.MaxTopTopics {
		all = all[:a.tun.MaxTopTopics]
	}
	if all == nil {
		return []types.TopicSignal{}
	}
	return all
}

// sortTopics orders by mention count descending, then topic name so the
// output is stable across runs.
func sortTopics(ts []types.TopicSignal) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].MentionCount != ts[j].MentionCount {
			return ts[i].MentionCount > ts[j].MentionCount
		}
		if ts[i].Topic != ts[j].Topic {
			return ts[i].Topic < ts[j].Topic
		}
		return ts[i].Sentiment < ts[j].Sentiment
	})
}

func topicNames(ts []types.TopicSignal, limit int) []string {
	out := make([]string, 0, limit)
	for _, t := range ts {
		if len(out) == limit {
			break
		}
		out = append(out, t.Topic)
	}
	return out
}

// growthTrend compares feedback volume in the most recent window (ending at
// the newest feedback record) against the window before it.
func (a *Analyzer) growthTrend(records []types.InteractionRecord) types.GrowthTrend {
	var newest time.Time
	for _, r := range records {
		if r.Kind == types.RecordFeedback && r.CreatedAt.After(newest) {
			newest = r.CreatedAt
		}
	}
	if newest.IsZero() {
		return types.TrendStable
	}

	window := time.Duration(a.tun.TrendWindowDays) * 24 * time.Hour
	recentStart := newest.Add(-window)
	priorStart := recentStart.Add(-window)

	var recent, prior int
	for _, r := range records {
		if r.Kind != types.RecordFeedback || r.CreatedAt.IsZero() {
			continue
		}
		switch {
		case r.CreatedAt.After(recentStart):
			recent++
		case r.CreatedAt.After(priorStart):
			prior++
		}
	}

	if prior == 0 {
		if recent >= a.tun.TrendMinRecent {
			return types.TrendGrowing
		}
		return types.TrendStable
	}
	change := float64(recent-prior) / float64(prior)
	switch {
	case change > a.tun.TrendThreshold:
		return types.TrendGrowing
	case change < -a.tun.TrendThreshold:
		return types.TrendDeclining
	default:
		return types.TrendStable
	}
}

var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

func foldAccents(s string) string {
	return accentFolder.Replace(s)
}

// tokenize lowercases text, folds Spanish accents and splits on anything
// that is not a letter or digit.
func tokenize(text string) []string {
	folded := foldAccents(strings.ToLower(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
