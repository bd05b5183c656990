package analyzer_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/bizdna/internal/analyzer"
	"github.com/scrypster/bizdna/pkg/types"
)

func feedback(id string, score int, text string) types.InteractionRecord {
	return types.InteractionRecord{Kind: types.RecordFeedback, ID: id, Score: &score, Text: text}
}

func withResponse(r types.InteractionRecord, resp string) types.InteractionRecord {
	r.Response = &resp
	return r
}

func post(id string, at time.Time) types.InteractionRecord {
	return types.InteractionRecord{Kind: types.RecordPost, ID: id, Text: "post " + id, PublishedAt: &at, CreatedAt: at}
}

func TestAnalyze_EmptyInput(t *testing.T) {
	sig := analyzer.Analyze(nil)

	assert.Equal(t, 0, sig.TotalRecords)
	assert.Equal(t, 0, sig.SentimentScore)
	assert.NotNil(t, sig.Strengths)
	assert.Empty(t, sig.Strengths)
	assert.Empty(t, sig.Weaknesses)
	assert.Empty(t, sig.TopTopics)
	assert.Empty(t, sig.SignaturePhrases)
	assert.Empty(t, sig.PeakDays)
	assert.Empty(t, sig.BestContactTimes)
	assert.Equal(t, types.TrendStable, sig.GrowthTrend)
}

// TestAnalyze_ServiceAndWait covers the 20-record scenario: 14 positive
// records mentioning service, 4 negative records mentioning wait.
func TestAnalyze_ServiceAndWait(t *testing.T) {
	var records []types.InteractionRecord
	for i := 0; i < 14; i++ {
		records = append(records, feedback(fmt.Sprintf("p%d", i), 5, "Great service and lovely people"))
	}
	for i := 0; i < 4; i++ {
		records = append(records, feedback(fmt.Sprintf("n%d", i), 1, "The wait was far too long"))
	}
	for i := 0; i < 2; i++ {
		records = append(records, feedback(fmt.Sprintf("m%d", i), 3, "It was fine"))
	}

	sig := analyzer.Analyze(records)

	assert.Contains(t, sig.Strengths, "service")
	assert.Contains(t, sig.Weaknesses, "wait")
	assert.Equal(t, 50, sig.SentimentScore)
	assert.Equal(t, 20, sig.FeedbackCount)
	assert.Equal(t, 14, sig.PositiveCount)
	assert.Equal(t, 4, sig.NegativeCount)
	assert.Equal(t, 2, sig.NeutralCount)

	require.NotEmpty(t, sig.TopTopics)
	assert.Equal(t, "service", sig.TopTopics[0].Topic)
	assert.Equal(t, 14, sig.TopTopics[0].MentionCount)
	assert.Equal(t, types.SentimentPositive, sig.TopTopics[0].Sentiment)
}

func TestAnalyze_KeywordNeedsTwoMentions(t *testing.T) {
	records := []types.InteractionRecord{
		feedback("a", 5, "the coffee was great"),
		feedback("b", 5, "nice parking and parking was free"),
	}

	sig := analyzer.Analyze(records)

	assert.Equal(t, []string{"parking"}, sig.Strengths, "single mention of coffee must not become a topic")
}

func TestAnalyze_TopicsCappedAndSorted(t *testing.T) {
	text := "service service staff staff food food quality quality taste taste fresh fresh " +
		"menu menu coffee coffee price price value value clean clean music music wait wait wait"
	sig := analyzer.Analyze([]types.InteractionRecord{feedback("a", 5, text)})

	assert.Len(t, sig.PositiveTopics, 10)
	assert.Len(t, sig.Strengths, 5)
	assert.Equal(t, "wait", sig.Strengths[0], "highest count ranks first")
	for i := 1; i < len(sig.PositiveTopics); i++ {
		assert.GreaterOrEqual(t, sig.PositiveTopics[i-1].MentionCount, sig.PositiveTopics[i].MentionCount)
	}
}

func TestAnalyze_SpanishAccentsFolded(t *testing.T) {
	sig := analyzer.Analyze([]types.InteractionRecord{
		feedback("a", 1, "La atención fue mala"),
		feedback("b", 2, "Pésima atencion, mucha espera y espera"),
	})
	assert.ElementsMatch(t, []string{"atencion", "espera"}, sig.Weaknesses)
}

func TestAnalyze_SentimentBounds(t *testing.T) {
	allBad := []types.InteractionRecord{feedback("a", 1, "x"), feedback("b", 2, "y")}
	assert.Equal(t, -100, analyzer.Analyze(allBad).SentimentScore)

	allGood := []types.InteractionRecord{feedback("a", 5, "x"), feedback("b", 4, "y")}
	assert.Equal(t, 100, analyzer.Analyze(allGood).SentimentScore)
}

func TestAnalyze_AverageRatingAndResponseRate(t *testing.T) {
	records := []types.InteractionRecord{
		withResponse(feedback("a", 5, "x"), "Thank you!"),
		feedback("b", 4, "y"),
		feedback("c", 3, "z"),
		withResponse(feedback("d", 2, "w"), "Sorry about that."),
		{Kind: types.RecordPost, ID: "p", Text: "hello"},
	}

	sig := analyzer.Analyze(records)

	assert.InDelta(t, 3.5, sig.AverageRating, 0.001)
	assert.Equal(t, 50, sig.ResponseRate)
	assert.Equal(t, 1, sig.PostCount)
	assert.Equal(t, 5, sig.TotalRecords)
}

func TestAnalyze_ReplyStyle(t *testing.T) {
	t.Run("short casual emoji", func(t *testing.T) {
		records := []types.InteractionRecord{
			withResponse(feedback("a", 5, ""), "hey thanks!! 😀"),
			withResponse(feedback("b", 5, ""), "awesome, see you 🎉"),
			withResponse(feedback("c", 5, ""), "lol cool"),
		}
		style := analyzer.Analyze(records).ReplyStyle
		assert.Equal(t, types.LengthShort, style.Length)
		assert.True(t, style.UsesEmoji)
		assert.Equal(t, types.ToneCasual, style.Tone)
		assert.GreaterOrEqual(t, style.FormalityLevel, 1)
	})

	t.Run("long professional", func(t *testing.T) {
		long := "Thank you for your detailed review. We appreciate the time you took to share it with us, " +
			"and we regret that your visit did not meet expectations. Kindly contact our manager so we can " +
			"make this right. We value every guest and use comments like yours to improve our service. " +
			"Please accept our apologies once again for the trouble during your evening. Regards."
		records := []types.InteractionRecord{
			withResponse(feedback("a", 2, ""), long),
			withResponse(feedback("b", 2, ""), long),
		}
		style := analyzer.Analyze(records).ReplyStyle
		assert.Equal(t, types.LengthLong, style.Length)
		assert.False(t, style.UsesEmoji)
		assert.Equal(t, types.ToneProfessional, style.Tone)
		assert.LessOrEqual(t, style.FormalityLevel, 10)
	})

	t.Run("they is not hey", func(t *testing.T) {
		records := []types.InteractionRecord{
			withResponse(feedback("a", 5, ""), "They said the team would follow up"),
		}
		style := analyzer.Analyze(records).ReplyStyle
		assert.Equal(t, 5, style.FormalityLevel)
		assert.Equal(t, types.ToneFriendly, style.Tone)
	})
}

func TestAnalyze_SignaturePhrases(t *testing.T) {
	records := []types.InteractionRecord{
		withResponse(feedback("a", 5, ""), "Thanks for visiting! Glad you liked the pasta. See you soon!"),
		withResponse(feedback("b", 4, ""), "Thanks for visiting! The team loved hosting you. See you soon!"),
		withResponse(feedback("c", 3, ""), "Thanks for visiting! We will pass this along."),
	}

	sig := analyzer.Analyze(records)

	assert.Equal(t, []string{"Thanks for visiting!", "See you soon!"}, sig.SignaturePhrases)
}

func TestAnalyze_SignaturePhrasesNeedThreeResponses(t *testing.T) {
	records := []types.InteractionRecord{
		withResponse(feedback("a", 5, ""), "Thanks for visiting!"),
		withResponse(feedback("b", 5, ""), "Thanks for visiting!"),
	}
	assert.Empty(t, analyzer.Analyze(records).SignaturePhrases)
}

func TestAnalyze_Timing(t *testing.T) {
	// 2026-03-02 is a Monday.
	monday := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	records := []types.InteractionRecord{
		post("1", monday),
		post("2", monday.Add(7*24*time.Hour)),
		post("3", monday.Add(14*24*time.Hour)),
		post("4", monday.Add(24*time.Hour+2*time.Hour)), // Tuesday 20:00
		post("5", monday.Add(48*time.Hour)),             // Wednesday 18:00
		post("6", monday.Add(8*24*time.Hour+2*time.Hour)),
	}

	sig := analyzer.Analyze(records)

	assert.Equal(t, []string{"Monday", "Tuesday", "Wednesday"}, sig.PeakDays)
	require.NotEmpty(t, sig.BestContactTimes)
	assert.Equal(t, types.ContactTime{Day: "Monday", Hour: 18}, sig.BestContactTimes[0])
	assert.Equal(t, types.ContactTime{Day: "Tuesday", Hour: 20}, sig.BestContactTimes[1])
	assert.LessOrEqual(t, len(sig.BestContactTimes), 5)
}

func TestAnalyze_TimingNeedsFiveRecords(t *testing.T) {
	monday := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	records := []types.InteractionRecord{post("1", monday), post("2", monday), post("3", monday), post("4", monday)}

	sig := analyzer.Analyze(records)

	assert.Empty(t, sig.PeakDays)
	assert.Empty(t, sig.BestContactTimes)
}

func TestAnalyze_NoPostsMeansNoTiming(t *testing.T) {
	var records []types.InteractionRecord
	for i := 0; i < 30; i++ {
		records = append(records, feedback(fmt.Sprintf("f%d", i), 4, "nice"))
	}
	sig := analyzer.Analyze(records)
	assert.Equal(t, []types.ContactTime{}, sig.BestContactTimes)
	assert.Equal(t, []string{}, sig.PeakDays)
}

func TestAnalyze_GrowthTrend(t *testing.T) {
	base := time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC)
	at := func(r types.InteractionRecord, daysAgo int) types.InteractionRecord {
		r.CreatedAt = base.Add(-time.Duration(daysAgo) * 24 * time.Hour)
		return r
	}

	build := func(recent, prior int) []types.InteractionRecord {
		var out []types.InteractionRecord
		for i := 0; i < recent; i++ {
			out = append(out, at(feedback(fmt.Sprintf("r%d", i), 4, ""), i%25))
		}
		for i := 0; i < prior; i++ {
			out = append(out, at(feedback(fmt.Sprintf("o%d", i), 4, ""), 35+i%20))
		}
		return out
	}

	assert.Equal(t, types.TrendGrowing, analyzer.Analyze(build(20, 10)).GrowthTrend)
	assert.Equal(t, types.TrendDeclining, analyzer.Analyze(build(5, 10)).GrowthTrend)
	assert.Equal(t, types.TrendStable, analyzer.Analyze(build(10, 10)).GrowthTrend)
}

func TestAnalyze_Deterministic(t *testing.T) {
	records := []types.InteractionRecord{
		feedback("a", 5, "service staff service staff food food"),
		feedback("b", 1, "wait slow wait slow"),
		withResponse(feedback("c", 3, "price price"), "Thanks! Come back."),
	}
	first := analyzer.Analyze(records)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, analyzer.Analyze(records))
	}
}

func TestNew_CustomTunables(t *testing.T) {
	tun := analyzer.DefaultTunables()
	tun.MinKeywordMentions = 1
	tun.Keywords = []string{"croissant"}

	sig := analyzer.New(tun).Analyze([]types.InteractionRecord{feedback("a", 5, "best croissant in town")})

	assert.Equal(t, []string{"croissant"}, sig.Strengths)
}
