package assistant

import (
	"fmt"
	"strings"

	"github.com/scrypster/bizdna/pkg/types"
)

const promptRules = `Rules:
1. Always answer in the same language the user writes in.
2. Cite concrete figures from the business profile (ratings, counts, percentages) when they support your answer.
3. Never invent data. If the profile or the notes do not contain what is asked, say you do not know.
4. Keep answers practical and short. When you recommend an action (reply to a review, create a post, review analytics, answer a question, update opening hours), name it explicitly.`

// SystemPrompt renders the per-turn instructions from the operator profile
// and its most important memories.
func SystemPrompt(p *types.BehavioralProfile, memories []*types.MemoryRecord) string {
	var b strings.Builder

	name := "this business"
	if p != nil && p.Name != "" {
		name = p.Name
	}
	b.WriteString("You are the business assistant for ")
	b.WriteString(name)
	if p != nil && p.Category != "" {
		fmt.Fprintf(&b, " (%s)", p.Category)
	}
	b.WriteString(". You help the owner understand their customers and decide what to do next.\n\n")

	b.WriteString("Business profile:\n")
	writeProfile(&b, p)

	if len(memories) > 0 {
		b.WriteString("\nKnown notes about this business, most important first:\n")
		for _, m := range memories {
			fmt.Fprintf(&b, "- [%s] %s\n", m.Kind, m.Content)
		}
	}

	b.WriteString("\n")
	b.WriteString(promptRules)
	return b.String()
}

func writeProfile(b *strings.Builder, p *types.BehavioralProfile) {
	if p == nil || p.TotalRecords == 0 {
		b.WriteString("- No customer interaction data is available yet. Do not guess figures.\n")
		return
	}

	fmt.Fprintf(b, "- Average rating: %.1f from %d records\n", p.AverageRating, p.TotalRecords)
	fmt.Fprintf(b, "- Feedback: %d, posts: %d, questions: %d\n", p.FeedbackCount, p.PostCount, p.QuestionCount)
	fmt.Fprintf(b, "- Sentiment score: %d (scale -100 to 100), trend: %s\n", p.SentimentScore, p.GrowthTrend)
	fmt.Fprintf(b, "- Response rate: %d%%\n", p.ResponseRate)
	if len(p.Strengths) > 0 {
		fmt.Fprintf(b, "- Strengths: %s\n", strings.Join(p.Strengths, ", "))
	}
	if len(p.Weaknesses) > 0 {
		fmt.Fprintf(b, "- Weaknesses: %s\n", strings.Join(p.Weaknesses, ", "))
	}
	if len(p.TopTopics) > 0 {
		topics := make([]string, 0, len(p.TopTopics))
		for _, t := range p.TopTopics {
			topics = append(topics, fmt.Sprintf("%s (%s, %d mentions)", t.Topic, t.Sentiment, t.MentionCount))
		}
		fmt.Fprintf(b, "- Top topics: %s\n", strings.Join(topics, "; "))
	}

	rs := p.ReplyStyle
	emoji := "without emoji"
	if rs.UsesEmoji {
		emoji = "with emoji"
	}
	fmt.Fprintf(b, "- Owner reply style: %s, %s, formality %d/10, %s\n", rs.Tone, rs.Length, rs.FormalityLevel, emoji)
	if len(p.SignaturePhrases) > 0 {
		fmt.Fprintf(b, "- Signature phrases: %q\n", p.SignaturePhrases)
	}
	if len(p.PeakDays) > 0 {
		fmt.Fprintf(b, "- Busiest days: %s\n", strings.Join(p.PeakDays, ", "))
	}
	if len(p.BestContactTimes) > 0 {
		slots := make([]string, 0, len(p.BestContactTimes))
		for _, c := range p.BestContactTimes {
			slots = append(slots, fmt.Sprintf("%s %02d:00", c.Day, c.Hour))
		}
		fmt.Fprintf(b, "- Best times to publish: %s\n", strings.Join(slots, ", "))
	}
	fmt.Fprintf(b, "- Profile confidence: %d%%, data completeness: %d%%\n", p.ConfidenceScore, p.DataCompleteness)
}
