package actions_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scrypster/bizdna/internal/actions"
	"github.com/scrypster/bizdna/pkg/types"
)

func typesOf(as []types.SuggestedAction) []types.ActionType {
	out := make([]types.ActionType, len(as))
	for i, a := range as {
		out[i] = a.Type
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []types.ActionType
	}{
		{"empty", "", []types.ActionType{}},
		{"nothing fires", "Your coffee is loved by regulars.", []types.ActionType{}},
		{"draft reply", "I can draft a reply to that review for you.", []types.ActionType{types.ActionDraftReply}},
		{"create post", "Consider creating a post about the new menu.", []types.ActionType{types.ActionCreatePost}},
		{"analytics", "Check your dashboard to see the rating trend.", []types.ActionType{types.ActionShowAnalytics}},
		{"questions", "You have 3 unanswered questions from customers.", []types.ActionType{types.ActionAnswerQuestion}},
		{"hours", "You may want to update your opening hours for the holidays.", []types.ActionType{types.ActionUpdateHours}},
		{
			"spanish union",
			"Te recomiendo responder a la reseña negativa y publicar una publicación sobre el nuevo horario. Revisa tus estadísticas.",
			[]types.ActionType{types.ActionDraftReply, types.ActionCreatePost, types.ActionShowAnalytics},
		},
		{
			"deduplicated",
			"Reply to the review from Ana, then reply to the feedback from Luis. Draft a response for both.",
			[]types.ActionType{types.ActionDraftReply},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := actions.Extract(tt.content)
			assert.NotNil(t, got)
			assert.Equal(t, tt.want, typesOf(got))
		})
	}
}

func TestExtract_LabelsAndStableOrder(t *testing.T) {
	text := "Update your hours, then check the analytics and write a reply to the newest review."
	first := actions.Extract(text)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, actions.Extract(text))
	}
	for _, a := range first {
		assert.NotEmpty(t, a.Label)
	}
	assert.Equal(t, []types.ActionType{types.ActionDraftReply, types.ActionShowAnalytics, types.ActionUpdateHours}, typesOf(first))
}

func TestVocabulary(t *testing.T) {
	assert.Len(t, actions.Vocabulary(), 5)
}
