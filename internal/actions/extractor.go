// Package actions classifies assistant output into a small, fixed
// vocabulary of suggested actions using keyword patterns. It is rule based
// and never fails: text that matches nothing yields an empty list.
package actions

import (
	"regexp"

	"github.com/scrypster/bizdna/pkg/types"
)

type rule struct {
	action   types.ActionType
	label    string
	patterns []*regexp.Regexp
}

// rules are evaluated in order; the output keeps this order.
var rules = []rule{
	{
		action: types.ActionDraftReply,
		label:  "Draft a reply",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(reply|respond|response)\b.{0,40}\b(review|feedback|comment|customer)s?\b`),
			regexp.MustCompile(`(?i)\b(draft|write)\b.{0,20}\b(reply|response)\b`),
			regexp.MustCompile(`(?i)\b(responder|contestar|contesta|responde)\b.{0,40}\b(reseña|resena|opini[oó]n|comentario|cliente)s?\b`),
			regexp.MustCompile(`(?i)\b(borrador|redactar)\b.{0,30}\b(respuesta)\b`),
		},
	},
	{
		action: types.ActionCreatePost,
		label:  "Create a post",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(creat|publish|writ|shar|schedul)\w*\b.{0,30}\b(post|update|announcement)s?\b`),
			regexp.MustCompile(`(?i)\b(crear|publicar|compartir|programar)\b.{0,30}\b(publicaci[oó]n|post|anuncio)\b`),
		},
	},
	{
		action: types.ActionShowAnalytics,
		label:  "Show analytics",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(analytics|metrics|statistics|stats|dashboard|insights)\b`),
			regexp.MustCompile(`(?i)\b(rating|sentiment|performance)\s+(trend|over time|breakdown)\b`),
			regexp.MustCompile(`(?i)\b(estad[ií]sticas|m[eé]tricas|anal[ií]ticas|tendencia)\b`),
		},
	},
	{
		action: types.ActionAnswerQuestion,
		label:  "Answer a customer question",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(answer|reply to|respond to)\b.{0,30}\bquestions?\b`),
			regexp.MustCompile(`(?i)\bunanswered\b.{0,20}\bquestions?\b`),
			regexp.MustCompile(`(?i)\b(responder|contestar)\b.{0,30}\bpreguntas?\b`),
			regexp.MustCompile(`(?i)\bpreguntas?\s+sin\s+responder\b`),
		},
	},
	{
		action: types.ActionUpdateHours,
		label:  "Update business hours",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b(updat|chang|adjust|review)\w*\b.{0,30}\b(hours|opening times|schedule)\b`),
			regexp.MustCompile(`(?i)\b(actualizar|cambiar|ajustar|revisar)\b.{0,30}\bhorarios?\b`),
		},
	},
}

// Extract returns the union of actions whose patterns match content,
// de-duplicated by type, in a stable order. It never returns nil.
func Extract(content string) []types.SuggestedAction {
	out := make([]types.SuggestedAction, 0)
	if content == "" {
		return out
	}
	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(content) {
				out = append(out, types.SuggestedAction{Type: r.action, Label: r.label})
				break
			}
		}
	}
	return out
}

// Vocabulary lists every action type Extract can produce.
func Vocabulary() []types.ActionType {
	v := make([]types.ActionType, len(rules))
	for i, r := range rules {
		v[i] = r.action
	}
	return v
}
