package analyzer

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/scrypster/bizdna/pkg/types"
)

// replyStyle infers tone, length, emoji use and formality from operator
// responses. With no responses it returns the neutral default style.
func (a *Analyzer) replyStyle(responses []string) types.ReplyStyle {
	style := types.ReplyStyle{
		Tone:           types.ToneFriendly,
		Length:         types.LengthShort,
		FormalityLevel: types.ClampInt(a.tun.FormalitySeed, 1, 10),
	}
	if len(responses) == 0 {
		return style
	}

	var totalChars, withEmoji, formal, informal int
	for _, resp := range responses {
		totalChars += utf8.RuneCountInString(resp)
		if containsEmoji(resp) {
			withEmoji++
		}
		lower := strings.ToLower(resp)
		tokens := tokenize(resp)
		formal += countMarkers(lower, tokens, a.tun.FormalMarkers)
		informal += countMarkers(lower, tokens, a.tun.InformalMarkers)
	}

	mean := float64(totalChars) / float64(len(responses))
	switch {
	case mean < float64(a.tun.ShortReplyMaxChars):
		style.Length = types.LengthShort
	case mean > float64(a.tun.LongReplyMinChars):
		style.Length = types.LengthLong
	default:
		style.Length = types.LengthMedium
	}

	style.UsesEmoji = float64(withEmoji)/float64(len(responses)) > a.tun.EmojiRatio
	style.FormalityLevel = types.ClampInt(a.tun.FormalitySeed+formal-informal, 1, 10)

	switch {
	case style.FormalityLevel >= a.tun.ProfessionalMinFormality:
		style.Tone = types.ToneProfessional
	case style.FormalityLevel >= a.tun.FriendlyMinFormality:
		style.Tone = types.ToneFriendly
	default:
		style.Tone = types.ToneCasual
	}
	return style
}

// countMarkers counts lexicon hits. Single-word markers match whole tokens
// so "hey" does not fire on "they"; phrases and punctuation match as
// substrings.
func countMarkers(lower string, tokens []string, markers []string) int {
	n := 0
	for _, m := range markers {
		m = strings.ToLower(m)
		if isWord(m) {
			fm := foldAccents(m)
			for _, tok := range tokens {
				if tok == fm {
					n++
				}
			}
			continue
		}
		n += strings.Count(lower, m)
	}
	return n
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// containsEmoji reports whether s has at least one pictographic rune.
func containsEmoji(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0x1F300 && r <= 0x1FAFF: // pictographs, emoticons, transport, supplemental
			return true
		case r >= 0x2600 && r <= 0x27BF: // misc symbols, dingbats
			return true
		case r >= 0x1F000 && r <= 0x1F2FF: // mahjong, cards, enclosed
			return true
		}
	}
	return false
}

// signaturePhrases collects each response's first and last sentence and
// keeps those the operator repeats. Below the responded-record minimum the
// result is empty rather than a guess.
func (a *Analyzer) signaturePhrases(responses []string) []string {
	if len(responses) < a.tun.MinRespondedForPhrases {
		return []string{}
	}

	counts := make(map[string]int)
	for _, resp := range responses {
		sentences := splitSentences(resp)
		if len(sentences) == 0 {
			continue
		}
		candidates := []string{sentences[0]}
		if last := sentences[len(sentences)-1]; len(sentences) > 1 && last != sentences[0] {
			candidates = append(candidates, last)
		}
		for _, c := range candidates {
			if utf8.RuneCountInString(c) < a.tun.MaxPhraseChars {
				counts[c]++
			}
		}
	}

	type phrase struct {
		text  string
		count int
	}
	var ranked []phrase
	for text, n := range counts {
		if n >= a.tun.MinPhraseRepeats {
			ranked = append(ranked, phrase{text, n})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].text < ranked[j].text
	})

	out := make([]string, 0, min(len(ranked), a.tun.MaxPhrases))
	for _, p := range ranked {
		if len(out) == a.tun.MaxPhrases {
			break
		}
		out = append(out, p.text)
	}
	return out
}

// splitSentences splits on terminal punctuation and trims each piece.
// Terminators are kept so "Thanks!" and "Thanks." stay distinct phrases.
func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// Keep runs like "!!" or "..." together.
			if i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				continue
			}
			flush()
		}
	}
	flush()
	return out
}
