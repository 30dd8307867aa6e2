package conv

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true, '．': true, '…': true,
}

// SplitSentences splits text into sentences, Unicode-aware. Text with no
// terminal punctuation comes back as a single sentence.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var sentences []string
	var current strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		current.WriteRune(r)
		if sentenceEnders[r] {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) || isCJK(runes[i+1]) {
				if s := strings.TrimSpace(current.String()); s != "" {
					sentences = append(sentences, s)
				}
				current.Reset()
			}
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

// LeadingSentences joins sentences from the front of text while the result
// stays within maxChars. When not even the first sentence fits, it returns
// a hard character truncation instead.
func LeadingSentences(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	if len(text) <= maxChars {
		return text
	}

	var out strings.Builder
	for _, s := range SplitSentences(text) {
		add := len(s)
		if out.Len() > 0 {
			add++ // joining space
		}
		if out.Len()+add > maxChars {
			break
		}
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		out.WriteString(s)
	}

	if out.Len() == 0 {
		return truncateBytes(text, maxChars)
	}
	return out.String()
}

// truncateBytes cuts text to at most max bytes without splitting a rune.
func truncateBytes(text string, max int) string {
	if len(text) <= max {
		return text
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
