// Package textutil provides text cleanup helpers shared by the suggestion
// pipeline and the article content client.
package textutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

var (
	urlPattern        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// StripHTML removes markup from a fragment and returns the concatenated text
// content. Malformed markup is tolerated; the tokenizer consumes whatever it
// can and the remaining text is returned as-is.
func StripHTML(fragment string) string {
	if !strings.ContainsRune(fragment, '<') {
		return fragment
	}

	var sb strings.Builder
	tokenizer := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt == html.TextToken {
			sb.Write(tokenizer.Text())
		}
	}
	return strings.TrimSpace(sb.String())
}

// Clean prepares raw article text for embedding: markup and URLs are removed,
// punctuation is replaced with spaces, and runs of whitespace collapse to a
// single space.
func Clean(text string) string {
	text = StripHTML(text)
	text = urlPattern.ReplaceAllString(text, " ")
	text = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return ' '
	}, text)
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))
}

var arabicFolds = strings.NewReplacer(
	"أ", "ا", // alef with hamza above
	"إ", "ا", // alef with hamza below
	"آ", "ا", // alef with madda
	"ة", "ه", // teh marbuta -> heh
	"ى", "ي", // alef maksura -> yeh
	"ؤ", "و", // waw with hamza -> waw
	"ئ", "ي", // yeh with hamza -> yeh
)

func isArabicDiacritic(r rune) bool {
	switch {
	case r >= 0x0610 && r <= 0x061A:
		return true
	case r >= 0x064B && r <= 0x065F:
		return true
	case r >= 0x06D6 && r <= 0x06ED:
		return true
	}
	return false
}

// NormalizeArabic strips diacritics and folds common letter variants so that
// spelling variations in bilingual newsroom copy embed consistently.
func NormalizeArabic(text string) string {
	if text == "" {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if isArabicDiacritic(r) {
			continue
		}
		sb.WriteRune(r)
	}
	return arabicFolds.Replace(sb.String())
}

// Truncate limits text to at most n runes. Article bodies can be very long
// and only the head carries tagging signal.
func Truncate(text string, n int) string {
	if n <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
