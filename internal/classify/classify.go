// Package classify categorizes free-form user input so the request router can
// decide which backend operation a message should trigger.
package classify

import (
	"regexp"
	"strconv"
)

// Kind labels the outcome of classifying one input.
type Kind string

const (
	// KindURL means the text contains an issue link.
	KindURL Kind = "url"
	// KindIndex means the text contains a bare numeric issue reference.
	KindIndex Kind = "index"
	// KindNone means neither pattern matched.
	KindNone Kind = "none"
)

// Result is the classification of a single input. URL is set only for
// KindURL, Index only for KindIndex.
type Result struct {
	Kind  Kind
	URL   string
	Index int
}

var (
	urlPattern = regexp.MustCompile(`https?://\S+`)
	// A digit run, optionally preceded by the word "issue" and whitespace.
	indexPattern = regexp.MustCompile(`(?i)(?:issue\s*)?(\d+)`)
)

// Classify maps raw user text to exactly one Result. URL detection takes
// strict precedence over index detection, and only the first URL in the text
// is considered. A single trailing ')', '.' or ',' is stripped from the
// matched URL; users pasting links out of prose often drag punctuation along.
func Classify(text string) Result {
	if m := urlPattern.FindString(text); m != "" {
		return Result{Kind: KindURL, URL: trimTrailingPunct(m)}
	}

	if m := indexPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			return Result{Kind: KindIndex, Index: n}
		}
	}

	return Result{Kind: KindNone}
}

func trimTrailingPunct(s string) string {
	if len(s) == 0 {
		return s
	}
	switch s[len(s)-1] {
	case ')', '.', ',':
		return s[:len(s)-1]
	}
	return s
}
