package specialist

import (
	"hash/fnv"
	"regexp"
	"strings"
	"unicode/utf8"
)

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// listItems extracts bullet lines, or the separated list after the first colon.
func listItems(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if !bulletPrefix.MatchString(line) {
			continue
		}
		if item := cleanItem(bulletPrefix.ReplaceAllString(line, "")); item != "" {
			out = append(out, item)
		}
	}
	if len(out) > 0 {
		return out
	}
	idx := strings.Index(text, ":")
	if idx < 0 {
		return nil
	}
	return splitList(text[idx+1:])
}

// splitList splits on commas, semicolons, newlines and " and ".
func splitList(s string) []string {
	var out []string
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	for _, part := range parts {
		for _, p := range strings.Split(part, " and ") {
			if item := cleanItem(p); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func cleanItem(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), ".!?\"'"))
}

var connectives = map[string]bool{
	"on": true, "about": true, "into": true, "the": true, "a": true, "an": true,
	"my": true, "this": true, "for": true, "me": true, "up": true, "out": true,
	"please": true, "some": true, "to": true,
}

// topicAfter returns the text after the first matching cue with leading
// connectives removed. ok is false when no cue matched.
func topicAfter(text string, cues []string) (topic string, ok bool) {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		text = lower
	}
	for _, cue := range cues {
		if i := strings.Index(lower, cue); i >= 0 {
			return trimConnectives(text[i+len(cue):]), true
		}
	}
	return "", false
}

func trimConnectives(s string) string {
	words := strings.Fields(s)
	for len(words) > 0 && connectives[strings.ToLower(strings.Trim(words[0], ":,"))] {
		words = words[1:]
	}
	return cleanItem(strings.TrimLeft(strings.Join(words, " "), ":, "))
}

func containsAny(text string, words ...string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// pick selects an option deterministically from seed.
func pick(options []string, seed string) string {
	if len(options) == 0 {
		return ""
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(seed))))
	return options[int(h.Sum32()%uint32(len(options)))]
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
