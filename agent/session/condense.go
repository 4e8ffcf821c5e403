package session

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Counter measures text against a context budget.
type Counter interface {
	Count(text string) int
	// Truncate keeps the leading part of text within n units.
	Truncate(text string, n int) string
}

// CharCounter counts runes.
type CharCounter struct{}

// Count implements Counter.
func (CharCounter) Count(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate implements Counter.
func (CharCounter) Truncate(text string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}

// TokenCounter counts tiktoken tokens. The encoding is loaded lazily; if it
// cannot be loaded the counter degrades to rune counting.
type TokenCounter struct {
	encoding string
	logger   *zap.Logger

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a token counter for the named encoding (e.g. cl100k_base).
func NewTokenCounter(encoding string, logger *zap.Logger) *TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenCounter{encoding: encoding, logger: logger.With(zap.String("component", "token_counter"))}
}

func (t *TokenCounter) init() *tiktoken.Tiktoken {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.logger.Warn("tiktoken encoding unavailable, counting runes instead",
				zap.String("encoding", t.encoding), zap.Error(err))
			return
		}
		t.enc = enc
	})
	return t.enc
}

// Count implements Counter.
func (t *TokenCounter) Count(text string) int {
	enc := t.init()
	if enc == nil {
		return CharCounter{}.Count(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// Truncate implements Counter.
func (t *TokenCounter) Truncate(text string, n int) string {
	enc := t.init()
	if enc == nil {
		return CharCounter{}.Truncate(text, n)
	}
	if n <= 0 {
		return ""
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= n {
		return text
	}
	return enc.Decode(tokens[:n])
}

// NewCounter returns the counter for a budget unit ("chars" or "tokens").
func NewCounter(unit, encoding string, logger *zap.Logger) Counter {
	if unit == "tokens" {
		return NewTokenCounter(encoding, logger)
	}
	return CharCounter{}
}

const (
	truncatedMark = "…"
	partSeparator = "\n\n"
)

// CondenseParts fits upstream outputs, ordered oldest first, into budget.
// Newer parts are kept whole while they fit; the first part that does not fit
// is truncated and everything older is dropped. The returned parts plus one
// separator between each pair count within budget.
func CondenseParts(parts []string, budget int, counter Counter) []string {
	if counter == nil {
		counter = CharCounter{}
	}
	if budget <= 0 || len(parts) == 0 {
		return nil
	}

	sepLen := counter.Count(partSeparator)
	remaining := budget
	start := len(parts)
	var head string
	for i := len(parts) - 1; i >= 0; i-- {
		sep := 0
		if start < len(parts) {
			sep = sepLen
		}
		n := counter.Count(parts[i]) + sep
		if n <= remaining {
			remaining -= n
			start = i
			continue
		}
		room := remaining - sep
		markLen := counter.Count(truncatedMark)
		if room > markLen {
			cut := counter.Truncate(parts[i], room-markLen)
			if cut != "" && counter.Count(cut)+markLen <= room {
				head = cut + truncatedMark
			}
		}
		break
	}

	out := make([]string, 0, len(parts)-start+1)
	if head != "" {
		out = append(out, head)
	}
	return append(out, parts[start:]...)
}

// Condense joins CondenseParts with blank lines. With CharCounter the joined
// text never exceeds budget; token counts are budgeted per piece.
func Condense(parts []string, budget int, counter Counter) string {
	return strings.Join(CondenseParts(parts, budget, counter), partSeparator)
}
