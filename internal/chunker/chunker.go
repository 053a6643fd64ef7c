// Package chunker splits extracted page text into bounded, overlapping
// passages for embedding. Splitting is deterministic: identical input and
// options always produce the identical passage sequence.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultWindowWords is the default passage size in words.
const DefaultWindowWords = 500

// DefaultOverlapWords is the default overlap between adjacent passages in words.
const DefaultOverlapWords = 50

var sentenceRE = regexp.MustCompile(`(?m)(?U)[^.!?]+[.!?]`)

// Passage is one chunk of source text. Offset is the rune offset of the
// passage start in the input; Index orders passages.
type Passage struct {
	Index  int
	Offset int
	Text   string
}

// Splitter packs sentences into word-bounded windows.
type Splitter struct {
	window  int
	overlap int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithWindow sets the passage size in words.
func WithWindow(words int) Option {
	return func(s *Splitter) {
		if words > 0 {
			s.window = words
		}
	}
}

// WithOverlap sets the overlap between adjacent passages in words.
func WithOverlap(words int) Option {
	return func(s *Splitter) {
		if words >= 0 {
			s.overlap = words
		}
	}
}

// New creates a Splitter with the given options.
func New(opts ...Option) *Splitter {
	s := &Splitter{window: DefaultWindowWords, overlap: DefaultOverlapWords}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.window {
		s.overlap = s.window / 4
	}
	return s
}

// unit is one sentence (or hard-cut fragment of an oversized sentence),
// addressed as a trimmed rune range of the input.
type unit struct {
	start, end int // rune offsets, end exclusive
	words      int
}

// Split chunks text into passages. Sentences accumulate into a window of at
// most the configured word count; a single sentence longer than the window
// is hard-cut at word boundaries. Adjacent passages share whole trailing
// units covering the configured overlap where the window budget allows it.
// Empty or whitespace-only input yields no passages.
func (s *Splitter) Split(text string) []Passage {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	units := s.units(text, runes)
	if len(units) == 0 {
		return nil
	}

	var passages []Passage
	i := 0
	for i < len(units) {
		j := i
		words := 0
		for j < len(units) {
			if j > i && words+units[j].words > s.window {
				break
			}
			words += units[j].words
			j++
		}

		start, end := units[i].start, units[j-1].end
		passages = append(passages, Passage{
			Index:  len(passages),
			Offset: start,
			Text:   string(runes[start:end]),
		})

		if j == len(units) {
			break
		}

		// Back up whole units from the window end until the overlap is
		// covered. Backing up must leave room for the next unit, otherwise
		// the following window would not advance past this one.
		k := j
		overlap := 0
		for k > i+1 && overlap < s.overlap && overlap+units[k-1].words+units[j].words <= s.window {
			k--
			overlap += units[k].words
		}
		i = k
	}
	return passages
}

// units splits text into sentence units, hard-cutting any sentence whose
// word count exceeds the window. Text after the last sentence terminator is
// kept as a final unit.
func (s *Splitter) units(text string, runes []rune) []unit {
	var out []unit
	appendRange := func(startRune, endRune int) {
		u, ok := trimRange(runes, startRune, endRune)
		if !ok {
			return
		}
		if u.words > s.window {
			out = append(out, hardCut(runes, u, s.window)...)
			return
		}
		out = append(out, u)
	}

	byteCursor, runeCursor := 0, 0
	for _, m := range sentenceRE.FindAllStringIndex(text, -1) {
		startRune := runeCursor + utf8.RuneCountInString(text[byteCursor:m[0]])
		endRune := startRune + utf8.RuneCountInString(text[m[0]:m[1]])
		byteCursor, runeCursor = m[1], endRune
		appendRange(startRune, endRune)
	}
	appendRange(runeCursor, len(runes))

	return out
}

// trimRange shrinks [start,end) past surrounding whitespace and counts words.
func trimRange(runes []rune, start, end int) (unit, bool) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start >= end {
		return unit{}, false
	}
	return unit{start: start, end: end, words: len(strings.Fields(string(runes[start:end])))}, true
}

// hardCut splits an oversized unit into word-boundary fragments of at most
// window words each.
func hardCut(runes []rune, u unit, window int) []unit {
	words := fieldRanges(runes, u.start, u.end)
	var out []unit
	for i := 0; i < len(words); i += window {
		j := i + window
		if j > len(words) {
			j = len(words)
		}
		out = append(out, unit{start: words[i][0], end: words[j-1][1], words: j - i})
	}
	return out
}

// fieldRanges returns the rune ranges of whitespace-separated words in
// runes[start:end].
func fieldRanges(runes []rune, start, end int) [][2]int {
	var out [][2]int
	i := start
	for i < end {
		for i < end && unicode.IsSpace(runes[i]) {
			i++
		}
		if i >= end {
			break
		}
		wordStart := i
		for i < end && !unicode.IsSpace(runes[i]) {
			i++
		}
		out = append(out, [2]int{wordStart, i})
	}
	return out
}
