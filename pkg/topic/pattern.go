package topic

import (
	"fmt"
	"strings"
)

// Pattern is a topic shape made of literal segments and named captures.
//
// A capture is written {name} and matches any non-empty segment. Patterns match
// a prefix of the topic path: segments after the last pattern segment are kept
// as the match remainder.
//
//	p := topic.MustCompile("devices/{device}/messages/devicebound")
//	m, ok := p.Match("devices/d1/messages/devicebound/%24.mid=1")
//	// m.Captures["device"] == "d1", m.Rest == "%24.mid=1"
type Pattern struct {
	source   string
	segments []string
}

// Match is the result of matching a topic path against a Pattern.
// Captures hold the raw, still-encoded segment text.
type Match struct {
	Captures map[string]string
	Rest     string
}

// Compile parses a pattern string.
func Compile(pattern string) (Pattern, error) {
	if pattern == "" {
		return Pattern{}, fmt.Errorf("topic: empty pattern")
	}
	segs := Segments(pattern)
	for _, s := range segs {
		if s == "" {
			return Pattern{}, fmt.Errorf("topic: empty segment in pattern %q", pattern)
		}
		if isCapture(s) && len(s) == 2 {
			return Pattern{}, fmt.Errorf("topic: unnamed capture in pattern %q", pattern)
		}
	}
	return Pattern{source: pattern, segments: segs}, nil
}

// MustCompile is Compile for package-level patterns; it panics on a bad pattern.
func MustCompile(pattern string) Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the pattern source.
func (p Pattern) String() string {
	return p.source
}

// Match reports whether path starts with the pattern's segments.
func (p Pattern) Match(path string) (Match, bool) {
	segs := Segments(path)
	if len(p.segments) == 0 || len(segs) < len(p.segments) {
		return Match{}, false
	}

	m := Match{Captures: make(map[string]string)}
	for i, want := range p.segments {
		got := segs[i]
		if isCapture(want) {
			if got == "" {
				return Match{}, false
			}
			m.Captures[want[1:len(want)-1]] = got
			continue
		}
		if got != want {
			return Match{}, false
		}
	}

	m.Rest = strings.Join(segs[len(p.segments):], Separator)
	return m, true
}

// Matches is Match without the result.
func (p Pattern) Matches(path string) bool {
	_, ok := p.Match(path)
	return ok
}

// Capture returns the decoded value of a named capture.
func (m Match) Capture(name string) (string, error) {
	raw, ok := m.Captures[name]
	if !ok {
		return "", fmt.Errorf("%w: no capture %q", ErrShapeMismatch, name)
	}
	return Decode(raw)
}

func isCapture(seg string) bool {
	return strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}")
}
