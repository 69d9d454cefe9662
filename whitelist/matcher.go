// Package whitelist decides whether a contributor's email addresses are
// covered by a company's approval list.
//
// Comparison is byte-exact and case-sensitive. In patterns only '*' is
// special: it matches any run of zero or more bytes, including across the
// '@'. Every other byte, '?', '[' and '\' included, matches itself. A
// pattern must match the whole address.
package whitelist

import "strings"

// Matcher is a compiled approval list. It holds no mutable state after
// Compile returns and is safe for concurrent use.
type Matcher struct {
	literals map[string]struct{}
	globs    []glob
}

// Compile prepares entries for repeated matching. Entries of unknown kind
// are ignored.
func Compile(entries []Entry) *Matcher {
	m := &Matcher{literals: make(map[string]struct{}, len(entries))}
	for _, e := range entries {
		switch e.Kind {
		case KindLiteral:
			m.literals[e.Value] = struct{}{}
		case KindPattern:
			if !strings.Contains(e.Value, "*") {
				m.literals[e.Value] = struct{}{}
				continue
			}
			m.globs = append(m.globs, compileGlob(e.Value))
		}
	}
	return m
}

// Empty reports whether the matcher can never authorize anything.
func (m *Matcher) Empty() bool {
	return len(m.literals) == 0 && len(m.globs) == 0
}

// Authorized reports whether any of emails satisfies any compiled entry.
func (m *Matcher) Authorized(emails []string) bool {
	for _, email := range emails {
		if m.Match(email) {
			return true
		}
	}
	return false
}

// Match reports whether a single address satisfies any compiled entry.
func (m *Matcher) Match(email string) bool {
	if _, ok := m.literals[email]; ok {
		return true
	}
	for _, g := range m.globs {
		if g.match(email) {
			return true
		}
	}
	return false
}

// IsAuthorized compiles entries and checks emails against them in one go.
// Callers checking the same list repeatedly should hold on to a Matcher.
func IsAuthorized(emails []string, entries []Entry) bool {
	if len(emails) == 0 || len(entries) == 0 {
		return false
	}
	return Compile(entries).Authorized(emails)
}

// glob is a pattern split on '*'. The first part is an anchored prefix,
// the last an anchored suffix, and the ones in between must appear in
// order without overlapping.
type glob struct {
	parts []string
}

func compileGlob(pattern string) glob {
	return glob{parts: strings.Split(pattern, "*")}
}

func (g glob) match(s string) bool {
	prefix := g.parts[0]
	suffix := g.parts[len(g.parts)-1]
	if len(s) < len(prefix)+len(suffix) {
		return false
	}
	if !strings.HasPrefix(s, prefix) || !strings.HasSuffix(s, suffix) {
		return false
	}

	// With '*' as the only wildcard, leftmost placement of each middle part
	// finds a match whenever one exists.
	rest := s[len(prefix) : len(s)-len(suffix)]
	for _, part := range g.parts[1 : len(g.parts)-1] {
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest = rest[i+len(part):]
	}
	return true
}
