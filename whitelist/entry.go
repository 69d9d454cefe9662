package whitelist

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind tags how an Entry is compared against an email address.
type Kind string

const (
	KindLiteral Kind = "literal"
	KindPattern Kind = "pattern"
)

// Entry is a single approval-list rule. Literal entries match one exact
// address; Pattern entries are globs over the whole address where `*`
// stands for any run of characters.
type Entry struct {
	Kind  Kind   `json:"kind"`
	Value string `json:"value"`
}

// Literal returns an entry that matches exactly the given address.
func Literal(email string) Entry {
	return Entry{Kind: KindLiteral, Value: email}
}

// Pattern returns a glob entry, e.g. "*@example.com".
func Pattern(glob string) Entry {
	return Entry{Kind: KindPattern, Value: glob}
}

// ParseEntry builds an entry from an untagged string. Only used when
// importing plain lists; anything containing '*' becomes a pattern.
func ParseEntry(s string) Entry {
	if strings.Contains(s, "*") {
		return Pattern(s)
	}
	return Literal(s)
}

// Validate reports whether the entry carries a known kind and a value.
func (e Entry) Validate() error {
	switch e.Kind {
	case KindLiteral, KindPattern:
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
	if e.Value == "" {
		return fmt.Errorf("entry value cannot be empty")
	}
	return nil
}

func (e Entry) String() string {
	return string(e.Kind) + ":" + e.Value
}

// Entries is a set of rules as persisted in a JSONB column.
type Entries []Entry

// Value and Scan let Entries be used directly as a database/sql argument
// and scan destination for a JSONB column.
func (es Entries) Value() (driver.Value, error) {
	if es == nil {
		es = Entries{}
	}
	b, err := json.Marshal(es)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal whitelist entries: %w", err)
	}
	return string(b), nil
}

func (es *Entries) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*es = Entries{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into whitelist entries", src)
	}
	var out Entries
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to unmarshal whitelist entries: %w", err)
	}
	if out == nil {
		out = Entries{}
	}
	*es = out
	return nil
}

// Contains reports whether an identical entry is already present.
func (es Entries) Contains(e Entry) bool {
	for _, existing := range es {
		if existing == e {
			return true
		}
	}
	return false
}

// Without returns a copy of es with every occurrence of e removed.
func (es Entries) Without(e Entry) Entries {
	out := make(Entries, 0, len(es))
	for _, existing := range es {
		if existing != e {
			out = append(out, existing)
		}
	}
	return out
}
