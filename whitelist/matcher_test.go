package whitelist_test

import (
	"sync"
	"testing"

	"github.com/coreybb/signet/whitelist"
)

func companyEntries() []whitelist.Entry {
	return []whitelist.Entry{
		whitelist.Pattern("*@ibm.com"),
		whitelist.Pattern("info@*.ibm.co.uk"),
		whitelist.Literal("some@other.email"),
	}
}

func TestIsAuthorizedCompanyList(t *testing.T) {
	cases := []struct {
		email string
		want  bool
	}{
		{"test@ibm.com", true},
		{"test@ibm.ca", false},
		{"info@test.ibm.co.uk", true},
		{"some@other.email", true},
		{"some@other.email.com", false},
		{"info@.ibm.co.uk", true},
		{"sales@test.ibm.co.uk", false},
		{"TEST@IBM.COM", false},
		{"test@ibm.com.evil", false},
		{"@ibm.com", true},
	}

	entries := companyEntries()
	for _, tc := range cases {
		t.Run(tc.email, func(t *testing.T) {
			if got := whitelist.IsAuthorized([]string{tc.email}, entries); got != tc.want {
				t.Errorf("IsAuthorized(%q) = %v, want %v", tc.email, got, tc.want)
			}
		})
	}
}

func TestIsAuthorizedEmptyInputs(t *testing.T) {
	if whitelist.IsAuthorized([]string{"a@b.c"}, nil) {
		t.Error("expected false for empty entries")
	}
	if whitelist.IsAuthorized(nil, companyEntries()) {
		t.Error("expected false for empty emails")
	}
	if whitelist.IsAuthorized(nil, nil) {
		t.Error("expected false for empty emails and entries")
	}
}

func TestIsAuthorizedLiteralIsExact(t *testing.T) {
	entries := []whitelist.Entry{whitelist.Literal("some@other.email")}

	if !whitelist.IsAuthorized([]string{"some@other.email"}, entries) {
		t.Error("expected exact literal to match")
	}
	for _, email := range []string{"Some@other.email", " some@other.email", "some@other.email ", "some@other.emai"} {
		if whitelist.IsAuthorized([]string{email}, entries) {
			t.Errorf("expected %q not to match literal", email)
		}
	}
}

func TestLiteralIsNotAGlob(t *testing.T) {
	entries := []whitelist.Entry{whitelist.Literal("*@ibm.com")}

	if whitelist.IsAuthorized([]string{"test@ibm.com"}, entries) {
		t.Error("literal entry must not expand '*'")
	}
	if !whitelist.IsAuthorized([]string{"*@ibm.com"}, entries) {
		t.Error("literal entry should match its own text")
	}
}

func TestAnyEmailMatches(t *testing.T) {
	emails := []string{"someone@gmail.com", "dev@example.org", "jane@ibm.com"}
	if !whitelist.IsAuthorized(emails, companyEntries()) {
		t.Error("expected one matching address to authorize the set")
	}
	if whitelist.IsAuthorized(emails[:2], companyEntries()) {
		t.Error("expected no match without the ibm address")
	}
}

func TestPatternSemantics(t *testing.T) {
	cases := []struct {
		name    string
		pattern string
		email   string
		want    bool
	}{
		{"star crosses at sign", "j*m", "jane@ibm.com", true},
		{"star alone matches anything", "*", "anyone@anywhere", true},
		{"star alone matches empty", "*", "", true},
		{"double star", "**@ibm.com", "x@ibm.com", true},
		{"middle parts in order", "a*b*c", "a-c-b-c", true},
		{"middle parts out of order", "a*b*c", "a-c-c", false},
		{"prefix and suffix overlap", "ab*ba", "aba", false},
		{"prefix and suffix touch", "ab*ba", "abba", true},
		{"question mark is literal", "?@ibm.com", "x@ibm.com", false},
		{"question mark matches itself", "?@ibm.com", "?@ibm.com", true},
		{"brackets are literal", "[a-z]*@ibm.com", "a@ibm.com", false},
		{"brackets match themselves", "[a-z]*@ibm.com", "[a-z]x@ibm.com", true},
		{"backslash is literal", `\*@ibm.com`, "x@ibm.com", false},
		{"backslash then star", `\*@ibm.com`, `\x@ibm.com`, true},
		{"dot is literal", "*@ibm.com", "x@ibmxcom", false},
		{"case sensitive", "*@IBM.com", "x@ibm.com", false},
		{"anchored start", "ibm.com", "x@ibm.com", false},
		{"pattern without star", "x@ibm.com", "x@ibm.com", true},
		{"empty pattern only matches empty", "", "", true},
		{"empty pattern does not match address", "", "x@ibm.com", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := whitelist.Compile([]whitelist.Entry{whitelist.Pattern(tc.pattern)})
			if got := m.Match(tc.email); got != tc.want {
				t.Errorf("Pattern(%q).Match(%q) = %v, want %v", tc.pattern, tc.email, got, tc.want)
			}
		})
	}
}

func TestUnknownKindIsIgnored(t *testing.T) {
	entries := []whitelist.Entry{{Kind: "regex", Value: ".*"}}
	m := whitelist.Compile(entries)
	if !m.Empty() {
		t.Error("expected unknown kinds to be dropped")
	}
	if whitelist.IsAuthorized([]string{"a@b.c"}, entries) {
		t.Error("expected unknown kind never to authorize")
	}
}

func TestMatcherIsIdempotentAndConcurrent(t *testing.T) {
	m := whitelist.Compile(companyEntries())
	emails := []string{"test@ibm.ca", "info@test.ibm.co.uk"}

	first := m.Authorized(emails)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if m.Authorized(emails) != first {
					t.Error("matcher result changed between calls")
					return
				}
			}
		}()
	}
	wg.Wait()
}
