package contact

import (
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizePhone_StripsFormatting(t *testing.T) {
	cases := map[string]string{
		"+33 6 12 34 56 78": "+33612345678",
		"06-12-34-56-78":    "0612345678",
		"0033612345678":     "+33612345678",
		"(212) 555-0147":    "2125550147",
		"+1.212.555.0147":   "+12125550147",
		"":                  "",
	}
	for input, want := range cases {
		if got := NormalizePhone(input); got != want {
			t.Errorf("NormalizePhone(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNormalizePhone_Idempotent(t *testing.T) {
	inputs := []string{"+33 6 12 34 56 78", "0033612345678", "abc123", "+", "00"}
	for _, input := range inputs {
		once := NormalizePhone(input)
		twice := NormalizePhone(once)
		if once != twice {
			t.Errorf("NormalizePhone not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}

func TestNormalizePhone_InteriorPlusDropped(t *testing.T) {
	if got := NormalizePhone("33+612345678"); got != "33612345678" {
		t.Errorf("interior + should be dropped, got %q", got)
	}
}

func TestExtractPhone(t *testing.T) {
	if got := ExtractPhone("33612345678@s.whatsapp.net"); got != "33612345678" {
		t.Errorf("ExtractPhone = %q", got)
	}
	if got := ExtractPhone("123456789-987654@g.us"); got != "123456789987654" {
		t.Errorf("ExtractPhone group = %q", got)
	}
	if got := ExtractPhone(""); got != "" {
		t.Errorf("ExtractPhone empty = %q", got)
	}
}

func TestParseContactList(t *testing.T) {
	got := ParseContactList(" +33 6 12 34 56 78 , 0041791234567,, ")
	// 00-prefixed entries normalize to + like any other number.
	want := []string{"+33612345678", "+41791234567"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseContactList_Empty(t *testing.T) {
	if got := ParseContactList("   "); got != nil {
		t.Errorf("expected nil for blank input, got %v", got)
	}
}

func TestIsAllowed_OpenPolicy(t *testing.T) {
	f := NewFilter(NewPolicy(nil, nil), testLogger())
	if !f.IsAllowed("33612345678@s.whatsapp.net", false) {
		t.Error("empty policy should accept everyone")
	}
}

func TestIsAllowed_DenyWinsOverAllow(t *testing.T) {
	policy := NewPolicy([]string{"33612345678"}, []string{"33612345678"})
	f := NewFilter(policy, testLogger())
	if f.IsAllowed("33612345678@s.whatsapp.net", false) {
		t.Error("deny must take precedence over allow")
	}
}

func TestIsAllowed_AllowListExcludesOthers(t *testing.T) {
	policy := NewPolicy([]string{"33612345678"}, nil)
	f := NewFilter(policy, testLogger())
	if !f.IsAllowed("33612345678@s.whatsapp.net", false) {
		t.Error("listed contact should pass")
	}
	if f.IsAllowed("4915112345678@s.whatsapp.net", false) {
		t.Error("unlisted contact should be rejected")
	}
}

func TestIsAllowed_SubstringBothDirections(t *testing.T) {
	// Allow entry without country code still matches the full JID number.
	policy := NewPolicy([]string{"612345678"}, nil)
	f := NewFilter(policy, testLogger())
	if !f.IsAllowed("33612345678@s.whatsapp.net", false) {
		t.Error("entry contained in sender number should match")
	}

	// Allow entry with country code matches a sender without one.
	policy = NewPolicy([]string{"33612345678"}, nil)
	f = NewFilter(policy, testLogger())
	if !f.IsAllowed("612345678@s.whatsapp.net", false) {
		t.Error("sender number contained in entry should match")
	}
}

func TestIsAllowed_DenySubstring(t *testing.T) {
	policy := NewPolicy(nil, []string{"612345678"})
	f := NewFilter(policy, testLogger())
	if f.IsAllowed("33612345678@s.whatsapp.net", true) {
		t.Error("denied substring should reject")
	}
	if !f.IsAllowed("33699999999@s.whatsapp.net", true) {
		t.Error("non-matching sender should pass")
	}
}
