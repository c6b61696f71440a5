// Package contact decides which senders the bridge may process. The policy
// is built once at startup from configuration and never mutated.
package contact

import (
	"log/slog"
	"strings"
)

// Policy holds the normalized allow/deny phone number lists. An empty
// policy accepts everyone; the deny list always wins over the allow list.
type Policy struct {
	Allow []string
	Deny  []string
}

// NewPolicy normalizes both lists and drops empty entries.
func NewPolicy(allow, deny []string) Policy {
	return Policy{
		Allow: normalizeList(allow),
		Deny:  normalizeList(deny),
	}
}

func normalizeList(numbers []string) []string {
	out := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if norm := NormalizePhone(n); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}

// Filter applies a Policy to sender identifiers.
type Filter struct {
	policy Policy
	logger *slog.Logger
}

func NewFilter(policy Policy, logger *slog.Logger) *Filter {
	return &Filter{policy: policy, logger: logger}
}

// IsAllowed reports whether the sender identified by jid may be processed.
// Matching tolerates country-code prefix mismatches: an entry matches when
// either side contains the other.
func (f *Filter) IsAllowed(jid string, isGroup bool) bool {
	phone := ExtractPhone(jid)

	if len(f.policy.Deny) > 0 && matchesAny(phone, f.policy.Deny) {
		f.logger.Info("contact excluded", "phone", phone, "group", isGroup)
		return false
	}
	if len(f.policy.Allow) > 0 && !matchesAny(phone, f.policy.Allow) {
		f.logger.Info("contact not authorized", "phone", phone, "group", isGroup)
		return false
	}

	f.logger.Debug("contact authorized", "phone", phone)
	return true
}

func matchesAny(phone string, list []string) bool {
	for _, entry := range list {
		if strings.Contains(phone, entry) || strings.Contains(entry, phone) {
			return true
		}
	}
	return false
}

// NormalizePhone strips every character that is not a digit, keeping a
// leading "+" and converting a leading "00" to "+". Idempotent.
func NormalizePhone(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	n := b.String()
	if strings.HasPrefix(n, "00") {
		n = "+" + n[2:]
	}
	return n
}

// ExtractPhone returns the normalized phone number from a protocol JID
// such as "33612345678@s.whatsapp.net".
func ExtractPhone(jid string) string {
	if jid == "" {
		return ""
	}
	user, _, _ := strings.Cut(jid, "@")
	return NormalizePhone(user)
}

// ParseContactList splits a comma-separated list of phone numbers and
// normalizes each entry. Blank entries are dropped.
func ParseContactList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if norm := NormalizePhone(strings.TrimSpace(part)); norm != "" {
			out = append(out, norm)
		}
	}
	return out
}
