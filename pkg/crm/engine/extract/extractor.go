// Package extract pulls structured identifiers (emails and phone numbers) out of free text.
package extract

import (
	"regexp"
	"strings"

	"github.com/tigerroll/crmimport/pkg/crm/core/domain/model"
)

var (
	emailPattern = regexp.MustCompile(`\b[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}\b`)
	// International numbers: "+" or "00", country code, then digit groups with optional separators.
	phonePattern = regexp.MustCompile(`(?:\+|00)\d{1,4}[\s.-]?\d{1,14}(?:[\s.-]?\d{1,13})?`)
)

// Extract returns every email (lowercased) and phone-like substring found in text,
// deduplicated and in first-occurrence order. Text without matches yields empty slices.
func Extract(text string) model.Identifiers {
	ids := model.Identifiers{Emails: []string{}, Phones: []string{}}
	appendIdentifiers(&ids, text, map[string]struct{}{}, map[string]struct{}{})
	return ids
}

// ExtractRecord scans the given fields of r in order and returns the combined identifiers.
// Matches from earlier fields come first, so the first field is authoritative.
func ExtractRecord(r *model.Record, fields ...string) model.Identifiers {
	ids := model.Identifiers{Emails: []string{}, Phones: []string{}}
	seenEmails, seenPhones := map[string]struct{}{}, map[string]struct{}{}
	for _, f := range fields {
		appendIdentifiers(&ids, r.Fields[f], seenEmails, seenPhones)
	}
	return ids
}

// Enrich runs ExtractRecord over every record and stores the result on it.
// It returns the number of records in which at least one email was found.
func Enrich(records []*model.Record, fields ...string) int {
	withEmail := 0
	for _, r := range records {
		ids := ExtractRecord(r, fields...)
		r.Identifiers = &ids
		if len(ids.Emails) > 0 {
			withEmail++
		}
	}
	return withEmail
}

func appendIdentifiers(ids *model.Identifiers, text string, seenEmails, seenPhones map[string]struct{}) {
	if strings.TrimSpace(text) == "" {
		return
	}
	for _, m := range emailPattern.FindAllString(text, -1) {
		email := strings.ToLower(m)
		if _, dup := seenEmails[email]; dup {
			continue
		}
		seenEmails[email] = struct{}{}
		ids.Emails = append(ids.Emails, email)
	}
	for _, m := range phonePattern.FindAllString(text, -1) {
		phone := strings.TrimRight(m, " .-")
		if _, dup := seenPhones[phone]; dup {
			continue
		}
		seenPhones[phone] = struct{}{}
		ids.Phones = append(ids.Phones, phone)
	}
}
