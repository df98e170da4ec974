package policy

import "regexp"

var (
	bearerPattern = regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._\-]{8,}`)
	apiKeyPattern = regexp.MustCompile(`\b(?:sk|fc)-[A-Za-z0-9_\-]{12,}`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// RedactSecrets masks credentials and addresses that upstream providers
// sometimes echo back in error bodies.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	next := bearerPattern.ReplaceAllString(out, "Bearer [REDACTED_TOKEN]")
	changed = changed || next != out
	out = next

	next = apiKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Detail is RedactSecrets for client-facing error text.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	out, _ := RedactSecrets(err.Error())
	return out
}
