package emailutil

import "strings"

// Normalize lowercases and trims an address so profiles compare equal
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ExtractDomain returns the part after the single @, or ""
func ExtractDomain(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return ""
	}
	return domain
}

// Plausible reports whether email has a local part and a dotted domain.
// It is not an RFC 5322 parser.
func Plausible(email string) bool {
	domain := ExtractDomain(Normalize(email))
	if domain == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	dot := strings.LastIndex(domain, ".")
	return dot > 0 && dot < len(domain)-1
}
