package service

import "strings"

// NormalizeEmail lowercases and trims an email address. Stored emails are
// always normalized so uniqueness holds case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
