// Package security masks credentials before they reach logs or tool output.
package security

import (
	"net/url"
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

// MaskSecret masks a secret, showing only the first 4 and last 4 characters
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

// sensitiveParams are query parameters whose values are masked by MaskURL
var sensitiveParams = map[string]bool{
	"api_key": true, "apikey": true, "api-key": true, // pragma: allowlist secret
	"token": true, "access_token": true, "auth_token": true,
	"password": true, "passwd": true, "pwd": true,
	"secret": true, "key": true, "sig": true, "signature": true,
}

// MaskURL hides the password of the userinfo, sensitive query values and,
// for chat-style webhook URLs, the token path segments. Unparseable input is
// fully redacted.
func MaskURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return redacted
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		for name := range q {
			if sensitiveParams[strings.ToLower(name)] {
				q.Set(name, "xxxxx")
			}
		}
		u.RawQuery = q.Encode()
	}

	// Slack and similar services carry the credential in the path.
	if strings.Contains(u.Path, "/services/") || strings.Contains(u.Path, "/webhooks/") {
		segments := strings.Split(u.Path, "/")
		for i, s := range segments {
			if len(s) >= 8 && s != "services" && s != "webhooks" {
				segments[i] = "xxxxx"
			}
		}
		u.Path = strings.Join(segments, "/")
	}

	return u.String()
}

// SensitivePatterns contains regex patterns for sensitive data
var SensitivePatterns = []*regexp.Regexp{
	// Bearer tokens
	regexp.MustCompile(`(?i)(bearer\s+)([a-zA-Z0-9_.-]{20,})`),
	// Passwords in URLs or config
	regexp.MustCompile(`(?i)((?:password|passwd|pwd)[=:]["']?)([^"'\s&]+)`),
	// Secrets
	regexp.MustCompile(`(?i)((?:secret|token|api[_-]?key)[=:]["']?)([a-zA-Z0-9_-]{8,})`),
	// Userinfo in URLs
	regexp.MustCompile(`(?i)([a-z][a-z0-9+.-]*://[^:/\s@]+:)([^@\s]+)@`),
}

// MaskSensitiveData masks sensitive data in a string using pattern matching
func MaskSensitiveData(data string) string {
	result := data
	for _, pattern := range SensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			parts := pattern.FindStringSubmatch(match)
			if len(parts) >= 3 {
				suffix := ""
				if strings.HasSuffix(match, "@") {
					suffix = "@"
				}
				return parts[1] + redacted + suffix
			}
			return redacted
		})
	}
	return result
}

// SanitizeError removes sensitive data from error messages
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitiveData(err.Error())
}
