// Copyright (c) 2024 OData MCP Contributors
// SPDX-License-Identifier: MIT

// Package debug provides trace logging and credential masking for
// diagnostic output. Anything that might end up in a trace file or on
// the console goes through the maskers first.
package debug

import (
	"net/url"
	"strings"
)

// sensitiveKeys are substrings that mark a parameter or header name as
// carrying a credential.
var sensitiveKeys = []string{
	"password", "passwd", "pwd", "secret",
	"token", "api_key", "apikey", "api-key",
	"authorization", "auth", "credential",
	"x-csrf-token", "csrf",
}

// MaskPassword replaces a non-empty password with "***".
func MaskPassword(password string) string {
	if len(password) == 0 {
		return ""
	}
	return "***"
}

// MaskToken keeps the last 8 characters of a token so that two tokens
// can still be told apart in a trace. Short tokens are fully masked.
func MaskToken(token string) string {
	if len(token) == 0 {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return "****" + token[len(token)-8:]
}

// MaskValue masks a value keeping its last showLastChars characters.
func MaskValue(value string, showLastChars int) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= showLastChars {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-showLastChars) + value[len(value)-showLastChars:]
}

// MaskURL strips credentials from a URL: the userinfo password and any
// query parameter whose name looks sensitive. Unparseable input is
// returned unchanged.
func MaskURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.User != nil {
		if _, hasPass := parsed.User.Password(); hasPass {
			parsed.User = url.UserPassword(parsed.User.Username(), "***")
		}
	}

	query := parsed.Query()
	modified := false
	for key := range query {
		if IsSensitiveKey(key) {
			query.Set(key, "***")
			modified = true
		}
	}
	if modified {
		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// MaskHeader masks sensitive HTTP header values. Authorization headers
// keep the scheme (Basic, Bearer) with the credential masked.
func MaskHeader(name, value string) string {
	if len(value) == 0 {
		return ""
	}

	nameLower := strings.ToLower(name)
	if nameLower == "authorization" {
		parts := strings.SplitN(value, " ", 2)
		if len(parts) == 2 {
			return parts[0] + " " + MaskToken(parts[1])
		}
		return MaskToken(value)
	}

	if IsSensitiveKey(nameLower) {
		return MaskToken(value)
	}
	return value
}

// IsSensitiveKey reports whether a key name indicates credential data.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}
