// SchizoChatPlus - Anonymous Chat over a Simulated Onion-Routing Relay
// Copyright 2026 Dion Joshua Lobo (dionjoshualobo)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dionjoshualobo/SchizoChatPlus

package inspector

import (
	"regexp"
	"strings"
)

// Attack signature sets. Compiled once; matching is read-only and safe for
// concurrent use.
var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(SELECT|UPDATE|DELETE|INSERT|DROP|ALTER|CREATE|EXEC)\b`)
	sqlMarkerPattern  = regexp.MustCompile(`'|--|;|/\*|\*/|(?i)xp_`)

	xssScriptPattern  = regexp.MustCompile(`(?is)<script.*?>.*?</script>`)
	xssSchemePattern  = regexp.MustCompile(`(?i)javascript:`)
	xssHandlerPattern = regexp.MustCompile(`(?i)\bon(error|load)\s*=`)

	nonASCIIPattern = regexp.MustCompile(`[^\x00-\x7F]`)
)

// ContainsSQLInjection reports whether text matches the SQL-injection
// keyword set or quote/comment/stored-procedure markers.
func ContainsSQLInjection(text string) bool {
	return sqlKeywordPattern.MatchString(text) || sqlMarkerPattern.MatchString(text)
}

// ContainsSQLKeyword reports only the statement-keyword form, the narrower
// check used by rule R003.
func ContainsSQLKeyword(text string) bool {
	return sqlKeywordPattern.MatchString(text)
}

// ContainsXSS reports whether text carries script tags, javascript: URLs,
// or inline event handlers.
func ContainsXSS(text string) bool {
	return xssScriptPattern.MatchString(text) ||
		xssSchemePattern.MatchString(text) ||
		xssHandlerPattern.MatchString(text)
}

// ContainsScriptTag reports only the <script> form of XSS, the narrower
// check used by rule R005.
func ContainsScriptTag(text string) bool {
	return xssScriptPattern.MatchString(text)
}

// ContainsNullByte reports whether text embeds a NUL byte.
func ContainsNullByte(text string) bool {
	return strings.ContainsRune(text, 0)
}

// ContainsNonASCII reports whether text carries bytes outside the ASCII
// range.
func ContainsNonASCII(text string) bool {
	return nonASCIIPattern.MatchString(text)
}
