package proxy

import (
	"bytes"
	"strings"
)

// credentialPatterns are substrings that suggest a page embeds secrets.
var credentialPatterns = []string{
	"token=",
	"password=",
	"bearer ",
	"api_key=",
	"secret=",
}

// FlagSensitive scans markup content for credential-shaped substrings and
// returns the matched patterns for downstream sanitization. This is a
// content check for flagging, not a security boundary.
func FlagSensitive(contentType string, body []byte) []string {
	if !isMarkup(contentType) {
		return nil
	}

	lower := bytes.ToLower(body)
	var hits []string
	for _, p := range credentialPatterns {
		if bytes.Contains(lower, []byte(p)) {
			hits = append(hits, p)
		}
	}
	return hits
}

func isMarkup(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "application/xhtml") ||
		strings.Contains(ct, "text/xml") ||
		strings.Contains(ct, "application/xml")
}
