package transcriber

import (
	"regexp"
	"strings"
)

// whisper.cpp prints "[00:00:00.000 --> 00:00:03.280]" and some builds use a
// colon before the milliseconds.
var timestampRe = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}[:.]\d{3}\s*-->\s*\d{2}:\d{2}:\d{2}[:.]\d{3}\]\s*`)

// NormalizeWhisperCpp strips segment timestamps and joins the remaining lines
// with single spaces.
func NormalizeWhisperCpp(raw string) string {
	var parts []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(timestampRe.ReplaceAllString(line, ""))
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " ")
}

// NormalizeWhisper trims the plain-text output of the OpenAI whisper CLI.
func NormalizeWhisper(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}
