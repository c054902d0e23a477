package utils

import "strings"

const portugueseMarker = "PT ||"

// Language markers that end a Portuguese segment
var segmentStops = []string{"EN ||", "ES ||"}

// ExtractPortuguese returns the Portuguese segment of a multilingual portal
// description. Descriptions look like "EN || ... PT || ... ES || ...".
// Text without a PT marker is returned trimmed with line breaks flattened.
func ExtractPortuguese(text string) string {
	if text == "" {
		return ""
	}

	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	text = strings.TrimSpace(text)

	pos := strings.Index(text, portugueseMarker)
	if pos == -1 {
		return text
	}

	rest := text[pos+len(portugueseMarker):]
	end := len(rest)
	for _, stop := range segmentStops {
		if i := strings.Index(rest, stop); i != -1 && i < end {
			end = i
		}
	}

	return strings.TrimSpace(strings.ReplaceAll(rest[:end], "*", ""))
}
