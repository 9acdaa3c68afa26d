package apperrors

import "regexp"

// GenericSensitiveMessage replaces any error message that mentions
// credential material. Redaction is all-or-nothing: partial redaction can
// still leak structure, so the whole message is dropped.
const GenericSensitiveMessage = "An error occurred while processing sensitive information"

var sensitivePattern = regexp.MustCompile(`(?i)(password|token|secret|key|authorization)`)

// Sanitize returns the message unchanged unless it contains a sensitive term,
// in which case the entire message is replaced with the generic notice.
func Sanitize(message string) string {
	if sensitivePattern.MatchString(message) {
		return GenericSensitiveMessage
	}
	return message
}
