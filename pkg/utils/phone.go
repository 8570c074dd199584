package utils

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhone reduces a phone number to digits and rewrites the local
// leading zero to the 62 country prefix. Idempotent.
func NormalizePhone(phone string) string {
	digits := nonDigits.ReplaceAllString(phone, "")
	if strings.HasPrefix(digits, "0") {
		digits = "62" + digits[1:]
	}
	return digits
}

var templateVar = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// RenderTemplate substitutes {{var}} placeholders. Unknown variables are
// replaced with an empty string; a template without placeholders passes
// through untouched.
func RenderTemplate(content string, vars map[string]string) string {
	return templateVar.ReplaceAllStringFunc(content, func(m string) string {
		key := templateVar.FindStringSubmatch(m)[1]
		return vars[key]
	})
}
