package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainText = bluemonday.StrictPolicy()

// SanitizePlain strips all markup from operator-entered labels such as reward names.
func SanitizePlain(input string) string {
	return strings.TrimSpace(plainText.Sanitize(input))
}
