package output

import (
	"fmt"
	"strings"
)

// Indent prefixes every line, a trailing newline gets no indentation.
func Indent(spaces int, multilineText string) string {
	indent := strings.Repeat(" ", spaces)
	text, trailing := strings.CutSuffix(multilineText, "\n")
	indented := indent + strings.ReplaceAll(text, "\n", "\n"+indent)
	if trailing {
		indented += "\n"
	}
	return indented
}

func Plural(count int, singular string, plural string) string {
	if count == 1 {
		return singular
	}
	return plural
}

// Ratio renders "kept/total" for selection summaries.
func Ratio(part int, total int) string {
	return fmt.Sprintf("%d/%d", part, total)
}

// Measurement renders an optional value, absent values are shown as "n/a".
func Measurement(value *float64, format string) string {
	if value == nil {
		return "n/a"
	}
	return fmt.Sprintf(format, *value)
}
