package lang

import (
	"strconv"
	"strings"
)

// literalValue decodes the source text of a literal node into the value it
// denotes. null decodes to the empty string.
func literalValue(typ, text string) string {
	switch typ {
	case "null_literal":
		return ""
	case "verbatim_string_literal":
		s := trimQuotes(strings.TrimPrefix(text, "@"), '"')
		return strings.ReplaceAll(s, `""`, `"`)
	case "raw_string_literal", "text_block":
		return strings.TrimSpace(strings.Trim(text, `"`))
	case "string_literal":
		if v, err := strconv.Unquote(text); err == nil {
			return v
		}
		return trimQuotes(text, '"')
	case "character_literal":
		if v, err := strconv.Unquote(text); err == nil {
			return v
		}
		return trimQuotes(text, '\'')
	default:
		return text
	}
}

func trimQuotes(s string, q byte) string {
	if len(s) >= 2 && s[0] == q && s[len(s)-1] == q {
		return s[1 : len(s)-1]
	}
	return s
}
