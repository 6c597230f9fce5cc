package person

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

func FullName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// FullNameWithMiddle includes the middle name when present.
func FullNameWithMiddle(first string, middle *string, last string) string {
	if middle == nil || strings.TrimSpace(*middle) == "" {
		return FullName(first, last)
	}
	return strings.TrimSpace(first) + " " + strings.TrimSpace(*middle) + " " + strings.TrimSpace(last)
}

func Initials(first, last string) string {
	var b strings.Builder
	for _, part := range []string{first, last} {
		if r, _ := utf8.DecodeRuneInString(strings.TrimSpace(part)); r != utf8.RuneError {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// ParseFullName splits "First Middle Names Last". Two words or fewer yield no
// middle name; a single word is used as both first and last name.
func ParseFullName(name string) (first string, middle *string, last string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", nil, ""
	case 1:
		return parts[0], nil, parts[0]
	case 2:
		return parts[0], nil, parts[1]
	}
	m := strings.Join(parts[1:len(parts)-1], " ")
	return parts[0], &m, parts[len(parts)-1]
}
