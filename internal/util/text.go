package util

import "strings"

func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}

// NormalizeText lowercases a query and collapses runs of whitespace into single
// spaces. Invalid UTF-8 sequences are dropped.
func NormalizeText(value string) string {
	value = strings.ToValidUTF8(value, "")
	value = strings.ToLower(strings.TrimSpace(value))
	return strings.Join(strings.Fields(value), " ")
}

// foldableThaiMark reports whether r is a Thai combining mark that should be
// ignored for dictionary matching: mai taikhu (U+0E47), the four tone marks
// (U+0E48..U+0E4B), thanthakhat (U+0E4C), nikhahit (U+0E4D) and yamakkan (U+0E4E).
// Farmers frequently drop or misplace these when typing, so near-homophone
// spellings of the same product or disease name must collapse to one key.
func foldableThaiMark(r rune) bool {
	return r >= 0x0E47 && r <= 0x0E4E
}

// FoldThai normalizes text for diacritics-insensitive matching by removing
// Thai tone and cancellation marks after NormalizeText.
func FoldThai(value string) string {
	value = NormalizeText(value)
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if foldableThaiMark(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ContainsFold reports whether needle occurs in haystack under FoldThai
// normalization. An empty needle never matches.
func ContainsFold(haystack, needle string) bool {
	needle = FoldThai(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(FoldThai(haystack), needle)
}

// TruncateRunes shortens value to at most limit runes, appending an ellipsis
// when truncation happened.
func TruncateRunes(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit]) + "..."
}
