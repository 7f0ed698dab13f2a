// Package trackkey derives matching fingerprints from raw tracking strings.
//
// Carriers disagree on prefixes, separators and check characters, so the
// rightmost characters are the stable part of a label across re-typed,
// re-scanned and API-returned forms. Two keys are produced: a legacy coarse
// digits-only last-8 and a stricter alphanumeric last-18.
package trackkey

import "strings"

// Last8 strips every non-digit and returns the rightmost 8 digits.
// Returns "" when fewer than 8 digits remain; such input cannot be matched.
func Last8(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	d := b.String()
	if len(d) < 8 {
		return ""
	}
	return d[len(d)-8:]
}

// Last18 uppercases, strips every non-alphanumeric and returns the rightmost
// 18 characters. Returns "" when nothing survives stripping.
func Last18(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		}
	}
	s := b.String()
	if s == "" {
		return ""
	}
	if len(s) > 18 {
		s = s[len(s)-18:]
	}
	return s
}

// IsSKUScan reports whether the input denotes a SKU/count scan rather than a
// tracking number. Such inputs must never reach the order matcher.
func IsSKUScan(raw string) bool {
	return strings.Contains(raw, ":")
}

// SplitSKUScan parses "SKU:COUNT" / "SKU:" shaped input. Count defaults to 1
// when the suffix is missing or not a number.
func SplitSKUScan(raw string) (sku string, count int32, ok bool) {
	i := strings.Index(raw, ":")
	if i < 0 {
		return "", 0, false
	}
	sku = strings.TrimSpace(raw[:i])
	if sku == "" {
		return "", 0, false
	}
	count = 1
	rest := strings.TrimSpace(raw[i+1:])
	if rest != "" {
		n := int32(0)
		valid := true
		for _, r := range rest {
			if r < '0' || r > '9' {
				valid = false
				break
			}
			n = n*10 + int32(r-'0')
		}
		if valid && n > 0 {
			count = n
		}
	}
	return sku, count, true
}
