package config

import (
	"fmt"
	"regexp"
	"strings"
)

// patternDelimiters are the delimiters recognised for /pattern/flags
// notation.
const patternDelimiters = "/#~!%"

// CompilePattern compiles an exclusion pattern. Both plain RE2 syntax and
// delimited PCRE-style notation (/pattern/flags) are accepted; the flags
// i, m, s and U map to their RE2 equivalents and u and D are accepted
// without effect. An empty pattern yields nil.
func CompilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}

	expr, flags, ok := splitDelimited(pattern)
	if !ok {
		return regexp.Compile(pattern)
	}

	var prefix strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's', 'U':
			if !strings.ContainsRune(prefix.String(), f) {
				prefix.WriteRune(f)
			}
		case 'u', 'D':
		default:
			return nil, fmt.Errorf("unsupported pattern flag %q in %s", f, pattern)
		}
	}
	if prefix.Len() > 0 {
		expr = "(?" + prefix.String() + ")" + expr
	}

	return regexp.Compile(expr)
}

// splitDelimited splits "/expr/flags". ok is false when pattern is not in
// delimited form.
func splitDelimited(pattern string) (expr, flags string, ok bool) {
	if len(pattern) < 2 || !strings.ContainsRune(patternDelimiters, rune(pattern[0])) {
		return "", "", false
	}

	end := strings.LastIndexByte(pattern, pattern[0])
	if end <= 0 {
		return "", "", false
	}

	flags = pattern[end+1:]
	for _, f := range flags {
		if !strings.ContainsRune("imsxuUDAJSX", f) {
			return "", "", false
		}
	}

	return pattern[1:end], flags, true
}
