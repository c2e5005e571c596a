package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
)

// Format identifies how a domain file encodes its rules.
type Format int

const (
	// FormatPlain is one rule per non-comment line.
	FormatPlain Format = iota

	// FormatEnumerated is PREFIX_RULE_N=value.
	FormatEnumerated

	// FormatAuthority is PREFIX_AUTH_N=value mixed with PREFIX_RULE_N=value.
	FormatAuthority

	// FormatTiered is PREFIX_RULE_<TIER>_N=value.
	FormatTiered

	// FormatArticle is PREFIX_RULE_ART<N>_M=value.
	FormatArticle
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatPlain:
		return "plain"
	case FormatEnumerated:
		return "enumerated"
	case FormatAuthority:
		return "authority"
	case FormatTiered:
		return "tiered"
	case FormatArticle:
		return "article"
	default:
		return "unknown"
	}
}

var (
	articleKey    = regexp.MustCompile(`^[A-Za-z0-9_]+_RULE_ART\d+_\d+\s*=`)
	tieredKey     = regexp.MustCompile(`^[A-Za-z0-9_]+_RULE_([A-Za-z]+)_\d+\s*=`)
	authorityKey  = regexp.MustCompile(`^[A-Za-z0-9_]+_(?:AUTH|RULE)_\d+\s*=`)
	authStartKey  = regexp.MustCompile(`^[A-Za-z0-9_]+_AUTH_\d+\s*=`)
	enumeratedKey = regexp.MustCompile(`^[A-Za-z0-9_]+_RULE_\d+\s*=`)
)

// Classify picks the format from the first populated line of a domain file.
func Classify(firstLine string) Format {
	line := strings.TrimSpace(firstLine)
	switch {
	case articleKey.MatchString(line):
		return FormatArticle
	case tieredKey.MatchString(line):
		return FormatTiered
	case authStartKey.MatchString(line):
		return FormatAuthority
	case enumeratedKey.MatchString(line):
		return FormatEnumerated
	default:
		return FormatPlain
	}
}

// ParseRules extracts rules from domain file content. When tier is non-empty,
// tier-qualified rules are kept only if their tier matches (case-insensitive);
// other formats ignore tier.
func ParseRules(text, tier string) []string {
	lines := populatedLines(text)
	if len(lines) == 0 {
		return nil
	}

	switch Classify(lines[0]) {
	case FormatArticle:
		return keyedValues(lines, articleKey)
	case FormatTiered:
		return tieredValues(lines, tier)
	case FormatAuthority, FormatEnumerated:
		// RULE and AUTH keys may be mixed whichever comes first.
		return keyedValues(lines, authorityKey)
	default:
		return lines
	}
}

// LoadDomainFile reads a domain file and returns its rules. Missing or empty
// files yield no rules and no error.
func LoadDomainFile(path, tier string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read domain file %s: %w", path, err)
	}
	return ParseRules(string(data), tier), nil
}

// populatedLines returns trimmed lines that are neither blank nor comments.
func populatedLines(text string) []string {
	var out []string
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}

func keyedValues(lines []string, key *regexp.Regexp) []string {
	var out []string
	for _, line := range lines {
		if !key.MatchString(line) {
			continue
		}
		if v := valueOf(line); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func tieredValues(lines []string, tier string) []string {
	var out []string
	for _, line := range lines {
		m := tieredKey.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if tier != "" && !strings.EqualFold(m[1], tier) {
			continue
		}
		if v := valueOf(line); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// valueOf returns everything after the first '='.
func valueOf(line string) string {
	idx := strings.IndexByte(line, '=')
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(line[idx+1:])
}
