package importer

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// DotenvParser reads KEY=VALUE lines. Blank lines and # comments are
// ignored, an "export " prefix is allowed, double-quoted values understand
// \n, \t, \" and \\ escapes, and single-quoted values are literal.
type DotenvParser struct{}

// Source returns the source type for this parser.
func (p *DotenvParser) Source() Source {
	return SourceDotenv
}

// Parse keeps key names as written. A repeated key keeps its last value.
func (p *DotenvParser) Parse(data []byte, _ ParseOptions) (*ImportResult, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	result := newResult()
	index := make(map[string]int)

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for lineNum := 1; sc.Scan(); lineNum++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, rawValue, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: expected KEY=VALUE", lineNum))
			continue
		}

		value, err := parseDotenvValue(strings.TrimSpace(rawValue))
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %v", lineNum, err))
			continue
		}
		if IsEmptyOrWhitespace(value) {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: key, Reason: "empty value"})
			continue
		}

		if i, seen := index[key]; seen {
			result.Warnings = append(result.Warnings, fmt.Sprintf("line %d: %s redefined", lineNum, key))
			result.Secrets[i].Value = value
			continue
		}
		index[key] = len(result.Secrets)
		result.Secrets = append(result.Secrets, &ImportedSecret{Name: key, Value: value, Item: key})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return result, nil
}

func parseDotenvValue(v string) (string, error) {
	if v == "" {
		return "", nil
	}

	switch v[0] {
	case '\'':
		end := strings.IndexByte(v[1:], '\'')
		if end < 0 {
			return "", fmt.Errorf("unterminated single quote")
		}
		return v[1 : end+1], nil

	case '"':
		var b strings.Builder
		for i := 1; i < len(v); i++ {
			c := v[i]
			switch {
			case c == '"':
				return b.String(), nil
			case c == '\\' && i+1 < len(v):
				i++
				switch v[i] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				case 'r':
					b.WriteByte('\r')
				default:
					b.WriteByte(v[i])
				}
			default:
				b.WriteByte(c)
			}
		}
		return "", fmt.Errorf("unterminated double quote")

	default:
		if idx := strings.Index(v, " #"); idx >= 0 {
			v = v[:idx]
		}
		return strings.TrimSpace(v), nil
	}
}
