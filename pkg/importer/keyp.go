package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// KeypParser reads a plaintext keyp export: a JSON object of name to value.
type KeypParser struct{}

// Source returns the source type for this parser.
func (p *KeypParser) Source() Source {
	return SourceKeyp
}

// Parse keeps names exactly as written. Blank names and values are skipped.
func (p *KeypParser) Parse(data []byte, _ ParseOptions) (*ImportResult, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON object: %v", ErrInvalidFormat, err)
	}
	if isVaultRecord(raw) {
		return nil, ErrEncryptedExport
	}

	result := newResult()
	for _, name := range sortedKeys(raw) {
		var value string
		if err := json.Unmarshal(raw[name], &value); err != nil {
			return nil, fmt.Errorf("%w: %q value must be a string", ErrInvalidFormat, name)
		}
		if IsEmptyOrWhitespace(name) || IsEmptyOrWhitespace(value) {
			result.Skipped = append(result.Skipped, SkippedItem{OriginalName: name, Reason: "empty name or value"})
			continue
		}
		result.Secrets = append(result.Secrets, &ImportedSecret{Name: name, Value: value, Item: name})
	}
	return result, nil
}

func isVaultRecord(raw map[string]json.RawMessage) bool {
	_, hasVersion := raw["version"]
	_, hasCrypto := raw["crypto"]
	_, hasData := raw["data"]
	return hasVersion && hasCrypto && hasData
}
