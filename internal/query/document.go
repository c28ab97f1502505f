package query

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	appErrors "github.com/noah-isme/campus-insight/pkg/errors"
)

// DocumentFormat names the encoding of a query document.
type DocumentFormat string

const (
	FormatJSON DocumentFormat = "json"
	FormatYAML DocumentFormat = "yaml"
)

// FormatFromPath picks a document format from a file extension, defaulting to JSON.
func FormatFromPath(path string) DocumentFormat {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

// DecodeDocument parses a query document into the generic shape the
// Validator consumes: objects become map[string]any, arrays []any and every
// number float64.
func DecodeDocument(data []byte, format DocumentFormat) (map[string]any, error) {
	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "query document is not valid YAML")
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, "query document is not valid JSON")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported document format %q", format))
	}

	doc, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "query must be an object")
	}
	return doc, nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	default:
		return v
	}
}

// ColumnKeys returns OPTIONS.COLUMNS in document order, or nil when the
// document does not carry a usable column list.
func ColumnKeys(doc map[string]any) []string {
	options, ok := doc[keyOptions].(map[string]any)
	if !ok {
		return nil
	}
	items, ok := options[keyColumns].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}
