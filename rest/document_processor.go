package rest

import (
	"maps"
	"strings"
	"sync"
	"unicode"

	"github.com/go-errors/errors"
	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/unicode/norm"
)

const (
	OperatorNormalize = "normalize"
	OperatorSanitize  = "sanitize"
)

// StringProcessor transforms a single string value of a request document
type StringProcessor func(string) string

var processorsMu sync.RWMutex

var processors = map[string]map[string]StringProcessor{
	OperatorNormalize: {
		"trim":      strings.TrimSpace,
		"lowercase": strings.ToLower,
		"uppercase": strings.ToUpper,
		"unaccent":  removeDiacritics,
		"unicode":   norm.NFC.String,
	},
	OperatorSanitize: {
		"html":         htmlPolicy.Sanitize,
		"alphanumeric": keepRunes(unicode.IsLetter, unicode.IsDigit),
		"numeric":      keepRunes(unicode.IsDigit),
	},
}

var htmlPolicy = bluemonday.UGCPolicy()

// RegisterBodyNormalizer registers a custom normalizer
func RegisterBodyNormalizer(name string, fn StringProcessor) error {
	return registerProcessor(OperatorNormalize, name, fn)
}

// RegisterBodySanitizer registers a custom sanitizer
func RegisterBodySanitizer(name string, fn StringProcessor) error {
	return registerProcessor(OperatorSanitize, name, fn)
}

// GetBodyNormalizers returns a copy of the registered normalizers
func GetBodyNormalizers() map[string]StringProcessor {
	return copyProcessors(OperatorNormalize)
}

// GetBodySanitizers returns a copy of the registered sanitizers
func GetBodySanitizers() map[string]StringProcessor {
	return copyProcessors(OperatorSanitize)
}

func registerProcessor(operator string, name string, fn StringProcessor) error {
	if fn == nil {
		return errors.Errorf("%s function cannot be nil", operator)
	}

	processorsMu.Lock()
	defer processorsMu.Unlock()

	if _, exists := processors[operator][name]; exists {
		return errors.Errorf("%s %s already exists", operator, name)
	}

	processors[operator][name] = fn
	return nil
}

func copyProcessors(operator string) map[string]StringProcessor {
	processorsMu.RLock()
	defer processorsMu.RUnlock()

	result := make(map[string]StringProcessor, len(processors[operator]))
	maps.Copy(result, processors[operator])
	return result
}

// ProcessDocument applies the named processors to the string values found
// at each dotted path. Arrays met along a path are walked element by
// element. Missing paths and non-string values are skipped.
func ProcessDocument(doc bson.M, operator string, rules map[string][]string) error {
	for path, names := range rules {
		funcs, err := lookupProcessors(operator, names)
		if err != nil {
			return err
		}
		if len(funcs) == 0 {
			continue
		}

		applyAtPath(doc, strings.Split(path, "."), func(s string) string {
			for _, fn := range funcs {
				s = fn(s)
			}
			return s
		})
	}
	return nil
}

func lookupProcessors(operator string, names []string) ([]StringProcessor, error) {
	processorsMu.RLock()
	defer processorsMu.RUnlock()

	registered, ok := processors[operator]
	if !ok {
		return nil, errors.Errorf("unknown operator %s", operator)
	}

	funcs := make([]StringProcessor, 0, len(names))
	for _, name := range names {
		fn, ok := registered[name]
		if !ok {
			return nil, errors.Errorf("unknown %s processor %s", operator, name)
		}
		funcs = append(funcs, fn)
	}
	return funcs, nil
}

func applyAtPath(value any, path []string, transform StringProcessor) any {
	switch v := value.(type) {
	case string:
		if len(path) == 0 {
			return transform(v)
		}
	case bson.M:
		if len(path) > 0 {
			if child, ok := v[path[0]]; ok {
				v[path[0]] = applyAtPath(child, path[1:], transform)
			}
		}
	case map[string]any:
		if len(path) > 0 {
			if child, ok := v[path[0]]; ok {
				v[path[0]] = applyAtPath(child, path[1:], transform)
			}
		}
	case bson.A:
		for i, element := range v {
			v[i] = applyAtPath(element, path, transform)
		}
	case []any:
		for i, element := range v {
			v[i] = applyAtPath(element, path, transform)
		}
	}
	return value
}

func keepRunes(predicates ...func(rune) bool) StringProcessor {
	return func(s string) string {
		var b strings.Builder
		b.Grow(len(s))
		for _, r := range s {
			for _, keep := range predicates {
				if keep(r) {
					b.WriteRune(r)
					break
				}
			}
		}
		return b.String()
	}
}

func removeDiacritics(s string) string {
	t := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range t {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return norm.NFC.String(b.String())
}
