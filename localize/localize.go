// Package localize extracts single-language versions of multilingual
// Questionnaires.
//
// Multilingual forms carry translations in FHIR primitive-extension
// companions: a translatable field "title" has a sibling "_title" element
// whose extensions hold per-language content. The transform works on the
// raw JSON document because those underscore companions have no place in a
// typed resource model.
package localize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TagSystem identifies the meta tag attached to localized Questionnaires.
const TagSystem = "http://example.org/fhir/CodeSystem/localization-tag"

// translatableFields are the element names that may carry translation
// companions.
var translatableFields = []string{
	"title", "text", "display", "prefix", "definition",
	"name", "description", "copyright", "publisher",
}

// Localize produces a copy of a Questionnaire reduced to a single
// language: translatable fields are replaced with their translation for
// the target language where one exists, translation companions are
// removed, and the resource is tagged as localized. The input document is
// not modified.
func Localize(raw json.RawMessage, language string) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse questionnaire: %w", err)
	}

	processElement(doc, language)
	if items, ok := doc["item"].([]any); ok {
		processItems(items, language)
	}

	doc["language"] = language
	tagLocalized(doc, language)

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode localized questionnaire: %w", err)
	}
	return out, nil
}

// AvailableLanguages returns the sorted language codes present in a
// Questionnaire: its base language (defaulting to "en") plus every
// language found in translation extensions.
func AvailableLanguages(raw json.RawMessage) ([]string, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse questionnaire: %w", err)
	}

	langs := make(map[string]struct{})
	if base, ok := doc["language"].(string); ok && base != "" {
		langs[base] = struct{}{}
	} else {
		langs["en"] = struct{}{}
	}
	scanTranslations(doc, langs)

	out := make([]string, 0, len(langs))
	for lang := range langs {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out, nil
}

// SupportsLanguage reports whether a Questionnaire carries content for the
// given language.
func SupportsLanguage(raw json.RawMessage, language string) (bool, error) {
	langs, err := AvailableLanguages(raw)
	if err != nil {
		return false, err
	}
	for _, lang := range langs {
		if lang == language {
			return true, nil
		}
	}
	return false, nil
}

func processItems(items []any, language string) {
	for _, it := range items {
		item, ok := it.(map[string]any)
		if !ok {
			continue
		}
		processElement(item, language)

		if nested, ok := item["item"].([]any); ok {
			processItems(nested, language)
		}
		if options, ok := item["answerOption"].([]any); ok {
			for _, opt := range options {
				if option, ok := opt.(map[string]any); ok {
					processElement(option, language)
				}
			}
		}
	}
}

// processElement replaces each translatable field of one element with its
// translation for the target language and drops the companion, whether or
// not a translation was found.
func processElement(element map[string]any, language string) {
	for _, field := range translatableFields {
		if _, ok := element[field]; !ok {
			continue
		}
		companion, ok := element["_"+field].(map[string]any)
		if !ok {
			continue
		}

		if translated := translationFor(companion, language); translated != "" {
			element[field] = translated
		}
		delete(element, "_"+field)
	}
}

// translationFor pulls the content for a language out of a primitive
// companion. Both the current translation extension and the legacy ISO
// 21090 form are understood.
func translationFor(companion map[string]any, language string) string {
	extensions, ok := companion["extension"].([]any)
	if !ok {
		return ""
	}

	for _, e := range extensions {
		ext, ok := e.(map[string]any)
		if !ok {
			continue
		}
		url, _ := ext["url"].(string)

		switch {
		case strings.Contains(strings.ToLower(url), "translation"):
			lang, content := translationParts(ext)
			if lang == language && content != "" {
				return content
			}
		case strings.Contains(strings.ToLower(url), "iso21090"):
			lang, _ := ext["lang"].(string)
			if lang == "" {
				lang, _ = ext["valueCode"].(string)
			}
			content, _ := ext["valueString"].(string)
			if lang == language && content != "" {
				return content
			}
		}
	}
	return ""
}

// translationParts reads the lang and content sub-extensions of one
// translation extension.
func translationParts(ext map[string]any) (lang, content string) {
	subs, ok := ext["extension"].([]any)
	if !ok {
		return "", ""
	}
	for _, s := range subs {
		sub, ok := s.(map[string]any)
		if !ok {
			continue
		}
		switch sub["url"] {
		case "lang":
			if v, ok := sub["valueCode"].(string); ok && v != "" {
				lang = v
			} else if v, ok := sub["valueString"].(string); ok {
				lang = v
			}
		case "content":
			if v, ok := sub["valueString"].(string); ok {
				content = v
			}
		}
	}
	return lang, content
}

// scanTranslations walks the whole document collecting language codes from
// translation extensions under primitive companions.
func scanTranslations(node any, langs map[string]struct{}) {
	switch v := node.(type) {
	case map[string]any:
		for key, value := range v {
			if strings.HasPrefix(key, "_") {
				if companion, ok := value.(map[string]any); ok {
					collectCompanionLanguages(companion, langs)
				}
			}
			scanTranslations(value, langs)
		}
	case []any:
		for _, item := range v {
			scanTranslations(item, langs)
		}
	}
}

func collectCompanionLanguages(companion map[string]any, langs map[string]struct{}) {
	extensions, ok := companion["extension"].([]any)
	if !ok {
		return
	}
	for _, e := range extensions {
		ext, ok := e.(map[string]any)
		if !ok {
			continue
		}
		url, _ := ext["url"].(string)
		if !strings.Contains(strings.ToLower(url), "translation") {
			continue
		}
		if lang, _ := translationParts(ext); lang != "" {
			langs[lang] = struct{}{}
		}
	}
}

func tagLocalized(doc map[string]any, language string) {
	meta, ok := doc["meta"].(map[string]any)
	if !ok {
		meta = make(map[string]any)
		doc["meta"] = meta
	}
	tags, _ := meta["tag"].([]any)
	meta["tag"] = append(tags, map[string]any{
		"system":  TagSystem,
		"code":    "localized",
		"display": "Localized to " + language,
	})
}
