package biz

import (
	"strings"
	"unicode"

	"github.com/kaptinlin/jsonrepair"
	"github.com/tidwall/gjson"
)

// ExtractionVersion tags topics with the extractor revision that produced
// their entities. Maintenance enqueues re-extraction for topics behind it.
const ExtractionVersion = 2

// ExtractEntities parses an entity list out of a model response. Model
// output is routinely malformed JSON, so invalid payloads go through
// jsonrepair before parsing. Accepted shapes: a bare JSON array of
// strings, or an object with an "entities" array. Unparseable input
// falls back to heuristic extraction over the raw text.
func ExtractEntities(raw string) []string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	doc := trimmed

	if !gjson.Valid(doc) {
		repaired, err := jsonrepair.JSONRepair(doc)
		if err != nil {
			return HeuristicEntities(raw)
		}

		doc = repaired
	}

	parsed := gjson.Parse(doc)

	list := parsed
	if parsed.IsObject() {
		list = parsed.Get("entities")
	}

	if !list.IsArray() {
		return HeuristicEntities(raw)
	}

	var entities []string

	list.ForEach(func(_, value gjson.Result) bool {
		if entity := strings.TrimSpace(value.String()); entity != "" {
			entities = append(entities, entity)
		}

		return true
	})

	if len(entities) == 0 {
		return HeuristicEntities(raw)
	}

	return dedupeEntities(entities)
}

// HeuristicEntities picks capitalized word runs out of free text. Crude
// on purpose: it only has to produce something indexable when no model
// extraction is available.
func HeuristicEntities(text string) []string {
	var (
		entities []string
		current  []string
	)

	flush := func() {
		if len(current) > 0 {
			entities = append(entities, strings.Join(current, " "))
			current = nil
		}
	}

	for _, word := range strings.Fields(text) {
		cleaned := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})

		if cleaned == "" {
			flush()
			continue
		}

		runes := []rune(cleaned)
		if unicode.IsUpper(runes[0]) && len(runes) > 1 {
			current = append(current, cleaned)
		} else {
			flush()
		}
	}

	flush()

	return dedupeEntities(entities)
}

func dedupeEntities(entities []string) []string {
	seen := make(map[string]struct{}, len(entities))
	out := make([]string, 0, len(entities))

	for _, entity := range entities {
		key := strings.ToLower(entity)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		out = append(out, entity)
	}

	return out
}
