// Package extractor finds symptom mentions in clinical free text by
// matching it against the symptom vocabulary of a knowledge base.
package extractor

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ddx/ddx/internal/domain/concept"
	"github.com/ddx/ddx/internal/domain/knowledge"
)

// Dictionary is a phrase matcher over a fixed vocabulary. Matching is
// case-insensitive, respects word boundaries and prefers the longest phrase
// starting at each position. It is safe for concurrent use.
type Dictionary struct {
	byFirst map[string][][]string
	size    int
}

// NewDictionary builds a dictionary from the free-text part of every
// symptom label in kb ("UMLS:C0008031_chest_pain" contributes "chest pain").
func NewDictionary(kb *knowledge.KnowledgeBase) *Dictionary {
	symptoms := kb.Symptoms()
	phrases := make([]string, 0, len(symptoms))
	for _, slug := range symptoms {
		phrases = append(phrases, concept.FreeText(kb.Label(slug)))
	}
	return NewDictionaryFromPhrases(phrases)
}

// NewDictionaryFromPhrases builds a dictionary from raw phrases. Blank and
// duplicate phrases are ignored.
func NewDictionaryFromPhrases(phrases []string) *Dictionary {
	d := &Dictionary{byFirst: make(map[string][][]string)}
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		tokens := tokenize(p)
		if len(tokens) == 0 {
			continue
		}
		key := strings.Join(tokens, " ")
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		d.byFirst[tokens[0]] = append(d.byFirst[tokens[0]], tokens)
		d.size++
	}
	for _, candidates := range d.byFirst {
		sort.Slice(candidates, func(i, j int) bool {
			if len(candidates[i]) != len(candidates[j]) {
				return len(candidates[i]) > len(candidates[j])
			}
			return strings.Join(candidates[i], " ") < strings.Join(candidates[j], " ")
		})
	}
	return d
}

// Len is the number of distinct phrases.
func (d *Dictionary) Len() int {
	return d.size
}

// Extract returns the phrases found in text, left to right, without overlaps.
// A phrase mentioned twice is returned twice.
func (d *Dictionary) Extract(text string) []string {
	tokens := tokenize(text)
	var out []string
	for i := 0; i < len(tokens); {
		if m := d.longestAt(tokens, i); m > 0 {
			out = append(out, strings.Join(tokens[i:i+m], " "))
			i += m
			continue
		}
		i++
	}
	return out
}

func (d *Dictionary) longestAt(tokens []string, i int) int {
	for _, cand := range d.byFirst[tokens[i]] {
		if i+len(cand) > len(tokens) {
			continue
		}
		match := true
		for k, tok := range cand {
			if tokens[i+k] != tok {
				match = false
				break
			}
		}
		if match {
			return len(cand)
		}
	}
	return 0
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// SplitList splits a comma-separated mention list, dropping blank entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
