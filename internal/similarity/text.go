package similarity

import (
	"strings"
	"unicode"
)

type textInfo struct {
	raw     string
	lower   string
	words   []string
	wordSet map[string]struct{}
	letters map[rune]int
}

func analyze(text string) textInfo {
	lower := strings.ToLower(strings.ReplaceAll(text, "’", "'"))
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	info := textInfo{
		raw:     text,
		lower:   " " + strings.Join(words, " ") + " ",
		words:   words,
		wordSet: make(map[string]struct{}, len(words)),
		letters: make(map[rune]int),
	}
	for _, w := range words {
		info.wordSet[w] = struct{}{}
	}
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			info.letters[r]++
		}
	}
	return info
}

func (t textInfo) has(word string) bool {
	_, ok := t.wordSet[word]
	return ok
}

// contains matches a whole-word phrase.
func (t textInfo) contains(phrase string) bool {
	return strings.Contains(t.lower, " "+phrase+" ")
}

func (t textInfo) containsAny(phrases []string) bool {
	for _, p := range phrases {
		if t.contains(p) {
			return true
		}
	}
	return false
}

func (t textInfo) sameWords(o textInfo) bool {
	if len(t.words) != len(o.words) {
		return false
	}
	for i := range t.words {
		if t.words[i] != o.words[i] {
			return false
		}
	}
	return true
}
