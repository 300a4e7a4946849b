package embedding

import (
	"strings"
)

// charsPerToken approximates token count from text length. Four characters
// per token is close enough for the mixed Vietnamese/English corpus this
// system stores.
const charsPerToken = 4

// Chunk splits text into sentence-aligned windows of roughly maxTokens
// tokens, with the tail sentences of each chunk carried into the next one
// up to overlapTokens. Sentences are never split mid-sentence: an
// oversized sentence becomes its own chunk. Deterministic for a given
// input.
func Chunk(text string, maxTokens, overlapTokens int) []string {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		overlapTokens = 0
	}

	maxChars := maxTokens * charsPerToken
	overlapChars := overlapTokens * charsPerToken

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks  []string
		current []string
		curLen  int
	)

	flush := func() {
		if curLen == 0 {
			return
		}
		chunks = append(chunks, strings.Join(current, " "))

		// Carry trailing sentences forward as shared context
		var (
			tail    []string
			tailLen int
		)
		for i := len(current) - 1; i >= 0; i-- {
			l := len(current[i]) + 1
			if tailLen+l > overlapChars {
				break
			}
			tail = append([]string{current[i]}, tail...)
			tailLen += l
		}
		current = tail
		curLen = tailLen
	}

	for _, sentence := range sentences {
		l := len(sentence) + 1
		if curLen > 0 && curLen+l > maxChars {
			flush()
		}
		current = append(current, sentence)
		curLen += l
	}
	flush()

	return chunks
}

// EstimateTokens approximates the token count of a text
func EstimateTokens(text string) int {
	n := len(text) / charsPerToken
	if n == 0 && text != "" {
		n = 1
	}
	return n
}

// splitSentences breaks text into sentences on terminal punctuation and
// blank lines, keeping the terminator with its sentence.
func splitSentences(text string) []string {
	var (
		sentences []string
		b         strings.Builder
	)

	flush := func() {
		s := strings.TrimSpace(b.String())
		if s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		switch r {
		case '.', '!', '?', '…':
			// Terminator followed by whitespace or end of text closes a sentence
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				flush()
			}
		case '\n':
			flush()
		}
	}
	flush()

	return sentences
}
