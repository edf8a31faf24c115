package orchestration

import (
	"strings"
	"unicode"
)

// sentenceSegmenter slices an incremental text stream into speakable
// segments. A boundary is a sentence terminator immediately followed by
// whitespace, which keeps mid-number periods like "9.99" intact. Cuts
// happen at the last boundary in the buffer so one push emits at most one
// segment.
type sentenceSegmenter struct {
	buffer string
}

func isSentenceTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

// Push appends a fragment and returns a trimmed segment when the buffer
// contains a boundary. The remainder stays buffered for the next push.
func (s *sentenceSegmenter) Push(fragment string) (string, bool) {
	s.buffer += fragment

	cut := -1
	for i := 0; i+1 < len(s.buffer); i++ {
		if isSentenceTerminator(s.buffer[i]) && unicode.IsSpace(rune(s.buffer[i+1])) {
			cut = i
		}
	}
	if cut < 0 {
		return "", false
	}

	segment := strings.TrimSpace(s.buffer[:cut+1])
	s.buffer = s.buffer[cut+1:]
	if segment == "" {
		return "", false
	}
	return segment, true
}

// Flush drains whatever is left once the stream has ended.
func (s *sentenceSegmenter) Flush() (string, bool) {
	segment := strings.TrimSpace(s.buffer)
	s.buffer = ""
	return segment, segment != ""
}
