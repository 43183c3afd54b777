package processor

import (
	"iter"
	"strings"
	"unicode/utf8"
)

// Chunker defaults; all of them are configuration policy, overridable
// through NewChunker.
const (
	DefaultChunkSize = 1200
	DefaultOverlap   = 150
	DefaultMaxChunks = 5000
)

// paragraph separator used when joining accumulated paragraphs; its length
// is the per-paragraph overhead charged against the target size.
const paragraphSep = "\n\n"

// Chunker splits normalized text into bounded segments along paragraph
// boundaries, hard-slicing paragraphs that alone exceed the target size.
type Chunker struct {
	target    int
	overlap   int
	maxChunks int
}

// NewChunker creates a chunker. Non-positive target or maxChunks fall back
// to the defaults; overlap is clamped into [0, target).
func NewChunker(target, overlap, maxChunks int) *Chunker {
	if target <= 0 {
		target = DefaultChunkSize
	}
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= target {
		overlap = target - 1
	}
	return &Chunker{target: target, overlap: overlap, maxChunks: maxChunks}
}

// Chunks returns a single-pass sequence of text chunks. Production stops
// silently once the chunk ceiling is reached; remaining input is dropped.
// Empty input yields no chunks.
func (c *Chunker) Chunks(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		emitted := 0
		emit := func(s string) bool {
			if emitted >= c.maxChunks {
				return false
			}
			emitted++
			return yield(s)
		}

		// Accumulation state: paragraphs buffered for the current chunk.
		var buf []string
		bufLen := 0
		flush := func() bool {
			if len(buf) == 0 {
				return true
			}
			chunk := strings.TrimSpace(strings.Join(buf, paragraphSep))
			buf = buf[:0]
			bufLen = 0
			if chunk == "" {
				return true
			}
			return emit(chunk)
		}

		for _, para := range splitParagraphs(text) {
			if emitted >= c.maxChunks {
				return
			}

			// A paragraph that alone exceeds the target bypasses the
			// buffer and gets hard-sliced into overlapping windows.
			if len(para) > c.target {
				if !flush() {
					return
				}
				if !c.slice(para, emit) {
					return
				}
				continue
			}

			overhead := 0
			if bufLen > 0 {
				overhead = len(paragraphSep)
			}
			if bufLen+overhead+len(para) > c.target {
				if !flush() {
					return
				}
				overhead = 0
			}
			buf = append(buf, para)
			bufLen += overhead + len(para)
		}
		flush()
	}
}

// slice cuts an oversized paragraph into windows of at most target bytes
// with overlap bytes of backward overlap. The next window starts relative to
// the previous window's actual end, so rune-boundary adjustments never leave
// a gap: every byte of para lands in at least one window. The start always
// advances by at least one byte, guaranteeing progress for any overlap.
func (c *Chunker) slice(para string, emit func(string) bool) bool {
	start := 0
	for start < len(para) {
		end := start + c.target
		if end >= len(para) {
			end = len(para)
		} else {
			for end > start && !utf8.RuneStart(para[end]) {
				end--
			}
			if end == start {
				// target smaller than one rune; take the whole rune.
				_, size := utf8.DecodeRuneInString(para[start:])
				end = start + size
			}
		}
		if !emit(para[start:end]) {
			return false
		}
		if end == len(para) {
			return true
		}

		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		// Forward-align to a rune start; this stays within the window just
		// emitted, so no byte is skipped.
		for next < len(para) && !utf8.RuneStart(para[next]) {
			next++
		}
		start = next
	}
	return true
}

// splitParagraphs splits on blank-line boundaries, trims each paragraph,
// and drops the empty ones.
func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	paras := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			paras = append(paras, p)
		}
	}
	return paras
}
