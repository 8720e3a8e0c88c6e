// Package chunker splits long message bodies into overlapping, bounded-size
// segments for embedding. Sizes are character counts, not token counts.
package chunker

import (
	"fmt"
	"strings"
)

// Metadata travels with each chunk into the vector index.
type Metadata struct {
	Sender            string `json:"sender,omitempty"`
	Conversation      string `json:"conversation,omitempty"`
	Timestamp         string `json:"timestamp,omitempty"`
	Type              string `json:"type,omitempty"`
	ChunkIndex        int    `json:"chunk_index"`
	TotalChunks       int    `json:"total_chunks"`
	OriginalMessageID string `json:"original_message_id,omitempty"`
}

// Chunk is one bounded-size segment of a message.
type Chunk struct {
	ID       string
	Content  string
	Metadata Metadata
}

// Splitter produces deterministic chunks: re-splitting unchanged content
// yields identical ids, contents and indices, so re-upserting is safe.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// Separators are tried coarsest first; a candidate segment that still
// exceeds the limit falls through to the next finer separator. The empty
// string means a hard character cut.
var separators = []string{"\n\n", "\n", " ", ""}

// NewSplitter builds a Splitter with sane bounds on overlap.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 500
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 10
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split chunks a message body. Content at or under the size limit comes back
// as a single chunk whose id is the message id unchanged; longer content is
// split with the trailing Overlap characters of each segment copied into the
// start of the next.
func (s *Splitter) Split(messageID, content string, meta Metadata) []Chunk {
	if len(content) <= s.ChunkSize {
		meta.ChunkIndex = 0
		meta.TotalChunks = 1
		meta.OriginalMessageID = ""
		return []Chunk{{ID: messageID, Content: content, Metadata: meta}}
	}

	segments := s.segments(content)
	chunks := make([]Chunk, 0, len(segments))
	for i, segment := range segments {
		if i > 0 && s.Overlap > 0 {
			prev := segments[i-1]
			tail := s.Overlap
			if tail > len(prev) {
				tail = len(prev)
			}
			segment = prev[len(prev)-tail:] + segment
		}
		chunkMeta := meta
		chunkMeta.ChunkIndex = i
		chunkMeta.TotalChunks = len(segments)
		chunkMeta.OriginalMessageID = messageID
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("%s_chunk_%d", messageID, i),
			Content:  segment,
			Metadata: chunkMeta,
		})
	}
	return chunks
}

// FirstChunk returns the content truncated to its first segment, reporting
// whether truncation happened. Used for analysis context windows, which
// include only the head of oversized messages.
func (s *Splitter) FirstChunk(content string) (string, bool) {
	if len(content) <= s.ChunkSize {
		return content, false
	}
	return s.segments(content)[0], true
}

// segments splits into pieces of at most ChunkSize-Overlap characters so
// that prepending the overlap never breaches the chunk size bound.
func (s *Splitter) segments(content string) []string {
	limit := s.ChunkSize - s.Overlap
	if limit <= 0 {
		limit = s.ChunkSize
	}
	return splitRecursive(content, separators, limit)
}

func splitRecursive(text string, seps []string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	sep := seps[0]
	if sep == "" {
		// Hard cut: an atomic token with no separators left.
		var pieces []string
		for len(text) > limit {
			pieces = append(pieces, text[:limit])
			text = text[limit:]
		}
		if text != "" {
			pieces = append(pieces, text)
		}
		return pieces
	}

	parts := strings.Split(text, sep)
	if len(parts) == 1 {
		return splitRecursive(text, seps[1:], limit)
	}

	var pieces []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			pieces = append(pieces, buf.String())
			buf.Reset()
		}
	}
	for _, part := range parts {
		if len(part) > limit {
			flush()
			pieces = append(pieces, splitRecursive(part, seps[1:], limit)...)
			continue
		}
		extra := len(part)
		if buf.Len() > 0 {
			extra += len(sep)
		}
		if buf.Len()+extra > limit {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(part)
	}
	flush()
	return pieces
}
