package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"semdex/internal/domain"
)

// Chunker splits document text into fixed-size windows of runes with a
// configurable overlap between consecutive windows.
type Chunker struct {
	size    int
	overlap int
}

// New validates the chunking parameters. The overlap must be smaller than
// the window size so the window always advances.
func New(size, overlap int) (*Chunker, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: chunk size %d, must be >= 1", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap %d, must be in [0, %d)", domain.ErrInvalidConfig, overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk splits the document's text. Windows containing only whitespace are
// dropped; there is nothing in them to embed. Chunk identity is derived from
// the document ID and the rune span, so the same document chunked the same
// way yields the same IDs.
func (c *Chunker) Chunk(doc domain.Document) []domain.Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return nil
	}

	stride := c.size - c.overlap
	var chunks []domain.Chunk

	for start := 0; start < len(runes); start += stride {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}

		text := string(runes[start:end])
		if strings.TrimSpace(text) != "" {
			chunks = append(chunks, domain.Chunk{
				ID:    chunkID(doc.ID, start, end),
				DocID: doc.ID,
				Start: start,
				End:   end,
				Text:  text,
			})
		}

		if end == len(runes) {
			break
		}
	}

	return chunks
}

func chunkID(docID string, start, end int) string {
	data := fmt.Sprintf("%s:%d-%d", docID, start, end)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:8])
}
