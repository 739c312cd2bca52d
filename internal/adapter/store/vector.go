package store

import (
	"encoding/binary"
	"math"
	"sort"

	"semdex/internal/domain"
)

// cosine calculates the cosine similarity between two vectors.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// matchesFilter reports whether metadata contains every filter pair.
func matchesFilter(metadata, filter map[string]string) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

// rankRecords scores the candidate records against the query and returns the
// top k, descending by similarity. Equal scores fall back to ascending
// insertion sequence so results are reproducible. A positive minScore drops
// anything below it; 0 disables the threshold.
func rankRecords(records []domain.IndexRecord, query []float32, k int, filter map[string]string, minScore float64) []domain.ScoredChunk {
	type scored struct {
		rec   domain.IndexRecord
		score float64
	}

	scores := make([]scored, 0, len(records))
	for _, rec := range records {
		if filter != nil && !matchesFilter(rec.Metadata, filter) {
			continue
		}
		score := cosine(query, rec.Vector)
		if minScore > 0 && score < minScore {
			continue
		}
		scores = append(scores, scored{rec: rec, score: score})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].rec.Seq < scores[j].rec.Seq
	})

	if k > len(scores) {
		k = len(scores)
	}

	results := make([]domain.ScoredChunk, k)
	for i := 0; i < k; i++ {
		results[i] = domain.ScoredChunk{
			ChunkID:  scores[i].rec.ChunkID,
			DocID:    scores[i].rec.DocID,
			Score:    scores[i].score,
			Text:     scores[i].rec.Text,
			Metadata: scores[i].rec.Metadata,
		}
	}
	return results
}

// sortBySeq orders records by insertion sequence, in place.
func sortBySeq(records []domain.IndexRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})
}

// float32SliceToBytes converts a vector to a little-endian byte slice for
// storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a stored byte slice back to a vector.
func bytesToFloat32Slice(data []byte) []float32 {
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
