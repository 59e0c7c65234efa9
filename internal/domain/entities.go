package domain

// Chunk is one retrievable window of source text. Index is its position in
// the bundle's chunk sequence and doubles as its row id in the vector index.
type Chunk struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// ScoredChunk pairs a chunk with its squared L2 distance to a query.
// Lower is closer.
type ScoredChunk struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float32 `json:"distance"`
}

// RetrievalResult is ordered nearest first.
type RetrievalResult []ScoredChunk

// Texts returns the chunk texts in ranked order.
func (r RetrievalResult) Texts() []string {
	texts := make([]string, len(r))
	for i, sc := range r {
		texts[i] = sc.Chunk.Text
	}
	return texts
}

// ChunkConfig records the chunking parameters a bundle was built with.
type ChunkConfig struct {
	Size     int `json:"size" yaml:"size"`
	Overlap  int `json:"overlap" yaml:"overlap"`
	MinChars int `json:"min_chars" yaml:"min_chars"`
}

// Answer is a synthesized response together with the passages it was grounded on.
type Answer struct {
	Question string          `json:"question"`
	Text     string          `json:"answer"`
	Sources  RetrievalResult `json:"sources"`
}
