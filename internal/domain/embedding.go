package domain

// EmbeddingsDocument is the persisted form of a processed snapshot: the ordered
// chunk sequence and its parallel embedding matrix, serialized as one document
// so the vector index can be rebuilt without re-embedding.
type EmbeddingsDocument struct {
	Chunks             []string    `json:"chunks"`
	Embeddings         [][]float32 `json:"embeddings"`
	EmbeddingDimension int         `json:"embedding_dimension"`
	NumChunks          int         `json:"num_chunks"`
}
