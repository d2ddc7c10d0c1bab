package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/smallnest/agentmem/llm"
	"github.com/smallnest/agentmem/log"
)

// StrategyRetrieval identifies the semantic retrieval strategy.
const StrategyRetrieval = "retrieval_rag"

// Defaults for the retrieval strategy. The embedding dimension matches
// text-embedding-3-small.
const (
	DefaultRetrievalK   = 2
	DefaultEmbeddingDim = 1536
)

// RetrievalMemory indexes each conversation turn as two separately embedded
// documents and answers queries by nearest-neighbor search over the vectors.
// Documents and vectors are parallel slices; position i of one always
// describes position i of the other.
type RetrievalMemory struct {
	k            int
	embeddingDim int
	client       llm.Client

	documents      []string
	vectors        [][]float32
	embeddingCache map[string][]float32

	cacheHits        int
	retrievalCount   int
	retrievalSeconds float64
	ops              operationLog
}

// RetrievalConfig holds configuration for retrieval memory.
type RetrievalConfig struct {
	// K is the number of nearest documents returned per query. Defaults to
	// DefaultRetrievalK when zero or negative.
	K int

	// EmbeddingDim is the expected vector dimension. Defaults to
	// DefaultEmbeddingDim when zero or negative.
	EmbeddingDim int

	// Client provides the embedding primitive. Required.
	Client llm.Client
}

// NewRetrievalMemory creates a retrieval memory backed by the given client.
func NewRetrievalMemory(config *RetrievalConfig) (*RetrievalMemory, error) {
	if config == nil || config.Client == nil {
		return nil, errors.New("memory: retrieval requires an llm client")
	}
	k := config.K
	if k <= 0 {
		k = DefaultRetrievalK
	}
	dim := config.EmbeddingDim
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &RetrievalMemory{
		k:              k,
		embeddingDim:   dim,
		client:         config.Client,
		embeddingCache: make(map[string][]float32),
		ops:            newOperationLog("RETRIEVAL"),
	}, nil
}

var _ Strategy = (*RetrievalMemory)(nil)

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// embed returns the vector for text, consulting the content-hash cache
// first. A nil return means the embedding primitive failed.
func (m *RetrievalMemory) embed(ctx context.Context, text string) []float32 {
	key := cacheKey(text)
	if vec, ok := m.embeddingCache[key]; ok {
		m.cacheHits++
		return vec
	}
	vec := m.client.GenerateEmbedding(ctx, text)
	if len(vec) > 0 {
		m.embeddingCache[key] = vec
	}
	return vec
}

// AddMessage indexes the turn as a "User said" document and an
// "AI responded" document. A document whose embedding fails is dropped
// without affecting the other.
func (m *RetrievalMemory) AddMessage(ctx context.Context, userInput, aiResponse string) error {
	docs := []string{
		"User said: " + userInput,
		"AI responded: " + aiResponse,
	}
	for _, doc := range docs {
		vec := m.embed(ctx, doc)
		if len(vec) == 0 {
			log.Warn("[RETRIEVAL] Embedding failed; dropping document: %s", preview(doc, 50))
			continue
		}
		m.documents = append(m.documents, doc)
		m.vectors = append(m.vectors, vec)
	}
	m.checkAlignment()
	m.ops.record("ADD_DOCUMENTS", map[string]any{
		"docs_added": len(docs),
		"total_docs": len(m.documents),
	})
	return nil
}

// GetContext returns the k documents nearest the query by squared L2
// distance, ties broken by insertion order.
func (m *RetrievalMemory) GetContext(ctx context.Context, query string) string {
	if len(m.vectors) == 0 {
		return noMemorySentinel
	}

	start := time.Now()
	queryVec := m.embed(ctx, query)
	if len(queryVec) == 0 {
		return queryFailedSentinel
	}

	retrieved := m.search(queryVec, m.k)
	elapsed := time.Since(start).Seconds()
	m.retrievalCount++
	m.retrievalSeconds += elapsed
	m.ops.record("RETRIEVE", map[string]any{
		"k":       m.k,
		"results": len(retrieved),
		"elapsed": roundTo(elapsed, 4),
	})

	if len(retrieved) == 0 {
		return noRelevantSentinel
	}
	return "### Relevant Information Retrieved from Memory:\n" + strings.Join(retrieved, "\n---\n")
}

// search returns up to k documents ordered by ascending squared L2 distance
// to queryVec, with insertion index as the tie break.
func (m *RetrievalMemory) search(queryVec []float32, k int) []string {
	m.checkAlignment()
	type candidate struct {
		index    int
		distance float32
	}
	candidates := make([]candidate, len(m.vectors))
	for i, vec := range m.vectors {
		candidates[i] = candidate{index: i, distance: squaredL2(queryVec, vec)}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].distance < candidates[b].distance
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	results := make([]string, 0, k)
	for _, c := range candidates[:k] {
		results = append(results, m.documents[c.index])
	}
	return results
}

// squaredL2 computes squared Euclidean distance. Dimensions beyond the
// shorter vector are ignored.
func squaredL2(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// checkAlignment panics when the parallel slices diverge. That state is
// unreachable through the public API; reaching it means a bug, not bad
// input.
func (m *RetrievalMemory) checkAlignment() {
	if len(m.documents) != len(m.vectors) {
		panic(fmt.Sprintf("memory: retrieval index misaligned: %d documents, %d vectors",
			len(m.documents), len(m.vectors)))
	}
}

// Clear drops the index, documents and cache.
func (m *RetrievalMemory) Clear() {
	m.documents = nil
	m.vectors = nil
	m.embeddingCache = make(map[string][]float32)
	m.cacheHits = 0
	m.retrievalCount = 0
	m.retrievalSeconds = 0
	m.ops.reset()
	log.Info("[RETRIEVAL] Retrieval memory cleared.")
}

// OperationLog returns a snapshot of the audit trail.
func (m *RetrievalMemory) OperationLog() []Operation {
	return m.ops.snapshot()
}

// Stats reports index size, cache efficiency and retrieval latency.
func (m *RetrievalMemory) Stats() Stats {
	totalLookups := m.retrievalCount + len(m.documents)
	cacheEfficiency := 0.0
	if totalLookups > 0 {
		cacheEfficiency = float64(m.cacheHits) / float64(totalLookups)
	}
	avgRetrieval := 0.0
	if m.retrievalCount > 0 {
		avgRetrieval = m.retrievalSeconds / float64(m.retrievalCount)
	}
	return Stats{
		StrategyID:   StrategyRetrieval,
		StrategyType: "RetrievalMemory",
		MemorySize:   fmt.Sprintf("%d documents, %d vectors", len(m.documents), len(m.vectors)),
		Metrics: map[string]any{
			"vector_metrics": map[string]any{
				"total_vectors":      len(m.vectors),
				"documents_count":    len(m.documents),
				"cache_hits":         m.cacheHits,
				"cache_efficiency":   roundTo(cacheEfficiency, 4),
				"avg_retrieval_time": roundTo(avgRetrieval, 4),
			},
			"k":             m.k,
			"embedding_dim": m.embeddingDim,
		},
	}
}
