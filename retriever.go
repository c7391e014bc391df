package clawgate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Retriever searches a knowledge base and returns ranked results. Implementations
// may combine multiple search strategies (vector, keyword, hybrid) and optionally
// re-rank before returning. Backs the knowledge_search tool and memory.rag.query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]RetrievalResult, error)
}

// Reranker re-scores retrieval results for improved precision. The returned
// slice must be sorted by Score descending and trimmed to topK.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []RetrievalResult, topK int) ([]RetrievalResult, error)
}

// ByDocument builds a filter restricting a chunk search to a single document.
func ByDocument(documentID string) ChunkFilter {
	return ChunkFilter{Field: "document_id", Op: OpEq, Value: documentID}
}

// RetrieverOption configures a HybridRetriever.
type RetrieverOption func(*retrieverConfig)

type retrieverConfig struct {
	reranker            Reranker
	minScore            float32
	keywordWeight       float32
	overfetchMultiplier int
	filters             []ChunkFilter
	tracer              Tracer
	logger              *slog.Logger
}

// WithReranker sets an optional re-ranking stage that runs after hybrid merge.
func WithReranker(r Reranker) RetrieverOption {
	return func(c *retrieverConfig) { c.reranker = r }
}

// WithMinRetrievalScore sets the minimum score threshold. Results below this
// score are dropped before returning. Default is 0 (no filtering).
func WithMinRetrievalScore(score float32) RetrieverOption {
	return func(c *retrieverConfig) { c.minScore = score }
}

// WithKeywordWeight sets the relative weight for keyword search results in
// the RRF merge. Must be in [0, 1]. Default is 0.3 (vector gets 0.7).
func WithKeywordWeight(w float32) RetrieverOption {
	return func(c *retrieverConfig) { c.keywordWeight = w }
}

// WithOverfetchMultiplier sets the multiplier for over-fetching candidates
// before re-ranking. Retrieve fetches topK * multiplier candidates, then
// re-ranks and trims to topK. Default is 3.
func WithOverfetchMultiplier(n int) RetrieverOption {
	return func(c *retrieverConfig) { c.overfetchMultiplier = n }
}

// WithFilters sets metadata filters passed to SearchChunks and SearchChunksKeyword.
func WithFilters(filters ...ChunkFilter) RetrieverOption {
	return func(c *retrieverConfig) { c.filters = filters }
}

// WithRetrieverTracer sets the Tracer for a HybridRetriever.
func WithRetrieverTracer(t Tracer) RetrieverOption {
	return func(c *retrieverConfig) { c.tracer = t }
}

// WithRetrieverLogger sets the structured logger for a HybridRetriever.
func WithRetrieverLogger(l *slog.Logger) RetrieverOption {
	return func(c *retrieverConfig) { c.logger = l }
}

// ScoreReranker filters results below a minimum score and re-sorts by score
// descending. It makes no external calls — useful as a baseline or when no
// LLM-based reranker is configured.
type ScoreReranker struct {
	minScore float32
}

var _ Reranker = (*ScoreReranker)(nil)

// NewScoreReranker creates a ScoreReranker that drops results below minScore.
func NewScoreReranker(minScore float32) *ScoreReranker {
	return &ScoreReranker{minScore: minScore}
}

func (r *ScoreReranker) Rerank(_ context.Context, _ string, results []RetrievalResult, topK int) ([]RetrievalResult, error) {
	var filtered []RetrievalResult
	for _, res := range results {
		if res.Score >= r.minScore {
			filtered = append(filtered, res)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

const rrfK = 60

// reciprocalRankFusion merges vector and keyword search results using
// Reciprocal Rank Fusion. keywordWeight is in [0,1]; vectorWeight = 1 - keywordWeight.
// Returns results sorted by fused score descending.
func reciprocalRankFusion(vector, keyword []ScoredChunk, keywordWeight float32) []RetrievalResult {
	vectorWeight := 1 - keywordWeight

	type entry struct {
		chunk Chunk
		score float32
	}
	merged := make(map[string]*entry)

	for rank, sc := range vector {
		e, ok := merged[sc.ID]
		if !ok {
			e = &entry{chunk: sc.Chunk}
			merged[sc.ID] = e
		}
		e.score += vectorWeight * (1.0 / float32(rrfK+rank+1))
	}
	for rank, sc := range keyword {
		e, ok := merged[sc.ID]
		if !ok {
			e = &entry{chunk: sc.Chunk}
			merged[sc.ID] = e
		}
		e.score += keywordWeight * (1.0 / float32(rrfK+rank+1))
	}

	results := make([]RetrievalResult, 0, len(merged))
	for _, e := range merged {
		results = append(results, RetrievalResult{
			Content:    e.chunk.Content,
			Score:      e.score,
			ChunkID:    e.chunk.ID,
			DocumentID: e.chunk.DocumentID,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}

// HybridRetriever composes vector search, keyword search (FTS), parent-child
// resolution, graph-context enrichment, and optional re-ranking into a single
// Retrieve call.
type HybridRetriever struct {
	store     Store
	embedding EmbeddingProvider
	cfg       retrieverConfig
}

var _ Retriever = (*HybridRetriever)(nil)

// NewHybridRetriever creates a Retriever that combines vector and keyword search
// using Reciprocal Rank Fusion, resolves parent-child chunks, and optionally
// re-ranks results. If store implements KeywordSearcher, keyword search is used
// automatically; if it implements GraphStore, results are enriched with the
// chunk edges touching each hit.
func NewHybridRetriever(store Store, embedding EmbeddingProvider, opts ...RetrieverOption) *HybridRetriever {
	cfg := retrieverConfig{
		keywordWeight:       0.3,
		overfetchMultiplier: 3,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &HybridRetriever{store: store, embedding: embedding, cfg: cfg}
}

func (h *HybridRetriever) Retrieve(ctx context.Context, query string, topK int) ([]RetrievalResult, error) {
	if h.cfg.tracer != nil {
		var span Span
		ctx, span = h.cfg.tracer.Start(ctx, "retriever.retrieve",
			StringAttr("retriever.type", "hybrid"),
			IntAttr("topK", topK))
		defer span.End()

		results, err := h.retrieveInner(ctx, query, topK)
		if err != nil {
			span.Error(err)
		} else {
			span.SetAttr(IntAttr("result_count", len(results)))
		}
		return results, err
	}
	return h.retrieveInner(ctx, query, topK)
}

func (h *HybridRetriever) retrieveInner(ctx context.Context, query string, topK int) ([]RetrievalResult, error) {
	embs, err := h.embedding.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(embs) == 0 {
		return nil, fmt.Errorf("embed query: no embedding returned")
	}

	fetchK := topK * h.cfg.overfetchMultiplier
	if fetchK < topK {
		fetchK = topK
	}

	vectorResults, err := h.store.SearchChunks(ctx, embs[0], fetchK, h.cfg.filters...)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	var keywordResults []ScoredChunk
	if ks, ok := h.store.(KeywordSearcher); ok {
		keywordResults, _ = ks.SearchChunksKeyword(ctx, query, fetchK, h.cfg.filters...)
	}

	var results []RetrievalResult
	if len(keywordResults) > 0 {
		results = reciprocalRankFusion(vectorResults, keywordResults, h.cfg.keywordWeight)
	} else {
		results = reciprocalRankFusion(vectorResults, nil, 0)
	}

	results, err = h.resolveParents(ctx, results)
	if err != nil {
		return nil, fmt.Errorf("resolve parents: %w", err)
	}

	results = h.attachGraphContext(ctx, results)

	if h.cfg.reranker != nil {
		results, err = h.cfg.reranker.Rerank(ctx, query, results, topK)
		if err != nil {
			return nil, fmt.Errorf("rerank: %w", err)
		}
	}

	if h.cfg.minScore > 0 {
		filtered := results[:0]
		for _, r := range results {
			if r.Score >= h.cfg.minScore {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// resolveParents replaces child chunks with their parent's richer content.
// If multiple children map to the same parent, the highest-scored child wins.
// Errors are non-fatal — on failure, results pass through unmodified.
func (h *HybridRetriever) resolveParents(ctx context.Context, results []RetrievalResult) ([]RetrievalResult, error) {
	if len(results) == 0 {
		return results, nil
	}

	chunkIDs := make([]string, len(results))
	for i, r := range results {
		chunkIDs[i] = r.ChunkID
	}

	chunks, err := h.store.GetChunksByIDs(ctx, chunkIDs)
	if err != nil {
		return results, nil
	}

	chunkMap := make(map[string]Chunk, len(chunks))
	for _, c := range chunks {
		chunkMap[c.ID] = c
	}

	parentIDs := make(map[string]bool)
	var pIDs []string
	for _, c := range chunks {
		if c.ParentID != "" && !parentIDs[c.ParentID] {
			parentIDs[c.ParentID] = true
			pIDs = append(pIDs, c.ParentID)
		}
	}

	if len(pIDs) == 0 {
		return results, nil
	}

	parents, err := h.store.GetChunksByIDs(ctx, pIDs)
	if err != nil {
		return results, nil
	}

	parentMap := make(map[string]Chunk, len(parents))
	for _, p := range parents {
		parentMap[p.ID] = p
	}

	seen := make(map[string]bool)
	var resolved []RetrievalResult

	for _, r := range results {
		c, ok := chunkMap[r.ChunkID]
		if !ok || c.ParentID == "" {
			resolved = append(resolved, r)
			continue
		}

		if seen[c.ParentID] {
			continue
		}
		seen[c.ParentID] = true

		parent, ok := parentMap[c.ParentID]
		if !ok {
			resolved = append(resolved, r)
			continue
		}

		resolved = append(resolved, RetrievalResult{
			Content:    parent.Content,
			Score:      r.Score,
			ChunkID:    parent.ID,
			DocumentID: parent.DocumentID,
		})
	}

	return resolved, nil
}

// attachGraphContext populates GraphContext with edges originating at each
// result's chunk, when the store maintains a chunk graph. Degrades silently
// when the store doesn't implement GraphStore or the edge lookup fails.
func (h *HybridRetriever) attachGraphContext(ctx context.Context, results []RetrievalResult) []RetrievalResult {
	if len(results) == 0 {
		return results
	}
	gs, ok := h.store.(GraphStore)
	if !ok {
		return results
	}

	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ChunkID
	}

	edges, err := gs.GetEdges(ctx, ids)
	if err != nil || len(edges) == 0 {
		return results
	}

	byChunk := make(map[string][]ChunkEdge)
	for _, e := range edges {
		byChunk[e.SourceID] = append(byChunk[e.SourceID], e)
	}

	for i := range results {
		results[i].GraphContext = byChunk[results[i].ChunkID]
	}
	return results
}
