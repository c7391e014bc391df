package clawgate

import "context"

// Store abstracts persistence with vector search capabilities.
type Store interface {
	// --- Threads ---
	CreateThread(ctx context.Context, thread Thread) error
	GetThread(ctx context.Context, id string) (Thread, error)
	ListThreads(ctx context.Context, chatID string, limit int) ([]Thread, error)
	UpdateThread(ctx context.Context, thread Thread) error
	DeleteThread(ctx context.Context, id string) error

	// --- Messages ---
	StoreMessage(ctx context.Context, msg Message) error
	GetMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	// SearchMessages performs semantic similarity search across all messages.
	// Results are sorted by Score descending. Score is 0 when the store does
	// not compute similarity (e.g. libsql ANN index) â€” callers should treat
	// score == 0 as "relevance unknown" and apply no threshold filtering.
	SearchMessages(ctx context.Context, embedding []float32, topK int) ([]ScoredMessage, error)

	// --- Documents + Chunks ---
	StoreDocument(ctx context.Context, doc Document, chunks []Chunk) error
	// SearchChunks performs semantic similarity search over document chunks,
	// optionally narrowed by filters (see ChunkFilter). Results are sorted by
	// Score descending.
	SearchChunks(ctx context.Context, embedding []float32, topK int, filters ...ChunkFilter) ([]ScoredChunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error)

	// --- Key-value config ---
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	// --- Scheduled Actions ---
	CreateScheduledAction(ctx context.Context, action ScheduledAction) error
	ListScheduledActions(ctx context.Context) ([]ScheduledAction, error)
	GetDueScheduledActions(ctx context.Context, now int64) ([]ScheduledAction, error)
	UpdateScheduledAction(ctx context.Context, action ScheduledAction) error
	UpdateScheduledActionEnabled(ctx context.Context, id string, enabled bool) error
	DeleteScheduledAction(ctx context.Context, id string) error
	DeleteAllScheduledActions(ctx context.Context) (int, error)
	FindScheduledActionsByDescription(ctx context.Context, pattern string) ([]ScheduledAction, error)

	// --- Skills ---
	CreateSkill(ctx context.Context, skill Skill) error
	GetSkill(ctx context.Context, id string) (Skill, error)
	ListSkills(ctx context.Context) ([]Skill, error)
	UpdateSkill(ctx context.Context, skill Skill) error
	DeleteSkill(ctx context.Context, id string) error
	// SearchSkills performs semantic similarity search over stored skills.
	// Results are sorted by Score descending.
	SearchSkills(ctx context.Context, embedding []float32, topK int) ([]ScoredSkill, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}

// GraphStore is implemented by Stores that can persist relations between
// chunks. It is optional: ingest and retrieval code type-assert for it and
// degrade gracefully (no edges stored, no graph expansion) when absent.
type GraphStore interface {
	StoreEdges(ctx context.Context, edges []ChunkEdge) error
	// GetEdges returns edges whose source is one of chunkIDs.
	GetEdges(ctx context.Context, chunkIDs []string) ([]ChunkEdge, error)
	// GetIncomingEdges returns edges whose target is one of chunkIDs.
	GetIncomingEdges(ctx context.Context, chunkIDs []string) ([]ChunkEdge, error)
}

// KeywordSearcher is implemented by Stores that support full-text keyword
// search over chunks in addition to vector similarity search. memory.search
// and memory.rag.query use it to blend keyword and semantic results.
type KeywordSearcher interface {
	SearchChunksKeyword(ctx context.Context, query string, topK int, filters ...ChunkFilter) ([]ScoredChunk, error)
}

// FilterOp is a comparison operator for a ChunkFilter.
type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpGt  FilterOp = "gt"
	OpLt  FilterOp = "lt"
	OpIn  FilterOp = "in"
)

// ChunkFilter narrows a chunk search to a subset of the index, e.g. a
// specific document, a source, a metadata key, or a creation-time range.
// Supported Field values are store-specific; the SQLite store recognizes
// "document_id", "source", "created_at", and "meta.<key>".
type ChunkFilter struct {
	Field string
	Op    FilterOp
	Value any
}

// ByExcludeDocument builds a filter that excludes chunks belonging to the
// given document, useful when searching for related content while ingesting
// or re-indexing that same document.
func ByExcludeDocument(documentID string) ChunkFilter {
	return ChunkFilter{Field: "document_id", Op: OpNeq, Value: documentID}
}

// MemoryStore persists the durable facts the assistant has learned about the
// user, independent of the chunk/document store. It backs the memory.*
// method group (store, recall, search, delete, list, clear, stats).
type MemoryStore interface {
	Init(ctx context.Context) error
	// UpsertFact inserts a new fact, or merges it into an existing
	// sufficiently-similar fact (implementation-defined similarity threshold).
	UpsertFact(ctx context.Context, fact, category string, embedding []float32) error
	SearchFacts(ctx context.Context, embedding []float32, topK int) ([]ScoredFact, error)
	// BuildContext renders known facts as an LLM-ready context block. When
	// queryEmbedding is empty, the most confident/recent facts are used.
	BuildContext(ctx context.Context, queryEmbedding []float32) (string, error)
	DeleteFact(ctx context.Context, factID string) error
	DeleteMatchingFacts(ctx context.Context, pattern string) error
	// DecayOldFacts reduces confidence on stale facts and prunes the weakest.
	DecayOldFacts(ctx context.Context) error
}
