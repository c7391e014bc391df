package clawgate

import (
	"encoding/base64"
	"encoding/json"
)

// --- Domain types (database records) ---

// ScoredMessage is a Message paired with its cosine similarity score from a
// semantic search. Score is in [0, 1]; higher means more relevant.
// Score is 0 when the store does not compute similarity (e.g. libsql ANN index).
type ScoredMessage struct {
	Message
	Score float32
}

// ScoredChunk is a Chunk paired with its cosine similarity score.
type ScoredChunk struct {
	Chunk
	Score float32
}

// ScoredSkill is a Skill paired with its cosine similarity score.
type ScoredSkill struct {
	Skill
	Score float32
}

// ScoredFact is a Fact paired with its cosine similarity score.
type ScoredFact struct {
	Fact
	Score float32
}

type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Source    string `json:"source"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

type Chunk struct {
	ID         string     `json:"id"`
	DocumentID string     `json:"document_id"`
	ParentID   string     `json:"parent_id,omitempty"`
	Content    string     `json:"content"`
	ChunkIndex int        `json:"chunk_index"`
	Embedding  []float32  `json:"-"`
	Metadata   *ChunkMeta `json:"metadata,omitempty"`
}

// ChunkMeta carries provenance for a chunk: where it came from in the source
// document, and any images attached to that section. Populated by ingest
// extractors that track page/section boundaries (PDF, DOCX); nil otherwise.
type ChunkMeta struct {
	SourceURL      string  `json:"source_url,omitempty"`
	PageNumber     int     `json:"page_number,omitempty"`
	SectionHeading string  `json:"section_heading,omitempty"`
	Images         []Image `json:"images,omitempty"`
}

// RelationType classifies the edge between two chunks in a GraphStore.
type RelationType string

const (
	// RelSequence links two chunks that are adjacent within the same document,
	// in document order. Created at ingest time with no LLM involved.
	RelSequence RelationType = "sequence"
	// RelReferences links a chunk to another chunk it explicitly mentions or cites.
	RelReferences RelationType = "references"
	// RelElaborates links a chunk to another chunk whose topic it expands on.
	RelElaborates RelationType = "elaborates"
)

// RetrievalResult is a scored piece of content surfaced by a Retriever.
// Score is in [0, 1]; higher means more relevant. GraphContext holds edges
// touching ChunkID when the backing Store implements GraphStore, letting
// callers (e.g. the knowledge tool) surface related chunks alongside the hit.
type RetrievalResult struct {
	Content      string      `json:"content"`
	Score        float32     `json:"score"`
	ChunkID      string      `json:"chunk_id"`
	DocumentID   string      `json:"document_id"`
	GraphContext []ChunkEdge `json:"graph_context,omitempty"`
}

// ChunkEdge is a directed, weighted relation between two chunks, used by
// memory.rag.query's graph-aware retrieval to pull in context beyond plain
// vector similarity.
type ChunkEdge struct {
	ID          string       `json:"id"`
	SourceID    string       `json:"source_id"`
	TargetID    string       `json:"target_id"`
	Relation    RelationType `json:"relation"`
	Weight      float32      `json:"weight"`
	Description string       `json:"description,omitempty"`
}

type Thread struct {
	ID        string            `json:"id"`
	ChatID    string            `json:"chat_id"`
	Title     string            `json:"title,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt int64             `json:"created_at"`
	UpdatedAt int64             `json:"updated_at"`
}

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt int64     `json:"created_at"`
}

type Fact struct {
	ID         string    `json:"id"`
	Fact       string    `json:"fact"`
	Category   string    `json:"category"`
	Confidence float64   `json:"confidence"`
	Embedding  []float32 `json:"-"`
	CreatedAt  int64     `json:"created_at"`
	UpdatedAt  int64     `json:"updated_at"`
}

// Intent for classification
type Intent int

const (
	IntentChat   Intent = iota
	IntentAction
)

// Scheduled action (DB record)
type ScheduledAction struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	Schedule        string `json:"schedule"`
	ToolCalls       string `json:"tool_calls"`
	SynthesisPrompt string `json:"synthesis_prompt"`
	NextRun         int64  `json:"next_run"`
	Enabled         bool   `json:"enabled"`
	SkillID         string `json:"skill_id,omitempty"`
	CreatedAt       int64  `json:"created_at"`
}

type ScheduledToolCall struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// Skill is a stored instruction package for specializing the action agent.
type Skill struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Instructions string    `json:"instructions"`
	Tools        []string  `json:"tools,omitempty"`
	Model        string    `json:"model,omitempty"`
	Embedding    []float32 `json:"-"`
	CreatedAt    int64     `json:"created_at"`
	UpdatedAt    int64     `json:"updated_at"`
}

// --- LLM protocol types ---

type ChatMessage struct {
	Role       string          `json:"role"` // "system", "user", "assistant", "tool"
	Content    string          `json:"content"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	ToolCalls  []ToolCall      `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"` // provider-specific (e.g. Gemini thoughtSignature)
}

// Attachment represents binary content (image, PDF, audio, etc.) sent inline
// or by reference to a multimodal LLM. The MimeType determines how the
// provider interprets the data. Exactly one of URL, Data, or Base64 should be
// set: URL for content the provider fetches itself (e.g. Gemini fileUri),
// Data for raw bytes, Base64 for already-encoded bytes (deprecated, kept for
// callers that pre-encode).
type Attachment struct {
	MimeType string `json:"mime_type"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	Base64   string `json:"base64,omitempty"`
}

// InlineData returns the attachment's raw bytes, preferring Data and falling
// back to decoding the deprecated Base64 field. Returns nil if neither is set
// or Base64 fails to decode (e.g. when URL is set instead).
func (a Attachment) InlineData() []byte {
	if len(a.Data) > 0 {
		return a.Data
	}
	if a.Base64 != "" {
		raw, err := base64.StdEncoding.DecodeString(a.Base64)
		if err != nil {
			return nil
		}
		return raw
	}
	return nil
}

// Image is an image extracted from a source document during ingest (e.g. a
// DOCX embedded picture), stored inline as base64 alongside chunk metadata.
type Image struct {
	MimeType string `json:"mime_type"`
	Base64   string `json:"base64"`
}

type ToolCall struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

// ResponseSchema tells the provider to enforce structured JSON output.
// When set on a ChatRequest, the provider translates it to its native
// structured output mechanism (e.g. Gemini responseSchema, OpenAI response_format).
type ResponseSchema struct {
	Name   string          `json:"name"`   // schema identifier (required by some providers)
	Schema json.RawMessage `json:"schema"` // JSON Schema object
}

type ChatRequest struct {
	Messages         []ChatMessage     `json:"messages"`
	Tools            []ToolDefinition  `json:"tools,omitempty"`
	ResponseSchema   *ResponseSchema   `json:"response_schema,omitempty"`
	GenerationParams *GenerationParams `json:"generation_params,omitempty"`
}

// GenerationParams overrides a provider's default sampling settings for a
// single request. Nil fields mean "use the provider's configured default".
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type ChatResponse struct {
	Content     string       `json:"content"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Usage       Usage        `json:"usage"`
	Model       string       `json:"model,omitempty"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	CachedTokens int `json:"cached_tokens,omitempty"`
}

type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"` // JSON Schema
}

// --- Incoming message from frontend ---

type IncomingMessage struct {
	ID           string
	ChatID       string
	UserID       string
	Text         string
	ReplyToMsgID string
	Document     *FileInfo
	Photos       []FileInfo
	Caption      string
}

type FileInfo struct {
	FileID   string
	FileName string
	MimeType string
	FileSize int64
}

// --- ChatMessage constructors ---

func UserMessage(text string) ChatMessage {
	return ChatMessage{Role: "user", Content: text}
}

func SystemMessage(text string) ChatMessage {
	return ChatMessage{Role: "system", Content: text}
}

func AssistantMessage(text string) ChatMessage {
	return ChatMessage{Role: "assistant", Content: text}
}

func ToolResultMessage(callID, content string) ChatMessage {
	return ChatMessage{Role: "tool", Content: content, ToolCallID: callID}
}
