package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	oasis "github.com/nevindra/clawgate"
)

// IngestResult holds the outcome of an ingest operation.
type IngestResult struct {
	DocumentID string
	Document   oasis.Document
	ChunkCount int
}

// defaultMaxContentSize is the default maximum content size for extraction (50 MB).
const defaultMaxContentSize = 50 << 20

// Ingestor provides end-to-end ingestion for the memory store: extract the
// document's text, chunk it, embed the chunks, and persist everything through
// oasis.Store. It backs the gateway's memory.store and memory.index.rebuild
// methods — there is exactly one Store (the embedded SQLite file), so an
// Ingestor always writes to that same local index.
type Ingestor struct {
	store          oasis.Store
	embedding      oasis.EmbeddingProvider
	chunker        Chunker
	customChunker  bool // true when chunker was set via WithChunker
	extractors     map[ContentType]Extractor
	batchSize      int
	maxContentSize int

	// cached auto-select markdown chunker (avoid allocation per call)
	mdChunker *MarkdownChunker

	// sequential chunk-adjacency edges, stored when the backing Store
	// implements GraphStore; deterministic, no LLM round-trip required.
	sequenceEdges bool

	// observability
	tracer oasis.Tracer
	logger *slog.Logger

	// lifecycle hooks
	onSuccess func(IngestResult)
	onError   func(source string, err error)
}

// NewIngestor creates an Ingestor with sensible defaults.
func NewIngestor(store oasis.Store, emb oasis.EmbeddingProvider, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store:     store,
		embedding: emb,
		chunker:   NewRecursiveChunker(),
		extractors: map[ContentType]Extractor{
			TypePlainText: PlainTextExtractor{},
			TypeHTML:      HTMLExtractor{},
			TypeMarkdown:  MarkdownExtractor{},
			TypeCSV:       NewCSVExtractor(),
			TypeJSON:      NewJSONExtractor(),
			TypeDOCX:      NewDOCXExtractor(),
			TypePDF:       NewPDFExtractor(),
		},
		batchSize:      64,
		maxContentSize: defaultMaxContentSize,
		mdChunker:      NewMarkdownChunker(),
		sequenceEdges:  true,
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

// IngestText ingests plain text content.
func (ing *Ingestor) IngestText(ctx context.Context, text, source, title string) (IngestResult, error) {
	if ing.tracer != nil {
		var span oasis.Span
		ctx, span = ing.tracer.Start(ctx, "ingest.document",
			oasis.StringAttr("source", source),
			oasis.StringAttr("title", title),
			oasis.StringAttr("content_type", string(TypePlainText)))
		defer func() { span.End() }()

		result, err := ing.ingestText(ctx, text, source, title)
		if err != nil {
			span.Error(err)
		} else {
			span.SetAttr(
				oasis.StringAttr("doc_id", result.DocumentID),
				oasis.IntAttr("chunk_count", result.ChunkCount))
		}
		return result, err
	}
	return ing.ingestText(ctx, text, source, title)
}

func (ing *Ingestor) ingestText(ctx context.Context, text, source, title string) (IngestResult, error) {
	now := oasis.NowUnix()
	docID := oasis.NewID()

	if ing.logger != nil {
		ing.logger.Info("ingest started",
			"doc_id", docID,
			"source", source,
			"title", title,
			"content_type", string(TypePlainText),
			"content_bytes", len(text))
	}

	doc := oasis.Document{
		ID:        docID,
		Title:     title,
		Source:    source,
		Content:   text,
		CreatedAt: now,
	}

	chunks, err := ing.chunkAndEmbed(ctx, text, docID, TypePlainText, source, nil)
	if err != nil {
		if ing.logger != nil {
			ing.logger.Error("chunk and embed failed",
				"doc_id", docID, "source", source, "err", err)
		}
		ing.notifyError(source, err)
		return IngestResult{}, err
	}

	if err := ing.store.StoreDocument(ctx, doc, chunks); err != nil {
		err = fmt.Errorf("store: %w", err)
		if ing.logger != nil {
			ing.logger.Error("store document failed",
				"doc_id", docID, "source", source, "err", err)
		}
		ing.notifyError(source, err)
		return IngestResult{}, err
	}

	if err := ing.storeSequenceEdges(ctx, chunks); err != nil {
		if ing.logger != nil {
			ing.logger.Warn("sequence edge storage failed",
				"doc_id", docID, "source", source, "err", err)
		}
	}

	result := IngestResult{
		DocumentID: docID,
		Document:   doc,
		ChunkCount: len(chunks),
	}
	if ing.logger != nil {
		ing.logger.Info("ingest completed",
			"doc_id", docID, "source", source, "chunk_count", len(chunks))
	}
	if ing.onSuccess != nil {
		ing.onSuccess(result)
	}
	return result, nil
}

// IngestFile ingests file content, detecting the content type from the filename extension.
func (ing *Ingestor) IngestFile(ctx context.Context, content []byte, filename string) (IngestResult, error) {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	ct := ContentTypeFromExtension(ext)

	if ing.tracer != nil {
		var span oasis.Span
		ctx, span = ing.tracer.Start(ctx, "ingest.document",
			oasis.StringAttr("source", filename),
			oasis.StringAttr("title", filepath.Base(filename)),
			oasis.StringAttr("content_type", string(ct)))
		defer func() { span.End() }()

		result, err := ing.ingestFile(ctx, content, filename, ct)
		if err != nil {
			span.Error(err)
		} else {
			span.SetAttr(
				oasis.StringAttr("doc_id", result.DocumentID),
				oasis.IntAttr("chunk_count", result.ChunkCount))
		}
		return result, err
	}
	return ing.ingestFile(ctx, content, filename, ct)
}

func (ing *Ingestor) ingestFile(ctx context.Context, content []byte, filename string, ct ContentType) (IngestResult, error) {
	if ing.maxContentSize > 0 && len(content) > ing.maxContentSize {
		err := fmt.Errorf("content size %d exceeds limit %d", len(content), ing.maxContentSize)
		if ing.logger != nil {
			ing.logger.Error("content size exceeds limit",
				"source", filename, "content_bytes", len(content),
				"max_bytes", ing.maxContentSize)
		}
		ing.notifyError(filename, err)
		return IngestResult{}, err
	}

	extractor, ok := ing.extractors[ct]
	if !ok {
		if ing.logger != nil {
			ing.logger.Warn("no extractor registered, falling back to plain text",
				"source", filename, "content_type", string(ct))
		}
		extractor = PlainTextExtractor{}
	}

	docID := oasis.NewID()
	if ing.logger != nil {
		ing.logger.Info("ingest started",
			"doc_id", docID,
			"source", filename,
			"content_type", string(ct),
			"content_bytes", len(content))
	}

	var text string
	var pageMeta []PageMeta

	if me, ok := extractor.(MetadataExtractor); ok {
		result, err := safeExtractWithMeta(me, content)
		if err != nil {
			err = fmt.Errorf("extract %s: %w", ct, err)
			if ing.logger != nil {
				ing.logger.Error("metadata extraction failed",
					"doc_id", docID, "source", filename, "err", err)
			}
			ing.notifyError(filename, err)
			return IngestResult{}, err
		}
		text = result.Text
		pageMeta = result.Meta
	} else {
		var err error
		text, err = safeExtract(extractor, content)
		if err != nil {
			err = fmt.Errorf("extract %s: %w", ct, err)
			if ing.logger != nil {
				ing.logger.Error("extraction failed",
					"doc_id", docID, "source", filename, "err", err)
			}
			ing.notifyError(filename, err)
			return IngestResult{}, err
		}
	}

	now := oasis.NowUnix()

	doc := oasis.Document{
		ID:        docID,
		Title:     filepath.Base(filename),
		Source:    filename,
		Content:   text,
		CreatedAt: now,
	}

	chunks, err := ing.chunkAndEmbed(ctx, text, docID, ct, filename, pageMeta)
	if err != nil {
		if ing.logger != nil {
			ing.logger.Error("chunk and embed failed",
				"doc_id", docID, "source", filename, "err", err)
		}
		ing.notifyError(filename, err)
		return IngestResult{}, err
	}

	if err := ing.store.StoreDocument(ctx, doc, chunks); err != nil {
		err = fmt.Errorf("store: %w", err)
		if ing.logger != nil {
			ing.logger.Error("store document failed",
				"doc_id", docID, "source", filename, "err", err)
		}
		ing.notifyError(filename, err)
		return IngestResult{}, err
	}

	if err := ing.storeSequenceEdges(ctx, chunks); err != nil {
		if ing.logger != nil {
			ing.logger.Warn("sequence edge storage failed",
				"doc_id", docID, "source", filename, "err", err)
		}
	}

	result := IngestResult{
		DocumentID: docID,
		Document:   doc,
		ChunkCount: len(chunks),
	}
	if ing.logger != nil {
		ing.logger.Info("ingest completed",
			"doc_id", docID, "source", filename, "chunk_count", len(chunks))
	}
	if ing.onSuccess != nil {
		ing.onSuccess(result)
	}
	return result, nil
}

// IngestReader reads all content from r and ingests it, detecting content type from filename.
func (ing *Ingestor) IngestReader(ctx context.Context, r io.Reader, filename string) (IngestResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return IngestResult{}, fmt.Errorf("read: %w", err)
	}
	return ing.IngestFile(ctx, data, filename)
}

// storeSequenceEdges links consecutive chunks of a single document with
// deterministic RelSequence edges, when the backing Store implements
// GraphStore. This is the only edge kind memory.rag.query's graph-aware
// retrieval path can rely on without an LLM round-trip during ingest.
func (ing *Ingestor) storeSequenceEdges(ctx context.Context, chunks []oasis.Chunk) error {
	if !ing.sequenceEdges {
		return nil
	}
	gs, ok := ing.store.(oasis.GraphStore)
	if !ok {
		return nil
	}
	edges := buildSequenceEdges(chunks)
	if len(edges) == 0 {
		return nil
	}
	if ing.logger != nil {
		ing.logger.Debug("storing sequence edges", "edge_count", len(edges))
	}
	return gs.StoreEdges(ctx, edges)
}

// buildSequenceEdges creates sequence edges between consecutive chunks of
// the same document, ordered by ChunkIndex.
func buildSequenceEdges(chunks []oasis.Chunk) []oasis.ChunkEdge {
	if len(chunks) < 2 {
		return nil
	}

	sorted := make([]oasis.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ChunkIndex < sorted[j].ChunkIndex
	})

	edges := make([]oasis.ChunkEdge, 0, len(sorted)-1)
	for i := 0; i < len(sorted)-1; i++ {
		edges = append(edges, oasis.ChunkEdge{
			ID:       oasis.NewID(),
			SourceID: sorted[i].ID,
			TargetID: sorted[i+1].ID,
			Relation: oasis.RelSequence,
			Weight:   1.0,
		})
	}
	return edges
}

// notifyError fires the onError hook if set.
func (ing *Ingestor) notifyError(source string, err error) {
	if ing.onError != nil {
		ing.onError(source, err)
	}
}

// safeExtract calls e.Extract, recovering any panic into an error.
func safeExtract(e Extractor, content []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return e.Extract(content)
}

// safeExtractWithMeta calls me.ExtractWithMeta, recovering any panic into an error.
func safeExtractWithMeta(me MetadataExtractor, content []byte) (result ExtractResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return me.ExtractWithMeta(content)
}

// chunkWith calls ChunkContext if the chunker implements ContextChunker,
// otherwise falls back to Chunk.
func chunkWith(ctx context.Context, chunker Chunker, text string) ([]string, error) {
	if cc, ok := chunker.(ContextChunker); ok {
		return cc.ChunkContext(ctx, text)
	}
	return chunker.Chunk(text), nil
}

// chunkAndEmbed chunks text and embeds the resulting chunks in batches.
func (ing *Ingestor) chunkAndEmbed(ctx context.Context, text, docID string, ct ContentType, source string, pageMeta []PageMeta) ([]oasis.Chunk, error) {
	chunker := ing.selectChunker(ct)

	chunkTexts, err := chunkWith(ctx, chunker, text)
	if err != nil {
		return nil, fmt.Errorf("chunk: %w", err)
	}
	if len(chunkTexts) == 0 {
		if ing.logger != nil {
			ing.logger.Warn("chunker produced zero chunks",
				"doc_id", docID, "source", source)
		}
		return nil, nil
	}

	chunks := make([]oasis.Chunk, len(chunkTexts))
	offset := 0
	for i, t := range chunkTexts {
		// Find byte offset of this chunk in the original text.
		idx := strings.Index(text[offset:], t)
		startByte := offset
		if idx >= 0 {
			startByte = offset + idx
		}
		endByte := startByte + len(t)
		offset = min(endByte, len(text))

		chunks[i] = oasis.Chunk{
			ID:         oasis.NewID(),
			DocumentID: docID,
			Content:    t,
			ChunkIndex: i,
			Metadata:   assignMeta(startByte, endByte, source, pageMeta),
		}
	}

	if err := ing.batchEmbed(ctx, chunks); err != nil {
		return nil, err
	}

	return chunks, nil
}

// assignMeta finds the best-matching PageMeta for a chunk's byte range
// and builds a ChunkMeta.
func assignMeta(startByte, endByte int, source string, pageMeta []PageMeta) *oasis.ChunkMeta {
	meta := &oasis.ChunkMeta{}
	if source != "" {
		meta.SourceURL = source
	}

	if len(pageMeta) == 0 {
		if meta.SourceURL == "" {
			return nil
		}
		return meta
	}

	// Find the PageMeta with the most overlap with this chunk.
	var best *PageMeta
	bestOverlap := 0
	for i := range pageMeta {
		pm := &pageMeta[i]
		overlapStart := max(startByte, pm.StartByte)
		overlapEnd := min(endByte, pm.EndByte)
		overlap := overlapEnd - overlapStart
		if overlap > bestOverlap {
			bestOverlap = overlap
			best = pm
		}
	}

	if best != nil {
		if best.PageNumber > 0 {
			meta.PageNumber = best.PageNumber
		}
		if best.Heading != "" {
			meta.SectionHeading = best.Heading
		}
		if len(best.Images) > 0 {
			meta.Images = best.Images
		}
	}

	return meta
}

// selectChunker returns the appropriate chunker based on content type.
// If an explicit chunker was set via WithChunker, it is always used.
func (ing *Ingestor) selectChunker(ct ContentType) Chunker {
	if ing.customChunker {
		return ing.chunker
	}
	if ct == TypeMarkdown {
		return ing.mdChunker
	}
	return ing.chunker
}

// batchEmbed embeds chunks in batches of ing.batchSize.
func (ing *Ingestor) batchEmbed(ctx context.Context, chunks []oasis.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	totalBatches := (len(chunks) + ing.batchSize - 1) / ing.batchSize
	if ing.logger != nil {
		ing.logger.Info("embedding started",
			"chunk_count", len(chunks),
			"batch_size", ing.batchSize,
			"total_batches", totalBatches)
	}

	for i := 0; i < len(chunks); i += ing.batchSize {
		end := min(i+ing.batchSize, len(chunks))

		batch := chunks[i:end]
		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Content
		}

		embeddings, err := ing.embedding.Embed(ctx, texts)
		if err != nil {
			if ing.logger != nil {
				ing.logger.Error("embedding batch failed",
					"range", fmt.Sprintf("%d-%d", i, end), "err", err)
			}
			return fmt.Errorf("embed batch %d-%d: %w", i, end, err)
		}

		for j := range batch {
			if j < len(embeddings) {
				chunks[i+j].Embedding = embeddings[j]
			}
		}
	}

	if ing.logger != nil {
		ing.logger.Info("embedding completed", "chunk_count", len(chunks))
	}

	return nil
}
