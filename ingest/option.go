package ingest

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker overrides the default chunker used for all content types.
func WithChunker(c Chunker) Option {
	return func(ing *Ingestor) {
		ing.chunker = c
		ing.customChunker = true
	}
}

// WithBatchSize sets the number of chunks per Embed() call (default 64).
func WithBatchSize(n int) Option {
	return func(ing *Ingestor) { ing.batchSize = n }
}

// WithExtractor registers an Extractor for a given ContentType, overriding
// the built-in extractor (if any) for that type.
func WithExtractor(ct ContentType, e Extractor) Option {
	return func(ing *Ingestor) { ing.extractors[ct] = e }
}

// WithMaxContentSize caps the number of raw bytes IngestFile will extract
// from before rejecting the document (default 50 MB).
func WithMaxContentSize(n int) Option {
	return func(ing *Ingestor) { ing.maxContentSize = n }
}
