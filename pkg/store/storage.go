package store

import "context"

// Logical source identifiers understood by the pipeline. Each source is backed
// by its own table with its own metadata schema; the adapters in the concrete
// store translate rows into the shared DocumentRow contract.
const (
	SourceProducts   = "products"
	SourceFertilizer = "npk"
)

// SearchRequest describes one similarity lookup against a single source.
type SearchRequest struct {
	// Query is the raw search phrasing; the store embeds it itself.
	Query string
	// Threshold is the minimum cosine similarity for a row to be returned.
	Threshold float64
	// Limit caps the number of returned rows.
	Limit int
	// Source selects the logical source table (SourceProducts, SourceFertilizer).
	Source string
	// Category optionally restricts rows to one product category
	// (e.g. fungicide, insecticide). Empty means no filter.
	Category string
	// Keywords optionally add a lexical match component for hybrid scoring.
	Keywords []string
}

// DocumentRow is one retrieved row in source-independent form. Metadata keys
// are source-specific and must be treated as opaque by consumers; the known
// keys per source are documented on the adapter types.
type DocumentRow struct {
	ID           string
	Title        string
	Content      string
	Source       string
	Similarity   float64
	KeywordScore float64
	Metadata     map[string]string
}

// DocumentStore is the retrieval interface the pipeline depends on.
//
// SimilaritySearch never reports "no rows" as an error: an empty slice with a
// nil error is the expected no-evidence outcome.
type DocumentStore interface {
	SimilaritySearch(ctx context.Context, req SearchRequest) ([]DocumentRow, error)
	Sources() []string
}
