package rag

import "time"

// Intent classifies what the user is asking for. The zero value is
// IntentUnknown.
type Intent string

const (
	IntentUnknown          Intent = "unknown"
	IntentGreeting         Intent = "greeting"
	IntentProductInquiry   Intent = "product_inquiry"
	IntentRecommendation   Intent = "recommendation"
	IntentUsageInstruction Intent = "usage_instruction"
	IntentDiseaseDiagnosis Intent = "disease_diagnosis"
	IntentFertilizerAdvice Intent = "fertilizer_advice"
	IntentGeneralAgri      Intent = "general_agri"
)

// Entity keys used in QueryAnalysis.Entities. The vocabulary is fixed;
// agents must not invent new keys.
const (
	EntityProductName = "product_name"
	EntityDiseaseName = "disease_name"
	EntityPestName    = "pest_name"
	EntityPlantType   = "plant_type"
	EntityProblemType = "problem_type"
)

// QueryAnalysis is the immutable result of the query understanding stage.
// It is created once per request and consumed read-only by retrieval and
// response generation.
type QueryAnalysis struct {
	OriginalQuery   string            `json:"original_query"`
	Intent          Intent            `json:"intent"`
	Confidence      float64           `json:"confidence"`
	Entities        map[string]string `json:"entities"`
	ExpandedQueries []string          `json:"expanded_queries"`
	RequiredSources []string          `json:"required_sources"`
}

// Entity returns the value for key or "" when absent.
func (a *QueryAnalysis) Entity(key string) string {
	if a == nil || a.Entities == nil {
		return ""
	}
	return a.Entities[key]
}

// RetrievedDocument is one evidence document in source-independent form.
// Metadata keys vary by source and are treated as opaque key/value pairs.
type RetrievedDocument struct {
	ID              string            `json:"id"`
	Title           string            `json:"title"`
	Content         string            `json:"content"`
	Source          string            `json:"source"`
	SimilarityScore float64           `json:"similarity_score"`
	RerankScore     float64           `json:"rerank_score"`
	Metadata        map[string]string `json:"metadata"`

	// hybridScore is the merged vector+keyword relevance used for ordering.
	// RerankScore stays zero unless a rerank pass assigns positional scores.
	hybridScore float64
}

// RetrievalResult holds the merged, deduplicated outcome of the retrieval
// stage. Documents are ordered most-relevant first; the order determines
// citation numbering and must not contain duplicate ids.
type RetrievalResult struct {
	Documents        []RetrievedDocument `json:"documents"`
	TotalRetrieved   int                 `json:"total_retrieved"`
	TotalAfterRerank int                 `json:"total_after_rerank"`
	AvgSimilarity    float64             `json:"avg_similarity"`
	AvgRerankScore   float64             `json:"avg_rerank_score"`
	SourcesUsed      []string            `json:"sources_used"`
}

// Citation points a claim back to one retrieved document. QuotedText is a
// verbatim excerpt, never a paraphrase, and DocID must reference a document
// present in the RetrievalResult the citation was derived from.
type Citation struct {
	DocID      string  `json:"doc_id"`
	DocTitle   string  `json:"doc_title"`
	Source     string  `json:"source"`
	QuotedText string  `json:"quoted_text"`
	Confidence float64 `json:"confidence"`
}

// GroundingResult is the verdict of the grounding stage: whether the
// retrieved evidence is sufficient to answer, with citations restricted to
// the retrieved document ids.
type GroundingResult struct {
	IsGrounded       bool       `json:"is_grounded"`
	Confidence       float64    `json:"confidence"`
	Citations        []Citation `json:"citations"`
	UngroundedClaims []string   `json:"ungrounded_claims"`
	SuggestedAnswer  string     `json:"suggested_answer"`
	RelevantProducts []string   `json:"relevant_products"`
	RelevantEntities []string   `json:"relevant_entities"`
}

// Response is the sole externally visible artifact of the pipeline.
// A nil Answer signals "route this query to a general conversational
// handler instead".
type Response struct {
	Answer           *string    `json:"answer"`
	Confidence       float64    `json:"confidence"`
	Citations        []Citation `json:"citations"`
	Intent           Intent     `json:"intent"`
	IsGrounded       bool       `json:"is_grounded"`
	SourcesUsed      []string   `json:"sources_used"`
	ProcessingTimeMS int64      `json:"processing_time_ms"`

	// Debug references to intermediate results, omitted from rendered messages.
	Analysis  *QueryAnalysis   `json:"analysis,omitempty"`
	Retrieval *RetrievalResult `json:"retrieval,omitempty"`
	Grounding *GroundingResult `json:"grounding,omitempty"`
}

// Config carries the tunable knobs of the pipeline. DefaultConfig returns the
// values the thresholds were calibrated with; the process boundary may
// override individual fields from the environment.
type Config struct {
	// TopK is the number of documents retained after merging.
	TopK int
	// SimilarityThreshold is the per-query minimum cosine similarity.
	SimilarityThreshold float64
	// HybridVectorWeight is the vector share of the hybrid score in [0,1];
	// the remainder weights the lexical keyword score.
	HybridVectorWeight float64
	// MinResults triggers one category-filterless retry when the merged set
	// is smaller and a category filter was applied.
	MinResults int
	// RerankCandidateCap invokes LLM re-ranking only above this many
	// merged candidates.
	RerankCandidateCap int
	// GroundingEnabled turns the grounding stage off entirely when false;
	// a degenerate GroundingResult is synthesized from retrieval statistics.
	GroundingEnabled bool
	// GroundingFloor is the minimum heuristic confidence for is_grounded
	// in the non-LLM fallback.
	GroundingFloor float64
	// LowConfidenceFloor gates the disclaimer and the unknown-intent exit.
	LowConfidenceFloor float64
	// MaxCitations caps citations per grounding result.
	MaxCitations int
	// LLMTimeout bounds every individual LLM call.
	LLMTimeout time.Duration
	// SearchTimeout bounds every individual vector store lookup.
	SearchTimeout time.Duration
	// MaxExpandedQueries caps the retrieval fan-out.
	MaxExpandedQueries int
	// Debug attaches intermediate results to the response.
	Debug bool
}

// DefaultConfig returns the calibrated pipeline defaults.
func DefaultConfig() Config {
	return Config{
		TopK:                5,
		SimilarityThreshold: 0.35,
		HybridVectorWeight:  0.75,
		MinResults:          3,
		RerankCandidateCap:  15,
		GroundingEnabled:    true,
		GroundingFloor:      0.5,
		LowConfidenceFloor:  0.5,
		MaxCitations:        3,
		LLMTimeout:          20 * time.Second,
		SearchTimeout:       10 * time.Second,
		MaxExpandedQueries:  4,
	}
}
