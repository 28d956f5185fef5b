package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
)

const (
	// evidenceTokenBudget bounds the evidence block handed to the grounding
	// and synthesis prompts.
	evidenceTokenBudget  = 3000
	excerptCitationRunes = 160
)

// Grounder verifies that retrieved evidence actually supports an answer to
// the question before anything is generated, and restricts citations to the
// retrieved document ids.
type Grounder struct {
	aiClient ai.AdvisorAIClient
	cfg      Config
}

func NewGrounder(aiClient ai.AdvisorAIClient, cfg Config) *Grounder {
	return &Grounder{aiClient: aiClient, cfg: cfg}
}

type llmCitation struct {
	DocID      string  `json:"doc_id"`
	QuotedText string  `json:"quoted_text" jsonschema_description:"Verbatim excerpt from the cited document"`
	Confidence float64 `json:"confidence"`
}

type llmGrounding struct {
	IsGrounded       bool          `json:"is_grounded"`
	Confidence       float64       `json:"confidence"`
	Citations        []llmCitation `json:"citations"`
	UngroundedClaims []string      `json:"ungrounded_claims"`
	SuggestedAnswer  string        `json:"suggested_answer"`
	RelevantProducts []string      `json:"relevant_products"`
}

// Ground runs the verification stage. It never errors; an LLM failure
// degrades to the retrieval-statistics heuristic.
func (g *Grounder) Ground(ctx context.Context, analysis *QueryAnalysis, retrieval *RetrievalResult) *GroundingResult {
	if len(retrieval.Documents) == 0 {
		return &GroundingResult{IsGrounded: false, Confidence: 0}
	}

	parsed, err := g.verifyWithLLM(ctx, analysis, retrieval)
	if err != nil {
		logger.Warn("grounding degraded to retrieval heuristic", "err", err)
		return g.heuristicGround(retrieval)
	}

	result := &GroundingResult{
		IsGrounded:       parsed.IsGrounded,
		Confidence:       clamp01(parsed.Confidence),
		UngroundedClaims: parsed.UngroundedClaims,
		SuggestedAnswer:  parsed.SuggestedAnswer,
	}
	g.sanitizeCitations(result, parsed.Citations, retrieval.Documents)
	g.filterEntities(result, parsed.RelevantProducts, analysis, retrieval.Documents)
	return result
}

func (g *Grounder) verifyWithLLM(ctx context.Context, analysis *QueryAnalysis, retrieval *RetrievalResult) (*llmGrounding, error) {
	if g.aiClient == nil {
		return nil, ai.ErrNoClient
	}

	evidence := EvidenceBlock(retrieval.Documents, evidenceTokenBudget)
	allowedIDs := make([]string, 0, len(retrieval.Documents))
	for _, doc := range retrieval.Documents {
		allowedIDs = append(allowedIDs, doc.ID)
	}
	allowed := allowedProducts(analysis, retrieval.Documents)

	prompt := fmt.Sprintf(GroundingPrompt,
		analysis.OriginalQuery,
		evidence,
		strings.Join(allowedIDs, ", "),
		strings.Join(allowed, ", "),
	)

	gCtx, cancel := context.WithTimeout(ctx, g.cfg.LLMTimeout)
	defer cancel()

	var parsed llmGrounding
	err := util.RetryErrWithContext(gCtx, 2, func(ctx context.Context) error {
		return g.aiClient.GenerateCompletionWithFormat(
			ctx,
			"grounding_verdict",
			"Verify whether evidence supports answering the question.",
			prompt,
			&parsed,
		)
	})
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

// sanitizeCitations enforces citation soundness: unknown document ids are
// dropped, titles and sources come from the retrieval result rather than the
// model, and the count is capped.
func (g *Grounder) sanitizeCitations(result *GroundingResult, raw []llmCitation, docs []RetrievedDocument) {
	byID := make(map[string]*RetrievedDocument, len(docs))
	for i := range docs {
		byID[docs[i].ID] = &docs[i]
	}

	for _, c := range raw {
		doc, ok := byID[c.DocID]
		if !ok {
			logger.Warn("dropping citation with unknown document id", "doc_id", c.DocID)
			continue
		}
		result.Citations = append(result.Citations, Citation{
			DocID:      doc.ID,
			DocTitle:   doc.Title,
			Source:     doc.Source,
			QuotedText: c.QuotedText,
			Confidence: clamp01(c.Confidence),
		})
		if len(result.Citations) >= g.cfg.MaxCitations {
			break
		}
	}
}

// filterEntities restricts relevant_products to names actually present in the
// evidence or the analysis, then derives the broader entity list.
func (g *Grounder) filterEntities(result *GroundingResult, rawProducts []string, analysis *QueryAnalysis, docs []RetrievedDocument) {
	allowed := make(map[string]struct{})
	for _, name := range allowedProducts(analysis, docs) {
		allowed[util.FoldThai(name)] = struct{}{}
	}

	seen := make(map[string]struct{}, len(rawProducts))
	for _, name := range rawProducts {
		key := util.FoldThai(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		result.RelevantProducts = append(result.RelevantProducts, strings.TrimSpace(name))
	}

	result.RelevantEntities = append(result.RelevantEntities, result.RelevantProducts...)
	for _, key := range []string{EntityDiseaseName, EntityPestName, EntityPlantType} {
		if v := analysis.Entity(key); v != "" {
			result.RelevantEntities = append(result.RelevantEntities, v)
		}
	}
}

// heuristicGround is the non-LLM verdict: grounded when the best few
// similarity scores clear the floor, with verbatim leading excerpts as
// citations.
func (g *Grounder) heuristicGround(retrieval *RetrievalResult) *GroundingResult {
	docs := retrieval.Documents
	top := docs
	if len(top) > 3 {
		top = top[:3]
	}
	avg := 0.0
	for _, doc := range top {
		avg += doc.SimilarityScore
	}
	avg /= float64(len(top))

	result := &GroundingResult{
		IsGrounded: avg >= g.cfg.GroundingFloor,
		Confidence: clamp01(avg),
	}
	if !result.IsGrounded {
		return result
	}
	for _, doc := range top {
		if len(result.Citations) >= g.cfg.MaxCitations {
			break
		}
		result.Citations = append(result.Citations, Citation{
			DocID:      doc.ID,
			DocTitle:   doc.Title,
			Source:     doc.Source,
			QuotedText: util.TruncateRunes(doc.Content, excerptCitationRunes),
			Confidence: doc.SimilarityScore,
		})
	}
	return result
}

// allowedProducts collects product names known from the evidence metadata and
// the analysis, deduplicated under Thai folding.
func allowedProducts(analysis *QueryAnalysis, docs []RetrievedDocument) []string {
	seen := make(map[string]struct{}, len(docs)+1)
	names := make([]string, 0, len(docs)+1)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" {
			return
		}
		key := util.FoldThai(name)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		names = append(names, name)
	}

	for _, doc := range docs {
		add(doc.Metadata["product_name"])
	}
	add(analysis.Entity(EntityProductName))
	return names
}

// EvidenceBlock renders retrieved documents as the evidence section shared by
// the grounding and synthesis prompts, bounded by an overall token budget
// split evenly across documents.
func EvidenceBlock(docs []RetrievedDocument, tokenBudget int) string {
	if len(docs) == 0 {
		return "(no evidence)"
	}
	perDoc := tokenBudget / len(docs)

	var b strings.Builder
	for _, doc := range docs {
		fmt.Fprintf(&b, "[%s] %s (source: %s)\n", doc.ID, doc.Title, doc.Source)
		for _, key := range []string{"product_name", "active_ingredient", "category", "usage_rate", "formula"} {
			if v := doc.Metadata[key]; v != "" {
				fmt.Fprintf(&b, "%s: %s\n", key, v)
			}
		}
		b.WriteString(truncateTokens(doc.Content, perDoc))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncateTokens cuts text to at most maxTokens under the o200k_base
// encoding. When the tokenizer is unavailable it falls back to a rune bound
// that approximates the same budget for Thai text.
func truncateTokens(text string, maxTokens int) string {
	enc, err := tiktoken.GetEncoding("o200k_base")
	if err != nil {
		return util.TruncateRunes(text, maxTokens*2)
	}
	tokens := enc.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return enc.Decode(tokens[:maxTokens])
}
