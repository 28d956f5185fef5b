package rag

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
	"github.com/kasetlab/agrirag/pkg/store"
)

// Retriever fans expanded queries out over the document store, merges the
// per-query result sets and ranks the merged candidates. It never fails the
// request: store errors degrade to an empty per-query result and an empty
// merged set is a legal outcome.
type Retriever struct {
	store    store.DocumentStore
	aiClient ai.AdvisorAIClient
	dict     *Dictionaries
	cfg      Config
}

func NewRetriever(docStore store.DocumentStore, aiClient ai.AdvisorAIClient, dict *Dictionaries, cfg Config) *Retriever {
	return &Retriever{
		store:    docStore,
		aiClient: aiClient,
		dict:     dict,
		cfg:      cfg,
	}
}

// lookupResult keeps the fan-out order so that merge ties resolve to the
// earliest expanded query deterministically.
type lookupResult struct {
	rows []store.DocumentRow
}

// Retrieve runs the full retrieval stage for one analyzed query.
func (r *Retriever) Retrieve(ctx context.Context, analysis *QueryAnalysis, hints Hints) *RetrievalResult {
	keywords := r.searchKeywords(analysis, hints)
	category := r.categoryFilter(analysis)

	merged := r.fanOut(ctx, analysis, keywords, category)

	// A category filter narrows recall hard; when it starves the result set,
	// retry the same fan-out unfiltered and fold the extra rows in.
	if category != "" && len(merged) < r.cfg.MinResults {
		logger.Info("retrieval below minimum with category filter, retrying unfiltered",
			"category", category, "results", len(merged))
		merged = mergeRetrieved(merged, r.fanOut(ctx, analysis, keywords, ""))
	}

	totalRetrieved := len(merged)

	sortByRelevance(merged)

	// LLM re-ranking only pays off when the hybrid ordering has too many
	// candidates to trust; small sets keep their hybrid order.
	if len(merged) > r.cfg.RerankCandidateCap {
		merged = r.rerank(ctx, analysis.OriginalQuery, merged[:r.cfg.RerankCandidateCap])
	}

	if len(merged) > r.cfg.TopK {
		merged = merged[:r.cfg.TopK]
	}

	result := &RetrievalResult{
		Documents:        merged,
		TotalRetrieved:   totalRetrieved,
		TotalAfterRerank: len(merged),
		SourcesUsed:      sourcesOf(merged),
	}
	for _, doc := range merged {
		result.AvgSimilarity += doc.SimilarityScore
		result.AvgRerankScore += doc.RerankScore
	}
	if len(merged) > 0 {
		result.AvgSimilarity /= float64(len(merged))
		result.AvgRerankScore /= float64(len(merged))
	}

	logger.Debug("retrieval finished",
		"retrieved", totalRetrieved,
		"kept", len(merged),
		"avg_similarity", result.AvgSimilarity,
	)
	return result
}

// fanOut runs every (expanded query, source) lookup concurrently and merges
// the row sets. Failed lookups are logged and contribute nothing.
func (r *Retriever) fanOut(ctx context.Context, analysis *QueryAnalysis, keywords []string, category string) []RetrievedDocument {
	queries := analysis.ExpandedQueries
	if len(queries) == 0 {
		queries = []string{analysis.OriginalQuery}
	}
	sources := analysis.RequiredSources
	if len(sources) == 0 {
		sources = []string{store.SourceProducts}
	}

	results := make([]lookupResult, len(queries)*len(sources))
	var group errgroup.Group
	for qi, query := range queries {
		for si, source := range sources {
			idx := qi*len(sources) + si
			query, source := query, source
			group.Go(func() error {
				sCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
				defer cancel()

				categoryFilter := category
				if source == store.SourceFertilizer {
					categoryFilter = ""
				}
				rows, err := r.store.SimilaritySearch(sCtx, store.SearchRequest{
					Query:     query,
					Threshold: r.cfg.SimilarityThreshold,
					Limit:     r.cfg.RerankCandidateCap,
					Source:    source,
					Category:  categoryFilter,
					Keywords:  keywords,
				})
				if err != nil {
					logger.Warn("similarity search failed, skipping",
						"source", source,
						"query", util.TruncateRunes(query, 60),
						"err", err,
					)
					return nil
				}
				results[idx] = lookupResult{rows: rows}
				return nil
			})
		}
	}
	_ = group.Wait()

	rows := make([]store.DocumentRow, 0, len(results)*r.cfg.TopK)
	for _, res := range results {
		rows = append(rows, res.rows...)
	}
	return mergeDocuments(rows, r.cfg.HybridVectorWeight)
}

// searchKeywords gathers the lexical keywords for hybrid scoring: every
// resolved entity plus the hint variants that name the same thing differently.
func (r *Retriever) searchKeywords(analysis *QueryAnalysis, hints Hints) []string {
	seen := make(map[string]struct{}, 8)
	keywords := make([]string, 0, 8)
	add := func(term string) {
		if term == "" {
			return
		}
		key := util.FoldThai(term)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		keywords = append(keywords, term)
	}

	for _, key := range []string{EntityProductName, EntityDiseaseName, EntityPestName, EntityPlantType} {
		add(analysis.Entity(key))
	}
	for _, variant := range hints.DiseaseVariants.Values {
		add(variant)
	}
	for _, synonym := range hints.WeedSynonyms.Values {
		add(synonym)
	}
	for _, term := range hints.ResolvedSlang.Values {
		add(term)
	}
	return keywords
}

// categoryFilter maps the problem-type entity to the product category column.
func (r *Retriever) categoryFilter(analysis *QueryAnalysis) string {
	switch analysis.Entity(EntityProblemType) {
	case "โรคพืช":
		return "ยากำจัดโรคพืช"
	case "แมลงศัตรูพืช":
		return "ยากำจัดแมลง"
	case "วัชพืช":
		return "ยากำจัดวัชพืช"
	default:
		return ""
	}
}

// mergeDocuments deduplicates rows by document id, keeping the highest hybrid
// score per id. Order of first appearance is preserved for equal-score ties
// via the stable sort done by the caller.
func mergeDocuments(rows []store.DocumentRow, vectorWeight float64) []RetrievedDocument {
	byID := make(map[string]int, len(rows))
	merged := make([]RetrievedDocument, 0, len(rows))

	for _, row := range rows {
		hybrid := vectorWeight*row.Similarity + (1-vectorWeight)*row.KeywordScore
		if idx, ok := byID[row.ID]; ok {
			if hybrid > merged[idx].hybridScore {
				merged[idx].SimilarityScore = row.Similarity
				merged[idx].hybridScore = hybrid
			}
			continue
		}
		byID[row.ID] = len(merged)
		merged = append(merged, RetrievedDocument{
			ID:              row.ID,
			Title:           row.Title,
			Content:         row.Content,
			Source:          row.Source,
			SimilarityScore: row.Similarity,
			Metadata:        row.Metadata,
			hybridScore:     hybrid,
		})
	}
	return merged
}

// sortByRelevance orders documents by hybrid score, best first. The sort is
// stable so equal scores keep first-seen order.
func sortByRelevance(docs []RetrievedDocument) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].hybridScore > docs[j].hybridScore
	})
}

func sourcesOf(docs []RetrievedDocument) []string {
	seen := make(map[string]struct{}, 2)
	sources := make([]string, 0, 2)
	for _, doc := range docs {
		if _, ok := seen[doc.Source]; ok {
			continue
		}
		seen[doc.Source] = struct{}{}
		sources = append(sources, doc.Source)
	}
	return sources
}

// mergeRetrieved unions two already-merged document sets, keeping the
// higher-scored copy of each id and the first set's order for ids it owns.
func mergeRetrieved(a, b []RetrievedDocument) []RetrievedDocument {
	byID := make(map[string]int, len(a)+len(b))
	merged := make([]RetrievedDocument, 0, len(a)+len(b))
	for _, doc := range append(append([]RetrievedDocument{}, a...), b...) {
		if idx, ok := byID[doc.ID]; ok {
			if doc.hybridScore > merged[idx].hybridScore {
				merged[idx] = doc
			}
			continue
		}
		byID[doc.ID] = len(merged)
		merged = append(merged, doc)
	}
	return merged
}
