package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
)

const rerankExcerptRunes = 200

type llmRerank struct {
	Order []int `json:"order" jsonschema_description:"All candidate indexes, most relevant first"`
}

// rerank asks the model for a permutation of the candidate indexes and
// applies it. Any failure, including a malformed permutation, keeps the
// hybrid order untouched. Rerank scores are positional after a successful
// pass so downstream averages reflect the model's ordering.
func (r *Retriever) rerank(ctx context.Context, query string, docs []RetrievedDocument) []RetrievedDocument {
	if r.aiClient == nil || len(docs) < 2 {
		return docs
	}

	var candidates strings.Builder
	for i, doc := range docs {
		fmt.Fprintf(&candidates, "[%d] %s: %s\n", i, doc.Title, util.TruncateRunes(doc.Content, rerankExcerptRunes))
	}

	rCtx, cancel := context.WithTimeout(ctx, r.cfg.LLMTimeout)
	defer cancel()

	var parsed llmRerank
	err := r.aiClient.GenerateCompletionWithFormat(
		rCtx,
		"rerank",
		"Order retrieved documents by relevance.",
		fmt.Sprintf(RerankPrompt, query, candidates.String()),
		&parsed,
		ai.WithTemperature(0),
	)
	if err != nil {
		logger.Warn("rerank failed, keeping hybrid order", "err", err)
		return docs
	}

	order, ok := validPermutation(parsed.Order, len(docs))
	if !ok {
		logger.Warn("rerank returned invalid permutation, keeping hybrid order", "order", parsed.Order)
		return docs
	}

	ranked := make([]RetrievedDocument, 0, len(docs))
	for pos, idx := range order {
		doc := docs[idx]
		doc.RerankScore = 1.0 - float64(pos)/float64(len(order))
		ranked = append(ranked, doc)
	}
	return ranked
}

// validPermutation checks that order contains each index in [0,n) exactly once.
func validPermutation(order []int, n int) ([]int, bool) {
	if len(order) != n {
		return nil, false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return nil, false
		}
		seen[idx] = true
	}
	return order, true
}
