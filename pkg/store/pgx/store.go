package pgx

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
	"github.com/kasetlab/agrirag/pkg/store"
)

// AdvisorDBStore implements store.DocumentStore on top of Postgres with the
// pgvector extension. Query embeddings are generated through the injected AI
// client; lexical keyword hits are counted in SQL for hybrid scoring.
type AdvisorDBStore struct {
	conn     *pgxpool.Pool
	aiClient ai.AdvisorAIClient
}

// NewAdvisorDBStoreParams contains the dependencies for creating an AdvisorDBStore.
type NewAdvisorDBStoreParams struct {
	Conn     *pgxpool.Pool
	AIClient ai.AdvisorAIClient
}

// NewAdvisorDBStore creates a document store backed by the given pool.
// The pool must have pgvector types registered (see internal/server).
func NewAdvisorDBStore(params NewAdvisorDBStoreParams) *AdvisorDBStore {
	return &AdvisorDBStore{
		conn:     params.Conn,
		aiClient: params.AIClient,
	}
}

// Sources lists the logical sources this store can search.
func (s *AdvisorDBStore) Sources() []string {
	return []string{store.SourceProducts, store.SourceFertilizer}
}

// SimilaritySearch embeds the request query and runs a cosine-similarity
// lookup against the requested source table. Rows below the threshold are
// filtered in SQL. No matching rows is not an error.
func (s *AdvisorDBStore) SimilaritySearch(
	ctx context.Context,
	req store.SearchRequest,
) ([]store.DocumentRow, error) {
	table, adapt, err := sourceTable(req.Source)
	if err != nil {
		return nil, err
	}

	embedding, err := util.RetryWithContext(ctx, 2, func(ctx context.Context) ([]float32, error) {
		return s.aiClient.GenerateEmbedding(ctx, []byte(req.Query))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		kw = util.SanitizePostgresText(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}

	args := []any{pgvector.NewVector(embedding), req.Threshold, keywords, limit}
	categoryClause := ""
	if req.Category != "" {
		categoryClause = "AND metadata->>'category' = $5"
		args = append(args, req.Category)
	}

	// keyword_hits counts case-insensitive containment per keyword; the
	// retrieval agent normalizes it into a [0,1] lexical score.
	sql := fmt.Sprintf(`
		SELECT
			public_id,
			title,
			content,
			metadata,
			1 - (embedding <=> $1) AS similarity,
			(
				SELECT COUNT(*)
				FROM unnest($3::text[]) AS kw
				WHERE content ILIKE '%%' || kw || '%%'
				   OR title ILIKE '%%' || kw || '%%'
			) AS keyword_hits
		FROM %s
		WHERE 1 - (embedding <=> $1) >= $2
		%s
		ORDER BY embedding <=> $1
		LIMIT $4`, table, categoryClause)

	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("similarity search on %s failed: %w", table, err)
	}
	defer rows.Close()

	out := make([]store.DocumentRow, 0, limit)
	for rows.Next() {
		var (
			id, title, content string
			rawMetadata        map[string]any
			similarity         float64
			keywordHits        int64
		)
		if err := rows.Scan(&id, &title, &content, &rawMetadata, &similarity, &keywordHits); err != nil {
			return nil, err
		}

		keywordScore := 0.0
		if len(keywords) > 0 {
			keywordScore = float64(keywordHits) / float64(len(keywords))
		}

		out = append(out, store.DocumentRow{
			ID:           id,
			Title:        title,
			Content:      content,
			Source:       req.Source,
			Similarity:   similarity,
			KeywordScore: keywordScore,
			Metadata:     adapt(rawMetadata),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	logger.Debug("similarity search finished",
		"source", req.Source,
		"query", util.TruncateRunes(req.Query, 60),
		"rows", len(out),
	)
	return out, nil
}

func sourceTable(source string) (string, metadataAdapter, error) {
	switch source {
	case store.SourceProducts:
		return "product_documents", adaptProductMetadata, nil
	case store.SourceFertilizer:
		return "npk_documents", adaptFertilizerMetadata, nil
	default:
		return "", nil, fmt.Errorf("unknown source %q", source)
	}
}
