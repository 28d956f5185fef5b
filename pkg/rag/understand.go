package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
	"github.com/kasetlab/agrirag/pkg/store"
)

// QueryUnderstanding classifies intent, extracts entities and expands the
// query into alternate search phrasings. The LLM path and the keyword
// fallback produce the same QueryAnalysis shape; hints always get the final
// word on CONSTRAINT entities.
type QueryUnderstanding struct {
	dict     *Dictionaries
	aiClient ai.AdvisorAIClient
	tracer   Tracer
	cfg      Config
}

// NewQueryUnderstanding creates the understanding stage. aiClient may be nil,
// which selects the keyword fallback unconditionally.
func NewQueryUnderstanding(dict *Dictionaries, aiClient ai.AdvisorAIClient, cfg Config) *QueryUnderstanding {
	return &QueryUnderstanding{
		dict:     dict,
		aiClient: aiClient,
		cfg:      cfg,
	}
}

type llmAnalysisEntities struct {
	ProductName string `json:"product_name" jsonschema_description:"Product or brand name, empty if none"`
	DiseaseName string `json:"disease_name" jsonschema_description:"Plant disease name, empty if none"`
	PestName    string `json:"pest_name" jsonschema_description:"Pest name, empty if none"`
	PlantType   string `json:"plant_type" jsonschema_description:"Crop name, empty if none"`
	ProblemType string `json:"problem_type" jsonschema_description:"Problem category, empty if none"`
}

type llmAnalysis struct {
	Intent          string              `json:"intent" jsonschema_description:"One of the documented intent labels"`
	Confidence      float64             `json:"confidence" jsonschema_description:"Intent certainty between 0 and 1"`
	Entities        llmAnalysisEntities `json:"entities"`
	ExpandedQueries []string            `json:"expanded_queries" jsonschema_description:"2-4 alternate Thai phrasings for semantic search"`
	RequiredSources []string            `json:"required_sources" jsonschema_description:"Logical sources to search: products and/or npk"`
}

// Analyze produces the immutable QueryAnalysis for this request. It never
// returns an error; any LLM failure degrades to the keyword fallback.
func (u *QueryUnderstanding) Analyze(ctx context.Context, query string, convContext string, hints Hints) *QueryAnalysis {
	if u.dict.IsGreeting(query) {
		return &QueryAnalysis{
			OriginalQuery:   query,
			Intent:          IntentGreeting,
			Confidence:      1.0,
			Entities:        map[string]string{},
			ExpandedQueries: []string{query},
		}
	}

	analysis := u.analyzeWithLLM(ctx, query, convContext, hints)
	if analysis == nil {
		analysis = u.fallbackAnalyze(query, hints)
	}

	u.applyHintOverrides(analysis, hints)
	u.mergeExpansions(analysis, hints)
	u.normalizeSources(analysis, hints)

	return analysis
}

func (u *QueryUnderstanding) analyzeWithLLM(ctx context.Context, query string, convContext string, hints Hints) *QueryAnalysis {
	if u.aiClient == nil {
		return nil
	}

	contextBlock := convContext
	if contextBlock == "" {
		contextBlock = "(ไม่มีบทสนทนาก่อนหน้า)"
	}
	annotations := strings.Join(hints.Annotations(), "\n")
	if annotations == "" {
		annotations = "(none)"
	}
	prompt := fmt.Sprintf(AnalyzePrompt, contextBlock, annotations, query)

	rCtx, cancel := context.WithTimeout(ctx, u.cfg.LLMTimeout)
	defer cancel()

	var parsed llmAnalysis
	err := util.RetryErrWithContext(rCtx, 2, func(ctx context.Context) error {
		return u.aiClient.GenerateCompletionWithFormat(
			ctx,
			"query_analysis",
			"Classify and expand a farmer question.",
			prompt,
			&parsed,
		)
	})
	if err != nil {
		logger.Warn("query analysis degraded to keyword fallback", "err", err)
		return nil
	}

	entities := make(map[string]string, 5)
	setEntity(entities, EntityProductName, parsed.Entities.ProductName)
	setEntity(entities, EntityDiseaseName, parsed.Entities.DiseaseName)
	setEntity(entities, EntityPestName, parsed.Entities.PestName)
	setEntity(entities, EntityPlantType, parsed.Entities.PlantType)
	setEntity(entities, EntityProblemType, parsed.Entities.ProblemType)

	return &QueryAnalysis{
		OriginalQuery:   query,
		Intent:          normalizeIntent(parsed.Intent),
		Confidence:      clamp01(parsed.Confidence),
		Entities:        entities,
		ExpandedQueries: parsed.ExpandedQueries,
		RequiredSources: parsed.RequiredSources,
	}
}

// fallbackAnalyze is the deterministic keyword classification used when the
// LLM is unavailable or returned malformed output. Confidence is capped below
// the LLM path since keyword tables see far less context.
func (u *QueryUnderstanding) fallbackAnalyze(query string, hints Hints) *QueryAnalysis {
	d := u.dict

	entities := make(map[string]string, 5)
	setEntity(entities, EntityProductName, hints.ProductName.Value)
	setEntity(entities, EntityDiseaseName, hints.DiseaseName.Value)
	setEntity(entities, EntityPestName, hints.PestName.Value)
	setEntity(entities, EntityPlantType, hints.PlantType.Value)
	setEntity(entities, EntityProblemType, hints.ProblemType.Value)

	intent := IntentUnknown
	confidence := 0.3
	switch {
	case ContainsAny(query, d.RecommendKeywords):
		intent = IntentRecommendation
		confidence = 0.6
	case entities[EntityProductName] != "" && ContainsAny(query, d.UsageKeywords):
		intent = IntentUsageInstruction
		confidence = 0.65
	case entities[EntityDiseaseName] != "" || entities[EntityPestName] != "" || len(hints.PossibleDiseases.Values) > 0:
		intent = IntentDiseaseDiagnosis
		confidence = 0.6
	case hints.ProblemType.Value == "ปุ๋ย" || util.ContainsFold(query, "ปุ๋ย"):
		intent = IntentFertilizerAdvice
		confidence = 0.6
	case entities[EntityProductName] != "":
		intent = IntentProductInquiry
		confidence = 0.6
	case ContainsAny(query, d.UsageKeywords) && entities[EntityProductName] == "" && hints.ProductName.Present():
		intent = IntentUsageInstruction
		confidence = 0.55
	case ContainsAny(query, d.DomainKeywords):
		intent = IntentGeneralAgri
		confidence = 0.5
	}

	return &QueryAnalysis{
		OriginalQuery: query,
		Intent:        intent,
		Confidence:    confidence,
		Entities:      entities,
	}
}

// applyHintOverrides enforces hint precedence after parsing: CONSTRAINT
// values always replace whatever the model produced for the same key (the
// override is logged); HINT and LLM-HINT values only fill gaps.
func (u *QueryUnderstanding) applyHintOverrides(analysis *QueryAnalysis, hints Hints) {
	if analysis.Entities == nil {
		analysis.Entities = make(map[string]string, 5)
	}

	apply := func(key string, hint Hint) {
		if !hint.Present() {
			return
		}
		current := analysis.Entities[key]
		if hint.Tier == TierConstraint {
			if current != "" && current != hint.Value {
				logger.Info("constraint hint overrode model entity",
					"key", key, "model", current, "hint", hint.Value)
				if u.tracer != nil {
					u.tracer.Record(TraceEvent{
						Kind:   TraceEventHintOverride,
						Stage:  "understand",
						Detail: key,
					})
				}
			}
			analysis.Entities[key] = hint.Value
			return
		}
		if current == "" {
			analysis.Entities[key] = hint.Value
		}
	}

	apply(EntityProductName, hints.ProductName)
	apply(EntityDiseaseName, hints.DiseaseName)
	apply(EntityPestName, hints.PestName)
	apply(EntityPlantType, hints.PlantType)
	apply(EntityProblemType, hints.ProblemType)
}

// mergeExpansions folds extra search terms from the hints into the expanded
// queries without duplication and guarantees the non-empty default.
func (u *QueryUnderstanding) mergeExpansions(analysis *QueryAnalysis, hints Hints) {
	maxQueries := u.cfg.MaxExpandedQueries
	if maxQueries <= 0 {
		maxQueries = 4
	}

	merged := make([]string, 0, maxQueries)
	seen := make(map[string]struct{}, maxQueries)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || len(merged) >= maxQueries {
			return
		}
		key := util.FoldThai(q)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		merged = append(merged, q)
	}

	add(analysis.OriginalQuery)
	for _, q := range analysis.ExpandedQueries {
		add(q)
	}
	for _, term := range hints.ExtraSearchTerms.Values {
		add(term)
	}
	for _, variant := range hints.DiseaseVariants.Values {
		add(variant)
	}

	analysis.ExpandedQueries = merged
}

// normalizeSources validates the model's source list against the known
// vocabulary and derives a default from the entities when empty.
func (u *QueryUnderstanding) normalizeSources(analysis *QueryAnalysis, hints Hints) {
	valid := make([]string, 0, 2)
	seen := make(map[string]struct{}, 2)
	add := func(source string) {
		if source != store.SourceProducts && source != store.SourceFertilizer {
			return
		}
		if _, ok := seen[source]; ok {
			return
		}
		seen[source] = struct{}{}
		valid = append(valid, source)
	}

	for _, source := range analysis.RequiredSources {
		add(source)
	}

	if len(valid) == 0 {
		if analysis.Intent == IntentFertilizerAdvice || hints.ProblemType.Value == "ปุ๋ย" {
			add(store.SourceFertilizer)
		}
		add(store.SourceProducts)
	}

	analysis.RequiredSources = valid
}

func setEntity(entities map[string]string, key, value string) {
	value = strings.TrimSpace(value)
	if value != "" {
		entities[key] = value
	}
}

func normalizeIntent(raw string) Intent {
	switch Intent(strings.TrimSpace(strings.ToLower(raw))) {
	case IntentGreeting:
		return IntentGreeting
	case IntentProductInquiry:
		return IntentProductInquiry
	case IntentRecommendation:
		return IntentRecommendation
	case IntentUsageInstruction:
		return IntentUsageInstruction
	case IntentDiseaseDiagnosis:
		return IntentDiseaseDiagnosis
	case IntentFertilizerAdvice:
		return IntentFertilizerAdvice
	case IntentGeneralAgri:
		return IntentGeneralAgri
	default:
		return IntentUnknown
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
