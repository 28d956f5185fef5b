package rag

import (
	"context"
	"fmt"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
)

// HintTier ranks how authoritative a hint is. Higher tiers always win over
// lower tiers; the resolver itself never promotes an LLM-extracted value past
// TierLLM.
type HintTier int

const (
	TierNone HintTier = iota
	// TierLLM marks values from the LLM entity-extraction fallback; later
	// stages may override them freely.
	TierLLM
	// TierHint marks advisory signals that only fill gaps the understanding
	// stage left empty.
	TierHint
	// TierConstraint marks dictionary matches that must not be overridden.
	TierConstraint
)

func (t HintTier) String() string {
	switch t {
	case TierConstraint:
		return "CONSTRAINT"
	case TierHint:
		return "HINT"
	case TierLLM:
		return "LLM-HINT"
	default:
		return "NONE"
	}
}

// Hint is a single-valued entity signal with its provenance tier.
type Hint struct {
	Value string
	Tier  HintTier
}

// Present reports whether the hint carries a value.
func (h Hint) Present() bool {
	return h.Value != "" && h.Tier != TierNone
}

// ListHint is a multi-valued signal with one shared provenance tier.
type ListHint struct {
	Values []string
	Tier   HintTier
}

// Hints is the typed hint bag produced by the resolver. One fixed field per
// vocabulary key; override precedence is enforced through the tiers rather
// than by map convention.
type Hints struct {
	ProductName Hint
	DiseaseName Hint
	PlantType   Hint
	PestName    Hint
	ProblemType Hint

	DiseaseVariants  ListHint
	WeedSynonyms     ListHint
	ResolvedSlang    ListHint
	PossibleDiseases ListHint
	ExtraSearchTerms ListHint

	// CandidateProducts is set together with NeedsClarification when several
	// recent-turn products are plausible referents and the pipeline must ask
	// instead of guessing.
	CandidateProducts  []string
	NeedsClarification bool
}

// HasDictionaryEntity reports whether any specific entity was found in the
// current query text itself (not carried from context, not LLM-extracted).
func (h *Hints) HasDictionaryEntity() bool {
	for _, hint := range []Hint{h.ProductName, h.DiseaseName, h.PlantType, h.PestName} {
		if hint.Present() && hint.Tier == TierConstraint {
			return true
		}
	}
	return false
}

// Annotations renders the hints as prompt lines, tier first, so the
// understanding model sees canonical entities verbatim and cannot silently
// relabel them.
func (h *Hints) Annotations() []string {
	lines := make([]string, 0, 8)
	appendHint := func(key string, hint Hint) {
		if hint.Present() {
			lines = append(lines, fmt.Sprintf("%s: %s = %s", hint.Tier, key, hint.Value))
		}
	}
	appendList := func(key string, hint ListHint) {
		if len(hint.Values) == 0 {
			return
		}
		for _, v := range hint.Values {
			lines = append(lines, fmt.Sprintf("%s: %s = %s", hint.Tier, key, v))
		}
	}

	appendHint(EntityProductName, h.ProductName)
	appendHint(EntityDiseaseName, h.DiseaseName)
	appendHint(EntityPlantType, h.PlantType)
	appendHint(EntityPestName, h.PestName)
	appendHint(EntityProblemType, h.ProblemType)
	appendList("possible_diseases", h.PossibleDiseases)
	appendList("resolved_slang", h.ResolvedSlang)
	appendList("extra_search_terms", h.ExtraSearchTerms)
	return lines
}

// minLLMFallbackRunes is the query length below which the LLM
// entity-extraction fallback is not worth a network call.
const minLLMFallbackRunes = 12

// shortFollowUpRunes bounds what counts as a short follow-up for the
// ambiguity short-circuit.
const shortFollowUpRunes = 20

// HintResolver scans query text and conversation context against the curated
// dictionaries and produces a typed hint bag. It is a pure function over the
// static tables plus at most one LLM fallback call.
type HintResolver struct {
	dict       *Dictionaries
	aiClient   ai.AdvisorAIClient
	llmTimeout time.Duration
}

// NewHintResolver creates a resolver. aiClient may be nil, which disables the
// entity-extraction fallback.
func NewHintResolver(dict *Dictionaries, aiClient ai.AdvisorAIClient, llmTimeout time.Duration) *HintResolver {
	return &HintResolver{
		dict:       dict,
		aiClient:   aiClient,
		llmTimeout: llmTimeout,
	}
}

// Resolve produces the hint bag for query given the formatted conversation
// context. It never returns an error; a failed LLM fallback simply leaves the
// LLM-tier fields empty.
func (r *HintResolver) Resolve(ctx context.Context, query string, convContext string) Hints {
	hints := Hints{}
	d := r.dict

	if products := d.MatchProducts(query); len(products) > 0 {
		hints.ProductName = Hint{Value: products[0], Tier: TierConstraint}
	}

	if canonical, variant := d.MatchDisease(query); canonical != "" {
		hints.DiseaseName = Hint{Value: canonical, Tier: TierConstraint}
		hints.DiseaseVariants = ListHint{Values: d.VariantsFor(canonical), Tier: TierConstraint}
		if variant != canonical {
			logger.Debug("canonicalized disease spelling", "variant", variant, "canonical", canonical)
		}
	}

	if pest := d.MatchPest(query); pest != "" {
		hints.PestName = Hint{Value: pest, Tier: TierConstraint}
	}
	if plant := d.MatchPlant(query); plant != "" {
		hints.PlantType = Hint{Value: plant, Tier: TierConstraint}
	}

	r.resolveCategorySignals(query, &hints)
	r.resolveCarryOver(query, convContext, &hints)

	if !hints.HasDictionaryEntity() &&
		utf8.RuneCountInString(util.NormalizeText(query)) >= minLLMFallbackRunes {
		r.resolveWithLLM(ctx, query, &hints)
	}

	return hints
}

// resolveCategorySignals fills the soft, category-only hints: problem type,
// symptom-derived disease candidates, slang resolution and weed synonyms.
func (r *HintResolver) resolveCategorySignals(query string, hints *Hints) {
	d := r.dict

	types := make([]string, 0, len(d.ProblemTypeKeywords))
	for problemType := range d.ProblemTypeKeywords {
		types = append(types, problemType)
	}
	sort.Strings(types)
	for _, problemType := range types {
		if ContainsAny(query, d.ProblemTypeKeywords[problemType]) {
			hints.ProblemType = Hint{Value: problemType, Tier: TierHint}
			break
		}
	}

	possible := make([]string, 0, 2)
	seen := make(map[string]struct{})
	symptoms := make([]string, 0, len(d.SymptomPathogens))
	for symptom := range d.SymptomPathogens {
		symptoms = append(symptoms, symptom)
	}
	sort.Strings(symptoms)
	for _, symptom := range symptoms {
		if !util.ContainsFold(query, symptom) {
			continue
		}
		for _, pathogen := range d.SymptomPathogens[symptom] {
			if _, ok := seen[pathogen]; ok {
				continue
			}
			seen[pathogen] = struct{}{}
			possible = append(possible, pathogen)
		}
	}
	if len(possible) > 0 {
		hints.PossibleDiseases = ListHint{Values: possible, Tier: TierHint}
	}

	extra := make([]string, 0, 4)
	slangTerms := make([]string, 0, len(d.FarmerSlang))
	for slang := range d.FarmerSlang {
		slangTerms = append(slangTerms, slang)
	}
	sort.Strings(slangTerms)
	resolved := make([]string, 0, 2)
	for _, slang := range slangTerms {
		if util.ContainsFold(query, slang) {
			formal := d.FarmerSlang[slang]
			resolved = append(resolved, formal)
			extra = append(extra, formal)
		}
	}
	if len(resolved) > 0 {
		hints.ResolvedSlang = ListHint{Values: resolved, Tier: TierHint}
	}

	weeds := make([]string, 0, len(d.WeedSynonyms))
	for weed := range d.WeedSynonyms {
		weeds = append(weeds, weed)
	}
	sort.Strings(weeds)
	synonyms := make([]string, 0, 2)
	for _, weed := range weeds {
		if util.ContainsFold(query, weed) {
			synonyms = append(synonyms, d.WeedSynonyms[weed]...)
			extra = append(extra, d.WeedSynonyms[weed]...)
		}
	}
	if len(synonyms) > 0 {
		hints.WeedSynonyms = ListHint{Values: synonyms, Tier: TierHint}
	}
	if len(extra) > 0 {
		hints.ExtraSearchTerms = ListHint{Values: extra, Tier: TierHint}
	}
}

// resolveCarryOver validates whether a product from the conversation context
// may be carried into the current turn. Stale topic bleed-through is the
// costliest resolver mistake, so the rules here fail toward dropping.
func (r *HintResolver) resolveCarryOver(query string, convContext string, hints *Hints) {
	if hints.ProductName.Present() {
		// The query names a product literally; context cannot override it.
		return
	}
	if convContext == "" {
		return
	}

	ctxProducts := r.dict.MatchProducts(convContext)
	if len(ctxProducts) == 0 {
		return
	}

	newTopic := hints.DiseaseName.Present() || hints.PestName.Present() || hints.PlantType.Present()
	shortFollowUp := utf8.RuneCountInString(util.NormalizeText(query)) <= shortFollowUpRunes

	if len(ctxProducts) >= 2 {
		if shortFollowUp && !newTopic {
			hints.CandidateProducts = ctxProducts
			hints.NeedsClarification = true
			logger.Info("ambiguous product reference, requesting clarification",
				"candidates", ctxProducts)
		}
		return
	}

	if newTopic {
		logger.Debug("dropped carried product, query introduces a new topic",
			"product", ctxProducts[0])
		return
	}

	hasReference := ContainsAny(query, r.dict.ReferencePhrases)
	hasActionSignal := ContainsAny(query, r.dict.UsageKeywords) ||
		ContainsAny(query, r.dict.RecommendKeywords) ||
		ContainsAny(query, r.dict.DomainKeywords)
	if !hasReference && !hasActionSignal {
		logger.Debug("dropped carried product, query is vague with no reference phrase",
			"product", ctxProducts[0])
		return
	}

	hints.ProductName = Hint{Value: ctxProducts[0], Tier: TierHint}
}

// llmEntities is the structured output contract of the entity-extraction
// fallback.
type llmEntities struct {
	ProductName string `json:"product_name" jsonschema_description:"Agrochemical product or brand name mentioned in the query, empty if none"`
	DiseaseName string `json:"disease_name" jsonschema_description:"Plant disease named in the query, empty if none"`
	PestName    string `json:"pest_name" jsonschema_description:"Insect or animal pest named in the query, empty if none"`
	PlantType   string `json:"plant_type" jsonschema_description:"Crop or plant named in the query, empty if none"`
}

func (r *HintResolver) resolveWithLLM(ctx context.Context, query string, hints *Hints) {
	if r.aiClient == nil {
		return
	}

	rCtx, cancel := context.WithTimeout(ctx, r.llmTimeout)
	defer cancel()

	var extracted llmEntities
	prompt := fmt.Sprintf(EntityExtractionPrompt, query)
	err := r.aiClient.GenerateCompletionWithFormat(
		rCtx,
		"entity_extraction",
		"Extract agricultural entities from a farmer question.",
		prompt,
		&extracted,
	)
	if err != nil {
		logger.Warn("entity extraction fallback failed", "err", err)
		return
	}

	fill := func(target *Hint, value string) {
		if !target.Present() && util.NormalizeText(value) != "" {
			*target = Hint{Value: util.NormalizeText(value), Tier: TierLLM}
		}
	}
	fill(&hints.ProductName, extracted.ProductName)
	fill(&hints.DiseaseName, extracted.DiseaseName)
	fill(&hints.PestName, extracted.PestName)
	fill(&hints.PlantType, extracted.PlantType)
}
