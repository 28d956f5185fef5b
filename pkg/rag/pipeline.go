package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
	"github.com/kasetlab/agrirag/pkg/store"
)

// Pipeline is the orchestrator. It owns the stage sequence, the early exits
// and the failure boundary; the stages themselves never see each other.
type Pipeline struct {
	memory     *ConversationMemory
	resolver   *HintResolver
	understand *QueryUnderstanding
	retriever  *Retriever
	grounder   *Grounder
	responder  *Responder
	dict       *Dictionaries
	aiClient   ai.AdvisorAIClient
	tracer     Tracer
	cfg        Config
}

// NewPipelineParams contains the dependencies for creating a Pipeline.
// Dict defaults to the built-in dictionaries; Tracer may be nil.
type NewPipelineParams struct {
	Store    store.DocumentStore
	AIClient ai.AdvisorAIClient
	Dict     *Dictionaries
	Tracer   Tracer
	Config   Config
}

func NewPipeline(params NewPipelineParams) *Pipeline {
	dict := params.Dict
	if dict == nil {
		dict = DefaultDictionaries()
	}
	cfg := params.Config

	understand := NewQueryUnderstanding(dict, params.AIClient, cfg)
	understand.tracer = params.Tracer

	return &Pipeline{
		memory:     NewConversationMemory(dict),
		resolver:   NewHintResolver(dict, params.AIClient, cfg.LLMTimeout),
		understand: understand,
		retriever:  NewRetriever(params.Store, params.AIClient, dict, cfg),
		grounder:   NewGrounder(params.AIClient, cfg),
		responder:  NewResponder(params.AIClient, cfg),
		dict:       dict,
		aiClient:   params.AIClient,
		tracer:     params.Tracer,
		cfg:        cfg,
	}
}

// Process answers one user query given the prior conversation turns, oldest
// first. It never returns an error and never panics across the boundary: any
// unexpected failure yields the fixed apology with zero confidence.
func (p *Pipeline) Process(ctx context.Context, query string, history []Turn) (resp *Response) {
	started := time.Now()
	requestID, _ := gonanoid.New()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic recovered", "request_id", requestID, "panic", r)
			resp = &Response{
				Answer:     strPtr(ErrorReply),
				Intent:     IntentUnknown,
				Confidence: 0,
			}
		}
		resp.ProcessingTimeMS = time.Since(started).Milliseconds()
	}()

	query = util.NormalizeText(query)
	if query == "" {
		return &Response{Intent: IntentUnknown, Confidence: 0}
	}

	if p.aiClient != nil {
		p.aiClient.ResetMetrics()
	}

	logger.Info("pipeline started",
		"request_id", requestID,
		"query", util.TruncateRunes(query, 80),
		"history_turns", len(history),
	)

	convCtx := p.memory.Partition(history, query)

	stageStart := time.Now()
	hints := p.resolver.Resolve(ctx, query, convCtx.FormatActive())
	recordStage(p.tracer, "resolve_hints", stageStart, nil)

	if hints.NeedsClarification {
		recordEarlyExit(p.tracer, "resolve_hints", "ambiguous product reference")
		return &Response{
			Answer:     strPtr(fmt.Sprintf(ClarifyTemplate, strings.Join(hints.CandidateProducts, " หรือ "))),
			Intent:     IntentUnknown,
			Confidence: 1.0,
			IsGrounded: true,
		}
	}

	stageStart = time.Now()
	analysis := p.understand.Analyze(ctx, query, convCtx.Format(), hints)
	recordStage(p.tracer, "understand", stageStart, nil)

	if analysis.Intent == IntentGreeting {
		recordEarlyExit(p.tracer, "understand", "greeting")
		return p.finish(ctx, convCtx, analysis, &RetrievalResult{}, &GroundingResult{})
	}

	// Out-of-domain queries with nothing to search for skip retrieval and
	// hand off through the nil-answer sentinel. A domain keyword keeps the
	// query in the pipeline even when classification came back unknown.
	if analysis.Intent == IntentUnknown &&
		analysis.Confidence < p.cfg.LowConfidenceFloor &&
		len(analysis.Entities) == 0 &&
		!ContainsAny(query, p.dict.DomainKeywords) {
		recordEarlyExit(p.tracer, "understand", "out of domain")
		return &Response{Intent: IntentUnknown, Confidence: analysis.Confidence}
	}

	stageStart = time.Now()
	retrieval := p.retriever.Retrieve(ctx, analysis, hints)
	recordStage(p.tracer, "retrieve", stageStart, nil)

	stageStart = time.Now()
	var grounding *GroundingResult
	if p.cfg.GroundingEnabled {
		grounding = p.grounder.Ground(ctx, analysis, retrieval)
	} else {
		grounding = p.degenerateGrounding(retrieval)
		recordFallback(p.tracer, "ground", "grounding disabled, using retrieval statistics")
	}
	recordStage(p.tracer, "ground", stageStart, nil)

	return p.finish(ctx, convCtx, analysis, retrieval, grounding)
}

func (p *Pipeline) finish(ctx context.Context, convCtx ConversationContext, analysis *QueryAnalysis, retrieval *RetrievalResult, grounding *GroundingResult) *Response {
	stageStart := time.Now()
	resp := p.responder.Respond(ctx, analysis, retrieval, grounding, convCtx)
	recordStage(p.tracer, "respond", stageStart, nil)

	if p.cfg.Debug {
		resp.Analysis = analysis
		resp.Retrieval = retrieval
		resp.Grounding = grounding
	}

	var usage ai.ModelMetrics
	if p.aiClient != nil {
		usage = p.aiClient.GetMetrics()
	}

	answered := resp.Answer != nil
	logger.Info("pipeline finished",
		"intent", resp.Intent,
		"confidence", resp.Confidence,
		"grounded", resp.IsGrounded,
		"answered", answered,
		"model_tokens", usage.TotalTokens,
	)
	return resp
}

// degenerateGrounding stands in for the grounding stage when it is disabled:
// the verdict is derived from retrieval statistics alone.
func (p *Pipeline) degenerateGrounding(retrieval *RetrievalResult) *GroundingResult {
	if len(retrieval.Documents) == 0 {
		return &GroundingResult{IsGrounded: false, Confidence: 0}
	}
	return p.grounder.heuristicGround(retrieval)
}
