package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/store"
)

// panicAI blows up on the first structured call, standing in for an
// unexpected provider failure deep inside a stage.
type panicAI struct {
	fakeAI
}

func (p *panicAI) GenerateCompletionWithFormat(_ context.Context, _, _, _ string, _ any, _ ...ai.GenerateOption) error {
	panic("provider exploded")
}

func modernDocRows() []store.DocumentRow {
	return []store.DocumentRow{
		{
			ID: "p1", Title: "โมเดิน", Source: store.SourceProducts, Similarity: 0.85,
			Content:  "โมเดิน สารเมทาแลกซิล ใช้กับทุเรียน อัตรา 20 กรัมต่อน้ำ 20 ลิตร",
			Metadata: map[string]string{"product_name": "โมเดิน", "category": "ยากำจัดโรคพืช"},
		},
	}
}

func analysisPayload(intent, product string) string {
	return `{
		"intent": "` + intent + `",
		"confidence": 0.85,
		"entities": {"product_name": "` + product + `", "disease_name": "", "pest_name": "", "plant_type": "", "problem_type": ""},
		"expanded_queries": [],
		"required_sources": ["products"]
	}`
}

const groundedPayload = `{
	"is_grounded": true,
	"confidence": 0.85,
	"citations": [{"doc_id": "p1", "quoted_text": "อัตรา 20 กรัมต่อน้ำ 20 ลิตร", "confidence": 0.9}],
	"ungrounded_claims": [],
	"suggested_answer": "ใช้ 20 กรัมต่อน้ำ 20 ลิตรครับ",
	"relevant_products": ["โมเดิน"]
}`

func newTestPipeline(aiClient ai.AdvisorAIClient, docStore store.DocumentStore, mutate func(*Config)) *Pipeline {
	cfg := DefaultConfig()
	cfg.Debug = true
	if mutate != nil {
		mutate(&cfg)
	}
	return NewPipeline(NewPipelineParams{
		Store:    docStore,
		AIClient: aiClient,
		Config:   cfg,
	})
}

func TestProcessGreeting(t *testing.T) {
	docStore := &fakeStore{}
	p := newTestPipeline(&fakeAI{}, docStore, nil)

	got := p.Process(context.Background(), "สวัสดีครับ", nil)

	if got.Intent != IntentGreeting || got.Answer == nil {
		t.Fatalf("got %+v, want a greeting answer", got)
	}
	if !got.IsGrounded || got.Confidence != 1.0 {
		t.Fatalf("grounded=%v confidence=%v, greetings are trivially grounded at full confidence", got.IsGrounded, got.Confidence)
	}
	if len(docStore.requests) != 0 {
		t.Fatalf("store got %d requests, greetings must not retrieve", len(docStore.requests))
	}
	if got.ProcessingTimeMS < 0 {
		t.Fatalf("ProcessingTimeMS = %d", got.ProcessingTimeMS)
	}
}

func TestProcessGroundedProductQuestion(t *testing.T) {
	aiClient := &fakeAI{
		completion: "โมเดินใช้กับทุเรียนได้ครับ อัตรา 20 กรัมต่อน้ำ 20 ลิตร",
		formatJSON: map[string]string{
			"query_analysis":    analysisPayload("product_inquiry", "โมเดิร์นแบรนด์อื่น"),
			"grounding_verdict": groundedPayload,
		},
	}
	docStore := &fakeStore{rows: map[string][]store.DocumentRow{store.SourceProducts: modernDocRows()}}
	p := newTestPipeline(aiClient, docStore, nil)

	got := p.Process(context.Background(), "โมเดิน ใช้กับทุเรียนได้ไหม", nil)

	if got.Answer == nil || !got.IsGrounded {
		t.Fatalf("got %+v, want a grounded answer", got)
	}
	// The dictionary name is authoritative over whatever the model extracted.
	if got.Analysis.Entity(EntityProductName) != "โมเดิน" {
		t.Fatalf("product = %q, want the dictionary constraint to win", got.Analysis.Entity(EntityProductName))
	}
	if len(got.Citations) != 1 || got.Citations[0].DocID != "p1" {
		t.Fatalf("Citations = %+v, want the retrieved document cited", got.Citations)
	}
	if len(got.SourcesUsed) != 1 || got.SourcesUsed[0] != store.SourceProducts {
		t.Fatalf("SourcesUsed = %v", got.SourcesUsed)
	}
}

func TestProcessCarriedProductFollowUp(t *testing.T) {
	aiClient := &fakeAI{
		completion: "ใช้โมเดิน 20 กรัมต่อน้ำ 20 ลิตรครับ",
		formatJSON: map[string]string{
			"query_analysis":    analysisPayload("usage_instruction", ""),
			"grounding_verdict": groundedPayload,
		},
	}
	docStore := &fakeStore{rows: map[string][]store.DocumentRow{store.SourceProducts: modernDocRows()}}
	p := newTestPipeline(aiClient, docStore, nil)
	history := []Turn{
		{Role: RoleUser, Text: "ทุเรียนเป็นราน้ำค้างใช้อะไรดี"},
		{Role: RoleAssistant, Text: "แนะนำโมเดินครับ", Products: []string{"โมเดิน"}},
	}

	got := p.Process(context.Background(), "ใส่เท่าไหร่", history)

	if got.Answer == nil {
		t.Fatal("Answer = nil, want the usage answer")
	}
	if got.Analysis.Entity(EntityProductName) != "โมเดิน" {
		t.Fatalf("product = %q, want the active product carried over", got.Analysis.Entity(EntityProductName))
	}
}

func TestProcessAmbiguousProductsAskForClarification(t *testing.T) {
	docStore := &fakeStore{}
	p := newTestPipeline(&fakeAI{}, docStore, nil)
	history := []Turn{
		{Role: RoleUser, Text: "ใบทุเรียนมีจุดดำ"},
		{Role: RoleAssistant, Text: "ใช้ได้ทั้งโมเดินและแมนโคเซบครับ", Products: []string{"โมเดิน", "แมนโคเซบ"}},
	}

	got := p.Process(context.Background(), "ใช้ยังไง", history)

	if got.Answer == nil {
		t.Fatal("Answer = nil, want a clarification question")
	}
	for _, want := range []string{"โมเดิน", "แมนโคเซบ", "ตัวไหน"} {
		if !strings.Contains(*got.Answer, want) {
			t.Fatalf("Answer = %q, missing %q", *got.Answer, want)
		}
	}
	if !got.IsGrounded || len(got.Citations) != 0 {
		t.Fatalf("grounded=%v citations=%v, clarifications are grounded with no citations", got.IsGrounded, got.Citations)
	}
	if len(docStore.requests) != 0 {
		t.Fatalf("store got %d requests, ambiguity must exit before retrieval", len(docStore.requests))
	}
}

func TestProcessDomainKeywordReachesRetrieval(t *testing.T) {
	aiClient := &fakeAI{formatJSON: map[string]string{
		"query_analysis": `{
			"intent": "unknown",
			"confidence": 0.2,
			"entities": {"product_name": "", "disease_name": "", "pest_name": "", "plant_type": "", "problem_type": ""},
			"expanded_queries": [],
			"required_sources": ["products"]
		}`,
	}}
	docStore := &fakeStore{}
	p := newTestPipeline(aiClient, docStore, nil)

	p.Process(context.Background(), "ยาไหนดี", nil)

	if len(docStore.requests) == 0 {
		t.Fatal("store got no requests, a domain keyword must keep the query in the pipeline")
	}
}

func TestProcessOutOfDomainDelegates(t *testing.T) {
	p := newTestPipeline(nil, &fakeStore{}, nil)

	got := p.Process(context.Background(), "ช่วยแต่งกลอนให้หน่อยได้ไหม", nil)

	if got.Answer != nil {
		t.Fatalf("Answer = %q, want nil for delegation", *got.Answer)
	}
	if got.Intent != IntentUnknown {
		t.Fatalf("Intent = %q, want unknown", got.Intent)
	}
}

func TestProcessPanicRecovery(t *testing.T) {
	docStore := &fakeStore{rows: map[string][]store.DocumentRow{store.SourceProducts: modernDocRows()}}
	p := newTestPipeline(&panicAI{}, docStore, nil)

	got := p.Process(context.Background(), "โมเดินใช้ยังไง", nil)

	if got.Answer == nil || *got.Answer != ErrorReply {
		t.Fatalf("got %+v, want the fixed apology", got)
	}
	if got.Confidence != 0 {
		t.Fatalf("Confidence = %v, want 0 after recovery", got.Confidence)
	}
}

func TestProcessGroundingDisabled(t *testing.T) {
	aiClient := &fakeAI{
		completion: "ใช้ 20 กรัมต่อน้ำ 20 ลิตรครับ",
		formatJSON: map[string]string{
			"query_analysis": analysisPayload("usage_instruction", "โมเดิน"),
		},
	}
	docStore := &fakeStore{rows: map[string][]store.DocumentRow{store.SourceProducts: modernDocRows()}}
	p := newTestPipeline(aiClient, docStore, func(cfg *Config) {
		cfg.GroundingEnabled = false
	})

	got := p.Process(context.Background(), "โมเดินใช้เท่าไหร่", nil)

	if aiClient.called("grounding_verdict") {
		t.Fatal("grounding model called while disabled")
	}
	if got.Answer == nil || !got.IsGrounded {
		t.Fatalf("got %+v, want the heuristic verdict to ground", got)
	}
}

func TestProcessTrace(t *testing.T) {
	trace := NewPipelineTrace()
	secondary := NewPipelineTrace()
	cfg := DefaultConfig()
	p := NewPipeline(NewPipelineParams{
		Store:    &fakeStore{rows: map[string][]store.DocumentRow{store.SourceProducts: modernDocRows()}},
		AIClient: nil,
		Tracer:   MultiTracer{trace, nil, secondary},
		Config:   cfg,
	})

	p.Process(context.Background(), "โมเดินใช้ยังไง", nil)

	durations := trace.StageDurations()
	for _, stage := range []string{"resolve_hints", "understand", "retrieve", "ground", "respond"} {
		if _, ok := durations[stage]; !ok {
			t.Fatalf("trace missing stage %q in %v", stage, durations)
		}
	}
	if len(secondary.Snapshot().Events) != len(trace.Snapshot().Events) {
		t.Fatal("fan-out tracers received different event counts")
	}
}

func TestProcessEmptyQuery(t *testing.T) {
	p := newTestPipeline(nil, &fakeStore{}, nil)

	got := p.Process(context.Background(), "   ", nil)

	if got.Answer != nil || got.Confidence != 0 {
		t.Fatalf("got %+v, want an empty delegation response", got)
	}
}
