package rag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/logger"
)

// metadataMatchFloor is the minimum confidence granted when the asked product
// name literally matches a retrieved document's structured metadata. A
// verbatim catalog hit should never be presented as uncertain.
const metadataMatchFloor = 0.75

// Responder turns the grounding verdict into the final user-facing answer.
// Fixed-message branches come first; only grounded evidence reaches the
// synthesis model.
type Responder struct {
	aiClient ai.AdvisorAIClient
	cfg      Config
}

func NewResponder(aiClient ai.AdvisorAIClient, cfg Config) *Responder {
	return &Responder{aiClient: aiClient, cfg: cfg}
}

// Respond builds the Response for one request. Conv carries the active
// conversation turns for multi-turn synthesis. A nil Answer means the query
// should be handed to a general conversational handler instead.
func (r *Responder) Respond(ctx context.Context, analysis *QueryAnalysis, retrieval *RetrievalResult, grounding *GroundingResult, conv ConversationContext) *Response {
	resp := &Response{
		Intent:      analysis.Intent,
		SourcesUsed: retrieval.SourcesUsed,
	}

	if analysis.Intent == IntentGreeting {
		resp.Answer = strPtr(pickGreeting(analysis.OriginalQuery))
		resp.Confidence = 1.0
		resp.IsGrounded = true
		return resp
	}

	if len(retrieval.Documents) == 0 {
		return r.noDataResponse(analysis, resp)
	}

	// A verbatim catalog hit overrules an ungrounded verdict: the product the
	// user asked about is literally in the evidence, so answer from it.
	metadataMatch := r.hasMetadataMatch(analysis, retrieval)
	if !grounding.IsGrounded && !metadataMatch {
		return r.noDataResponse(analysis, resp)
	}

	confidence := grounding.Confidence
	if metadataMatch && confidence < metadataMatchFloor {
		logger.Info("raising confidence on literal metadata match",
			"product", analysis.Entity(EntityProductName),
			"grounded", grounding.IsGrounded,
			"from", confidence, "to", metadataMatchFloor)
		confidence = metadataMatchFloor
	}

	answer := r.synthesize(ctx, analysis, retrieval, grounding, conv)
	if answer == "" {
		resp.Answer = strPtr(ErrorReply)
		resp.Confidence = 0
		return resp
	}

	answer = stripMarkup(answer)
	if confidence < r.cfg.LowConfidenceFloor {
		answer = withDisclaimer(answer)
	}

	resp.Answer = strPtr(answer)
	resp.Confidence = confidence
	resp.Citations = grounding.Citations
	resp.IsGrounded = true
	return resp
}

// noDataResponse covers the not-grounded exits. Domain intents get a fixed
// Thai apology; out-of-domain and unclassified queries are delegated to the
// general handler via the nil answer sentinel.
func (r *Responder) noDataResponse(analysis *QueryAnalysis, resp *Response) *Response {
	if analysis.Intent == IntentGeneralAgri || analysis.Intent == IntentUnknown {
		resp.Answer = nil
		resp.Confidence = analysis.Confidence
		return resp
	}

	reply, ok := NoDataReplies[analysis.Intent]
	if !ok {
		reply = NoDataDefaultReply
	}
	resp.Answer = strPtr(reply)
	resp.Confidence = analysis.Confidence
	return resp
}

// hasMetadataMatch reports whether the asked product name equals a retrieved
// document's structured product name under Thai folding.
func (r *Responder) hasMetadataMatch(analysis *QueryAnalysis, retrieval *RetrievalResult) bool {
	product := analysis.Entity(EntityProductName)
	if product == "" {
		return false
	}
	want := util.FoldThai(product)
	for _, doc := range retrieval.Documents {
		if name := doc.Metadata["product_name"]; name != "" && util.FoldThai(name) == want {
			return true
		}
	}
	return false
}

// synthesize produces the Thai answer text from the evidence. The active
// conversation turns go to the model as chat messages with the current query
// last, so follow-up phrasing resolves against the real dialogue. Preference
// order: the synthesis model, then the grounding stage's suggested answer,
// then nothing.
func (r *Responder) synthesize(ctx context.Context, analysis *QueryAnalysis, retrieval *RetrievalResult, grounding *GroundingResult, conv ConversationContext) string {
	suggested := strings.TrimSpace(grounding.SuggestedAnswer)
	if r.aiClient == nil {
		return suggested
	}

	evidence := EvidenceBlock(retrieval.Documents, evidenceTokenBudget)
	system := fmt.Sprintf(AnswerSystemPrompt, evidence)

	messages := make([]ai.ChatMessage, 0, len(conv.Active)+1)
	for _, turn := range conv.Active {
		messages = append(messages, ai.ChatMessage{Role: turn.Role, Message: turn.Text})
	}
	messages = append(messages, ai.ChatMessage{Role: RoleUser, Message: analysis.OriginalQuery})

	sCtx, cancel := context.WithTimeout(ctx, r.cfg.LLMTimeout)
	defer cancel()

	answer, err := r.aiClient.GenerateChat(
		sCtx,
		messages,
		ai.WithSystemPrompts(system),
		ai.WithTemperature(0.3),
	)
	if err != nil {
		logger.Warn("answer synthesis failed, falling back to suggested answer", "err", err)
		return suggested
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return suggested
	}
	return answer
}

func pickGreeting(query string) string {
	n := 0
	for _, r := range query {
		n += int(r)
	}
	return GreetingReplies[n%len(GreetingReplies)]
}

var (
	markupHeading = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	markupMarks   = regexp.MustCompile("[*_`]{1,3}")
)

// stripMarkup removes the markdown the synthesis model keeps producing
// despite the plain-text instruction. Chat channels render the raw text.
func stripMarkup(text string) string {
	text = strings.ReplaceAll(text, "```", "")
	text = markupHeading.ReplaceAllString(text, "")
	text = markupMarks.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// withDisclaimer appends the low-confidence disclaimer exactly once.
func withDisclaimer(answer string) string {
	if strings.Contains(answer, strings.TrimSpace(LowConfidenceDisclaimer)) {
		return answer
	}
	return answer + LowConfidenceDisclaimer
}

func strPtr(s string) *string {
	return &s
}
