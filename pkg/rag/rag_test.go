package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kasetlab/agrirag/pkg/ai"
	"github.com/kasetlab/agrirag/pkg/store"
)

var errTest = errors.New("model unavailable")

// fakeAI serves canned structured payloads keyed by format name. A missing
// payload is an error, which doubles as the LLM-failure case in tests.
type fakeAI struct {
	mu          sync.Mutex
	completion  string
	completeErr error
	formatJSON  map[string]string
	formatErr   error
	calls       []string
	chatMsgs    []ai.ChatMessage
}

func (f *fakeAI) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeAI) called(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (f *fakeAI) GenerateCompletion(_ context.Context, _ string, _ ...ai.GenerateOption) (string, error) {
	f.record("completion")
	return f.completion, f.completeErr
}

func (f *fakeAI) GenerateCompletionWithFormat(_ context.Context, name, _, _ string, out any, _ ...ai.GenerateOption) error {
	f.record(name)
	if f.formatErr != nil {
		return f.formatErr
	}
	payload, ok := f.formatJSON[name]
	if !ok {
		return fmt.Errorf("no canned payload for %q", name)
	}
	return json.Unmarshal([]byte(payload), out)
}

func (f *fakeAI) GenerateChat(_ context.Context, messages []ai.ChatMessage, _ ...ai.GenerateOption) (string, error) {
	f.record("chat")
	f.mu.Lock()
	f.chatMsgs = append([]ai.ChatMessage(nil), messages...)
	f.mu.Unlock()
	return f.completion, f.completeErr
}

func (f *fakeAI) GenerateEmbedding(_ context.Context, _ []byte) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeAI) ResetMetrics() {}

func (f *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

// fakeStore serves fixed rows per source and records every request. A
// non-empty Category on the request filters by the metadata category key, so
// tests can exercise the filterless retry.
type fakeStore struct {
	mu       sync.Mutex
	rows     map[string][]store.DocumentRow
	err      error
	requests []store.SearchRequest
}

func (f *fakeStore) SimilaritySearch(_ context.Context, req store.SearchRequest) ([]store.DocumentRow, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	out := make([]store.DocumentRow, 0, len(f.rows[req.Source]))
	for _, row := range f.rows[req.Source] {
		if req.Category != "" && row.Metadata["category"] != req.Category {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeStore) Sources() []string {
	return []string{store.SourceProducts, store.SourceFertilizer}
}

func (f *fakeStore) categoryRequests() (filtered, unfiltered int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, req := range f.requests {
		if req.Category != "" {
			filtered++
		} else {
			unfiltered++
		}
	}
	return
}

func productRow(id, name, content string) store.DocumentRow {
	return store.DocumentRow{
		ID:         id,
		Title:      name,
		Content:    content,
		Source:     store.SourceProducts,
		Similarity: 0.8,
		Metadata:   map[string]string{"product_name": name, "category": "ยากำจัดโรคพืช"},
	}
}
