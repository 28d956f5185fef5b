package rag

import (
	"fmt"
	"strings"

	"github.com/kasetlab/agrirag/internal/util"
)

// Turn is one conversation turn with its structured metadata. Products lists
// the product names recommended in this turn, recorded by the calling layer
// when the turn was produced; it is preferred over re-parsing the text.
type Turn struct {
	Role     string
	Text     string
	Products []string
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationContext is the partitioned view of the history: the turns still
// in play, a summary of everything before the last topic boundary, and the
// products recommended within the active window (most recent first).
type ConversationContext struct {
	Active         []Turn
	PastSummary    string
	ActiveProducts []string
}

// ConversationMemory partitions ordered turns into an active-topic suffix and
// a past-topics prefix.
type ConversationMemory struct {
	dict *Dictionaries
}

// NewConversationMemory creates a memory over the given dictionaries.
func NewConversationMemory(dict *Dictionaries) *ConversationMemory {
	return &ConversationMemory{dict: dict}
}

// Partition scans turns from most recent to oldest and cuts at the first
// topic boundary: a user turn containing an explicit topic-change marker, or
// a user turn naming a different product than the one implied by the current
// query. A marker turn opens the active window (it starts the new topic); a
// different-product turn belongs to the past. With no boundary every turn is
// active.
func (m *ConversationMemory) Partition(turns []Turn, query string) ConversationContext {
	currentProduct := m.dict.MatchProduct(query)

	activeStart := 0
	for i := len(turns) - 1; i >= 0; i-- {
		turn := turns[i]
		if turn.Role != RoleUser {
			continue
		}

		if ContainsAny(turn.Text, m.dict.TopicChangeMarkers) {
			activeStart = i
			break
		}

		if currentProduct != "" {
			turnProduct := m.dict.MatchProduct(turn.Text)
			if turnProduct != "" && turnProduct != currentProduct {
				// The whole exchange about the other product is over,
				// including the assistant replies that followed it.
				activeStart = nextUserTurn(turns, i+1)
				break
			}
		}
	}

	active := turns[activeStart:]
	past := turns[:activeStart]

	return ConversationContext{
		Active:         active,
		PastSummary:    m.summarize(past),
		ActiveProducts: activeWindowProducts(active),
	}
}

// nextUserTurn returns the index of the first user turn at or after start,
// or len(turns) when none remains.
func nextUserTurn(turns []Turn, start int) int {
	for i := start; i < len(turns); i++ {
		if turns[i].Role == RoleUser {
			return i
		}
	}
	return len(turns)
}

// summarize renders the past turns as a short topic recap: the user questions
// asked and any products recommended along the way.
func (m *ConversationMemory) summarize(past []Turn) string {
	if len(past) == 0 {
		return ""
	}

	questions := make([]string, 0, len(past))
	products := make([]string, 0, 2)
	seen := make(map[string]struct{})
	for _, turn := range past {
		if turn.Role == RoleUser {
			questions = append(questions, util.TruncateRunes(util.NormalizeText(turn.Text), 40))
		}
		for _, product := range turn.Products {
			if _, ok := seen[product]; ok {
				continue
			}
			seen[product] = struct{}{}
			products = append(products, product)
		}
	}

	var b strings.Builder
	b.WriteString("หัวข้อก่อนหน้า: ")
	b.WriteString(strings.Join(questions, " / "))
	if len(products) > 0 {
		fmt.Fprintf(&b, " (สินค้าที่เคยแนะนำ: %s)", strings.Join(products, ", "))
	}
	return b.String()
}

// activeWindowProducts collects products recommended in the active window
// from structured turn metadata, most recent turn first.
func activeWindowProducts(active []Turn) []string {
	products := make([]string, 0, 2)
	seen := make(map[string]struct{})
	for i := len(active) - 1; i >= 0; i-- {
		for _, product := range active[i].Products {
			if _, ok := seen[product]; ok {
				continue
			}
			seen[product] = struct{}{}
			products = append(products, product)
		}
	}
	return products
}

// Format renders the context as the single string consumed by the pipeline:
// the past summary first (when present), then the active turns as dialogue
// lines.
func (c ConversationContext) Format() string {
	var b strings.Builder
	if c.PastSummary != "" {
		b.WriteString(c.PastSummary)
		b.WriteString("\n")
	}
	b.WriteString(c.FormatActive())
	return strings.TrimSuffix(b.String(), "\n")
}

// FormatActive renders only the active turns. Hint carry-over reads this
// form so products from closed topics cannot leak back in.
func (c ConversationContext) FormatActive() string {
	var b strings.Builder
	for _, turn := range c.Active {
		speaker := "ผู้ใช้"
		if turn.Role == RoleAssistant {
			speaker = "ผู้ช่วย"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, turn.Text)
		if len(turn.Products) > 0 {
			fmt.Fprintf(&b, "(สินค้าที่แนะนำ: %s)\n", strings.Join(turn.Products, ", "))
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
