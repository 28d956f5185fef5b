package rag

import (
	"strings"
	"testing"
)

func TestPartitionNoBoundary(t *testing.T) {
	m := NewConversationMemory(DefaultDictionaries())
	turns := []Turn{
		{Role: RoleUser, Text: "ทุเรียนเป็นราน้ำค้าง"},
		{Role: RoleAssistant, Text: "แนะนำโมเดินครับ", Products: []string{"โมเดิน"}},
	}

	got := m.Partition(turns, "ใส่เท่าไหร่")

	if len(got.Active) != 2 {
		t.Fatalf("Active = %d turns, want all %d", len(got.Active), len(turns))
	}
	if got.PastSummary != "" {
		t.Fatalf("PastSummary = %q, want empty", got.PastSummary)
	}
	if len(got.ActiveProducts) != 1 || got.ActiveProducts[0] != "โมเดิน" {
		t.Fatalf("ActiveProducts = %v, want [โมเดิน]", got.ActiveProducts)
	}
}

func TestPartitionTopicChangeMarker(t *testing.T) {
	m := NewConversationMemory(DefaultDictionaries())
	turns := []Turn{
		{Role: RoleUser, Text: "ทุเรียนเป็นแอนแทรคโนส"},
		{Role: RoleAssistant, Text: "แนะนำแมนโคเซบครับ", Products: []string{"แมนโคเซบ"}},
		{Role: RoleUser, Text: "ขอถามเรื่องอื่น ปุ๋ยสำหรับข้าวโพดใช้สูตรไหน"},
		{Role: RoleAssistant, Text: "สูตร 15-15-15 ครับ"},
	}

	got := m.Partition(turns, "ใส่กี่กิโลต่อไร่")

	// The marker turn starts the new topic, so it stays in the window.
	if len(got.Active) != 2 {
		t.Fatalf("Active = %d turns, want 2 from the marker on", len(got.Active))
	}
	if got.Active[0].Text != turns[2].Text {
		t.Fatalf("Active starts at %q, want the marker turn", got.Active[0].Text)
	}
	if !strings.Contains(got.PastSummary, "หัวข้อก่อนหน้า") {
		t.Fatalf("PastSummary = %q, want a topic recap", got.PastSummary)
	}
	if !strings.Contains(got.PastSummary, "แมนโคเซบ") {
		t.Fatalf("PastSummary = %q, want past product mentioned", got.PastSummary)
	}
	if len(got.ActiveProducts) != 0 {
		t.Fatalf("ActiveProducts = %v, want none in the new topic", got.ActiveProducts)
	}
}

func TestPartitionDifferentProductCut(t *testing.T) {
	m := NewConversationMemory(DefaultDictionaries())
	turns := []Turn{
		{Role: RoleUser, Text: "แมนโคเซบใช้ยังไง"},
		{Role: RoleAssistant, Text: "ผสมน้ำฉีดพ่นครับ", Products: []string{"แมนโคเซบ"}},
		{Role: RoleAssistant, Text: "มีคำถามเพิ่มไหมครับ"},
	}

	// The current query names a different product, so the old product's
	// turns close out.
	got := m.Partition(turns, "โมเดินใช้กับทุเรียนได้ไหม")

	if len(got.Active) != 0 {
		t.Fatalf("Active = %d turns, want the whole old exchange closed", len(got.Active))
	}
	if len(got.ActiveProducts) != 0 {
		t.Fatalf("ActiveProducts = %v, want the old product excluded", got.ActiveProducts)
	}
}

func TestFormat(t *testing.T) {
	ctx := ConversationContext{
		PastSummary: "หัวข้อก่อนหน้า: เรื่องปุ๋ย",
		Active: []Turn{
			{Role: RoleUser, Text: "ทุเรียนเป็นราน้ำค้าง"},
			{Role: RoleAssistant, Text: "แนะนำโมเดินครับ", Products: []string{"โมเดิน"}},
		},
	}

	got := ctx.Format()
	for _, want := range []string{"หัวข้อก่อนหน้า", "ผู้ใช้: ทุเรียนเป็นราน้ำค้าง", "ผู้ช่วย: แนะนำโมเดินครับ", "(สินค้าที่แนะนำ: โมเดิน)"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Format() = %q, missing %q", got, want)
		}
	}

	active := ctx.FormatActive()
	if strings.Contains(active, "หัวข้อก่อนหน้า") {
		t.Fatalf("FormatActive() = %q, must not include the past summary", active)
	}
}
