package rag

import (
	"context"
	"testing"
)

func newTestResolver(aiClient *fakeAI) *HintResolver {
	cfg := DefaultConfig()
	if aiClient == nil {
		return NewHintResolver(DefaultDictionaries(), nil, cfg.LLMTimeout)
	}
	return NewHintResolver(DefaultDictionaries(), aiClient, cfg.LLMTimeout)
}

func TestResolveDictionaryConstraints(t *testing.T) {
	r := newTestResolver(nil)

	hints := r.Resolve(context.Background(), "โมเดิร์น ใช้กับทุเรียนได้ไหมครับ", "")

	if hints.ProductName.Value != "โมเดิน" || hints.ProductName.Tier != TierConstraint {
		t.Fatalf("ProductName = %+v, want canonical โมเดิน at CONSTRAINT", hints.ProductName)
	}
	if hints.PlantType.Value != "ทุเรียน" || hints.PlantType.Tier != TierConstraint {
		t.Fatalf("PlantType = %+v, want ทุเรียน at CONSTRAINT", hints.PlantType)
	}
	if !hints.HasDictionaryEntity() {
		t.Fatal("HasDictionaryEntity() = false, want true")
	}
}

func TestResolveDiseaseVariants(t *testing.T) {
	r := newTestResolver(nil)

	hints := r.Resolve(context.Background(), "ทุเรียนเป็นแอนแทรกโนสใช้ยาอะไรดี", "")

	if hints.DiseaseName.Value != "แอนแทรคโนส" || hints.DiseaseName.Tier != TierConstraint {
		t.Fatalf("DiseaseName = %+v, want canonical แอนแทรคโนส at CONSTRAINT", hints.DiseaseName)
	}
	if len(hints.DiseaseVariants.Values) < 2 {
		t.Fatalf("DiseaseVariants = %v, want every known spelling", hints.DiseaseVariants.Values)
	}
}

func TestResolveCarryOver(t *testing.T) {
	r := newTestResolver(nil)
	singleProductCtx := "ผู้ใช้: ทุเรียนเป็นราน้ำค้าง\nผู้ช่วย: แนะนำโมเดินครับ\n(สินค้าที่แนะนำ: โมเดิน)"

	t.Run("usage follow-up keeps the sole active product", func(t *testing.T) {
		hints := r.Resolve(context.Background(), "ใส่เท่าไหร่", singleProductCtx)
		if hints.ProductName.Value != "โมเดิน" || hints.ProductName.Tier != TierHint {
			t.Fatalf("ProductName = %+v, want โมเดิน at HINT", hints.ProductName)
		}
	})

	t.Run("new topic drops the carried product", func(t *testing.T) {
		hints := r.Resolve(context.Background(), "แล้วหนอนกระทู้ล่ะใช้อะไรดี", singleProductCtx)
		if hints.ProductName.Present() {
			t.Fatalf("ProductName = %+v, want empty after topic change", hints.ProductName)
		}
	})

	t.Run("vague question with no signal drops the product", func(t *testing.T) {
		hints := r.Resolve(context.Background(), "แพงไหมครับ", singleProductCtx)
		if hints.ProductName.Present() {
			t.Fatalf("ProductName = %+v, want empty for vague follow-up", hints.ProductName)
		}
	})

	t.Run("literal product in query beats context", func(t *testing.T) {
		hints := r.Resolve(context.Background(), "แมนโคเซบใช้ยังไง", singleProductCtx)
		if hints.ProductName.Value != "แมนโคเซบ" || hints.ProductName.Tier != TierConstraint {
			t.Fatalf("ProductName = %+v, want แมนโคเซบ at CONSTRAINT", hints.ProductName)
		}
	})

	t.Run("two candidate products require clarification", func(t *testing.T) {
		twoProductCtx := "ผู้ช่วย: แนะนำโมเดินหรือแมนโคเซบครับ\n(สินค้าที่แนะนำ: โมเดิน, แมนโคเซบ)"
		hints := r.Resolve(context.Background(), "ใช้ยังไง", twoProductCtx)
		if !hints.NeedsClarification {
			t.Fatal("NeedsClarification = false, want true")
		}
		if len(hints.CandidateProducts) != 2 {
			t.Fatalf("CandidateProducts = %v, want both context products", hints.CandidateProducts)
		}
		if hints.ProductName.Present() {
			t.Fatalf("ProductName = %+v, want empty when ambiguous", hints.ProductName)
		}
	})
}

func TestResolveLLMFallback(t *testing.T) {
	t.Run("short queries never reach the model", func(t *testing.T) {
		aiClient := &fakeAI{formatJSON: map[string]string{}}
		r := newTestResolver(aiClient)
		r.Resolve(context.Background(), "สบายดีไหม", "")
		if aiClient.called("entity_extraction") {
			t.Fatal("entity extraction called for a short query")
		}
	})

	t.Run("fills only empty fields at LLM tier", func(t *testing.T) {
		aiClient := &fakeAI{formatJSON: map[string]string{
			"entity_extraction": `{"product_name":"ไตรโคเดอร์มา","disease_name":"","pest_name":"","plant_type":""}`,
		}}
		r := newTestResolver(aiClient)
		hints := r.Resolve(context.Background(), "อยากได้ตัวช่วยคุมแมลงในแปลงหน่อยครับ", "")
		if hints.ProductName.Value != "ไตรโคเดอร์มา" || hints.ProductName.Tier != TierLLM {
			t.Fatalf("ProductName = %+v, want LLM-tier fill", hints.ProductName)
		}
	})

	t.Run("extraction failure leaves hints empty", func(t *testing.T) {
		aiClient := &fakeAI{formatJSON: map[string]string{}}
		r := newTestResolver(aiClient)
		hints := r.Resolve(context.Background(), "อยากได้ตัวช่วยดูแลแปลงผักหน่อยครับ", "")
		if hints.ProductName.Present() {
			t.Fatalf("ProductName = %+v, want empty on failure", hints.ProductName)
		}
	})
}
