package pgx

import "testing"

func TestAdaptProductMetadata(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		key  string
		want string
	}{
		{
			name: "canonical keys pass through",
			raw:  map[string]any{"product_name": "โมเดิน", "usage_rate": "20 ซีซี/น้ำ 20 ลิตร"},
			key:  "product_name",
			want: "โมเดิน",
		},
		{
			name: "legacy camel case key normalized",
			raw:  map[string]any{"productName": "แมนโคเซบ"},
			key:  "product_name",
			want: "แมนโคเซบ",
		},
		{
			name: "first non-empty candidate wins",
			raw:  map[string]any{"product_name": "", "product": "อะบาเม็กติน"},
			key:  "product_name",
			want: "อะบาเม็กติน",
		},
		{
			name: "numeric values formatted",
			raw:  map[string]any{"rate": 2.5},
			key:  "usage_rate",
			want: "2.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adaptProductMetadata(tt.raw)
			if got[tt.key] != tt.want {
				t.Fatalf("metadata[%q] = %q, want %q", tt.key, got[tt.key], tt.want)
			}
		})
	}
}

func TestAdaptFertilizerMetadata(t *testing.T) {
	got := adaptFertilizerMetadata(map[string]any{
		"name":  "ตราใบโพธิ์",
		"npk":   "15-15-15",
		"stage": "แตกใบอ่อน",
	})

	if got["product_name"] != "ตราใบโพธิ์" {
		t.Fatalf("product_name = %q", got["product_name"])
	}
	if got["formula"] != "15-15-15" {
		t.Fatalf("formula = %q", got["formula"])
	}
	if got["growth_stage"] != "แตกใบอ่อน" {
		t.Fatalf("growth_stage = %q", got["growth_stage"])
	}
	if got["category"] != "ปุ๋ย" {
		t.Fatalf("category default missing, got %q", got["category"])
	}
}
