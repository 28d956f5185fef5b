package pgx

import (
	"fmt"
	"strings"
)

// metadataAdapter translates a raw jsonb metadata mapping from one source
// table into the flat string mapping of store.DocumentRow. Each source keeps
// its own column vocabulary in the database; the adapter pins down the keys
// the pipeline may rely on.
type metadataAdapter func(raw map[string]any) map[string]string

// Product source metadata keys after adaptation:
//
//	product_name, active_ingredient, category, usage_rate, target_pest, crop
//
// The raw rows historically use mixed key spellings ("productName",
// "product"), all normalized here.
func adaptProductMetadata(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))

	pick(out, raw, "product_name", "product_name", "productName", "product")
	pick(out, raw, "active_ingredient", "active_ingredient", "activeIngredient", "ingredient")
	pick(out, raw, "category", "category", "type")
	pick(out, raw, "usage_rate", "usage_rate", "usageRate", "rate")
	pick(out, raw, "target_pest", "target_pest", "targetPest", "target")
	pick(out, raw, "crop", "crop", "plant")

	return out
}

// Fertilizer source metadata keys after adaptation:
//
//	product_name, formula, crop, growth_stage, usage_rate, category
//
// The fertilizer table predates the product registry and stores its NPK
// formula in a dedicated column rather than free text.
func adaptFertilizerMetadata(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))

	pick(out, raw, "product_name", "product_name", "name", "brand")
	pick(out, raw, "formula", "formula", "npk", "npk_formula")
	pick(out, raw, "crop", "crop", "plant")
	pick(out, raw, "growth_stage", "growth_stage", "stage")
	pick(out, raw, "usage_rate", "usage_rate", "rate")
	pick(out, raw, "category", "category")

	if out["category"] == "" {
		out["category"] = "ปุ๋ย"
	}

	return out
}

// pick copies the first present, non-empty candidate key from raw into out
// under the canonical key.
func pick(out map[string]string, raw map[string]any, canonical string, candidates ...string) {
	for _, key := range candidates {
		value, exists := raw[key]
		if !exists || value == nil {
			continue
		}

		var text string
		switch v := value.(type) {
		case string:
			text = strings.TrimSpace(v)
		case float64:
			text = strings.TrimSpace(fmt.Sprintf("%g", v))
		default:
			continue
		}

		if text != "" {
			out[canonical] = text
			return
		}
	}
}
