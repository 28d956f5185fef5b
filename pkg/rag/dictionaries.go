package rag

import (
	"sort"
	"unicode/utf8"

	"github.com/kasetlab/agrirag/internal/util"
)

// Dictionaries holds the curated domain tables the hint resolver matches
// against. They are loaded once at startup and read-only afterwards; no code
// path mutates them at runtime.
type Dictionaries struct {
	// ProductAliases maps every known spelling (including the canonical one)
	// to the canonical product name.
	ProductAliases map[string]string
	// DiseaseVariants maps every known spelling to the canonical disease
	// name; near-homophone typos of the same disease collapse here.
	DiseaseVariants map[string]string
	// PestAliases maps pest spellings to canonical pest names.
	PestAliases map[string]string
	// PlantNames lists known crop names.
	PlantNames []string
	// WeedSynonyms maps a weed name to regional synonyms used as extra
	// search terms.
	WeedSynonyms map[string][]string
	// FarmerSlang maps colloquial farmer vocabulary to the formal term used
	// in the document corpus.
	FarmerSlang map[string]string
	// SymptomPathogens maps a described symptom to candidate causes.
	SymptomPathogens map[string][]string
	// ProblemTypeKeywords maps a problem category label to trigger words.
	ProblemTypeKeywords map[string][]string

	TopicChangeMarkers []string
	ReferencePhrases   []string
	UsageKeywords      []string
	RecommendKeywords  []string
	DomainKeywords     []string
	GreetingPhrases    []string

	// sorted longest-first match orders, built once in DefaultDictionaries
	productPatterns []string
	diseasePatterns []string
	pestPatterns    []string
	plantPatterns   []string
}

// DefaultDictionaries returns the built-in agrochemical dictionaries.
func DefaultDictionaries() *Dictionaries {
	d := &Dictionaries{
		ProductAliases: map[string]string{
			"โมเดิน":       "โมเดิน",
			"โมเดิร์น":     "โมเดิน",
			"เมทาแลกซิล":   "เมทาแลกซิล",
			"เมตาแลกซิล":   "เมทาแลกซิล",
			"แมนโคเซบ":     "แมนโคเซบ",
			"แมนโคเซ็บ":    "แมนโคเซบ",
			"อะบาเม็กติน":  "อะบาเม็กติน",
			"อาบาเมกติน":   "อะบาเม็กติน",
			"ไกลโฟเซต":     "ไกลโฟเซต",
			"ไกลโฟเสต":     "ไกลโฟเซต",
			"ราวด์อัพ":     "ไกลโฟเซต",
			"คาร์เบนดาซิม": "คาร์เบนดาซิม",
			"อิมิดาโคลพริด": "อิมิดาโคลพริด",
			"โพรพิเนบ":     "โพรพิเนบ",
			"ฟิโพรนิล":     "ฟิโพรนิล",
			"ไซม็อกซานิล":  "ไซม็อกซานิล",
		},
		DiseaseVariants: map[string]string{
			"แอนแทรคโนส":     "แอนแทรคโนส",
			"แอนแทรกโนส":     "แอนแทรคโนส",
			"แอนแทคโนส":      "แอนแทรคโนส",
			"โรคกุ้งแห้ง":    "แอนแทรคโนส",
			"ราน้ำค้าง":      "ราน้ำค้าง",
			"โรคราน้ำค้าง":   "ราน้ำค้าง",
			"รากเน่าโคนเน่า": "รากเน่าโคนเน่า",
			"โรครากเน่า":     "รากเน่าโคนเน่า",
			"รากเน่า":        "รากเน่าโคนเน่า",
			"โคนเน่า":        "รากเน่าโคนเน่า",
			"ใบไหม้":         "ใบไหม้",
			"โรคใบไหม้":      "ใบไหม้",
			"ราแป้ง":         "ราแป้ง",
			"โรคราแป้ง":      "ราแป้ง",
			"แคงเกอร์":       "แคงเกอร์",
			"แคงเคอร์":       "แคงเกอร์",
			"โรคแคงเกอร์":    "แคงเกอร์",
			"ใบจุด":          "ใบจุด",
			"โรคใบจุด":       "ใบจุด",
		},
		PestAliases: map[string]string{
			"เพลี้ยไฟ":    "เพลี้ยไฟ",
			"เพลี้ยอ่อน":  "เพลี้ยอ่อน",
			"เพลี้ยแป้ง":  "เพลี้ยแป้ง",
			"หนอนกระทู้":  "หนอนกระทู้",
			"หนอนเจาะผล":  "หนอนเจาะผล",
			"หนอนเจาะฝัก": "หนอนเจาะผล",
			"ไรแดง":       "ไรแดง",
			"ด้วงหมัดผัก": "ด้วงหมัดผัก",
			"แมลงหวี่ขาว": "แมลงหวี่ขาว",
		},
		PlantNames: []string{
			"ทุเรียน", "ข้าวโพด", "ข้าว", "มะม่วง", "พริก", "มะเขือเทศ",
			"ส้ม", "มันสำปะหลัง", "ยางพารา", "ปาล์ม", "ลำไย", "แตงกวา",
		},
		WeedSynonyms: map[string][]string{
			"หญ้าข้าวนก":  {"หญ้านกสีชมพู"},
			"หญ้าแห้วหมู": {"แห้วหมู", "หัวหมู"},
			"หญ้าคา":      {"หญ้าคมบาง"},
			"ผักตบชวา":    {"ผักตบ"},
		},
		FarmerSlang: map[string]string{
			"ยาฆ่าหญ้า": "สารกำจัดวัชพืช",
			"ยาฆ่าแมลง": "สารกำจัดแมลง",
			"ยากันรา":   "สารป้องกันกำจัดโรคพืช",
			"ยาเผาไหม้": "สารกำจัดวัชพืชชนิดสัมผัส",
			"ปุ๋ยเย็น":  "ปุ๋ยสูตรเสมอ",
		},
		SymptomPathogens: map[string][]string{
			"ใบเหลือง":      {"ขาดธาตุไนโตรเจน", "รากเน่าโคนเน่า"},
			"ใบม้วน":        {"เพลี้ยไฟ", "ไวรัสใบหงิก"},
			"ผลเน่า":        {"แอนแทรคโนส"},
			"แผลจุดน้ำตาล":  {"ใบจุด"},
			"ยอดเหี่ยว":     {"หนอนเจาะยอด", "โรคเหี่ยว"},
			"ขอบใบแห้ง":     {"ใบไหม้", "ขาดธาตุโพแทสเซียม"},
			"ผงขาวบนใบ":     {"ราแป้ง"},
		},
		ProblemTypeKeywords: map[string][]string{
			"โรคพืช":       {"เชื้อรา", "รา", "เน่า", "ไหม้", "โรค"},
			"แมลงศัตรูพืช": {"แมลง", "หนอน", "เพลี้ย", "ไร", "ด้วง"},
			"วัชพืช":       {"หญ้า", "วัชพืช"},
			"ปุ๋ย":         {"ปุ๋ย", "สูตร", "ธาตุอาหาร", "บำรุง"},
		},
		TopicChangeMarkers: []string{
			"เปลี่ยนเรื่อง", "คำถามใหม่", "อีกเรื่อง", "ถามใหม่", "เรื่องใหม่", "ขอถามเรื่องอื่น",
		},
		ReferencePhrases: []string{
			"ตัวนี้", "อันนี้", "ตัวเดิม", "ตัวนั้น", "อันเดิม", "ที่แนะนำ", "ตามที่บอก", "ตัวที่ว่า",
		},
		UsageKeywords: []string{
			"ใช้", "ใส่", "ฉีด", "พ่น", "ผสม", "อัตรา", "เท่าไหร่", "เท่าไร", "ยังไง", "อย่างไร", "กี่",
		},
		RecommendKeywords: []string{
			"แนะนำ", "ตัวไหนดี", "ใช้อะไรดี", "ยี่ห้อไหน", "อะไรดี",
		},
		DomainKeywords: []string{
			"ยา", "ปุ๋ย", "โรค", "แมลง", "หญ้า", "ศัตรูพืช", "ฉีด", "พ่น", "ผสม",
			"อัตรา", "ไร่", "สวน", "ปลูก", "ใส่", "ต้น", "ใบ", "ผล", "ดิน", "เชื้อรา",
		},
		GreetingPhrases: []string{
			"สวัสดี", "สวัสดีครับ", "สวัสดีค่ะ", "สวัสดีคับ", "หวัดดี", "ดีครับ", "ดีค่ะ",
			"hello", "hi", "ทักทาย",
		},
	}

	d.productPatterns = longestFirst(keysOf(d.ProductAliases))
	d.diseasePatterns = longestFirst(keysOf(d.DiseaseVariants))
	d.pestPatterns = longestFirst(keysOf(d.PestAliases))
	d.plantPatterns = longestFirst(append([]string(nil), d.PlantNames...))

	return d
}

func keysOf(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// longestFirst orders patterns so that the longest spelling matches before any
// of its substrings, with a lexical tiebreak for determinism.
func longestFirst(patterns []string) []string {
	sort.Slice(patterns, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(patterns[i]), utf8.RuneCountInString(patterns[j])
		if li != lj {
			return li > lj
		}
		return patterns[i] < patterns[j]
	})
	return patterns
}

// MatchProduct returns the canonical product name matched in text, or "".
func (d *Dictionaries) MatchProduct(text string) string {
	for _, pattern := range d.productPatterns {
		if util.ContainsFold(text, pattern) {
			return d.ProductAliases[pattern]
		}
	}
	return ""
}

// MatchProducts returns every distinct canonical product name found in text,
// in first-match order.
func (d *Dictionaries) MatchProducts(text string) []string {
	found := make([]string, 0, 2)
	seen := make(map[string]struct{})
	for _, pattern := range d.productPatterns {
		if !util.ContainsFold(text, pattern) {
			continue
		}
		canonical := d.ProductAliases[pattern]
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		found = append(found, canonical)
	}
	return found
}

// MatchDisease returns the canonical disease and the matched variant, or "".
func (d *Dictionaries) MatchDisease(text string) (canonical, variant string) {
	for _, pattern := range d.diseasePatterns {
		if util.ContainsFold(text, pattern) {
			return d.DiseaseVariants[pattern], pattern
		}
	}
	return "", ""
}

// VariantsFor returns every known spelling of the canonical disease name.
func (d *Dictionaries) VariantsFor(canonical string) []string {
	variants := make([]string, 0, 3)
	for variant, c := range d.DiseaseVariants {
		if c == canonical {
			variants = append(variants, variant)
		}
	}
	sort.Strings(variants)
	return variants
}

// MatchPest returns the canonical pest name matched in text, or "".
func (d *Dictionaries) MatchPest(text string) string {
	for _, pattern := range d.pestPatterns {
		if util.ContainsFold(text, pattern) {
			return d.PestAliases[pattern]
		}
	}
	return ""
}

// MatchPlant returns the plant name matched in text, or "".
func (d *Dictionaries) MatchPlant(text string) string {
	for _, pattern := range d.plantPatterns {
		if util.ContainsFold(text, pattern) {
			return pattern
		}
	}
	return ""
}

// IsGreeting reports whether the whole query is a greeting phrase.
func (d *Dictionaries) IsGreeting(query string) bool {
	normalized := util.FoldThai(query)
	if normalized == "" {
		return false
	}
	for _, phrase := range d.GreetingPhrases {
		if normalized == util.FoldThai(phrase) {
			return true
		}
	}
	return false
}

// ContainsAny reports whether any of the given phrases occurs in text.
func ContainsAny(text string, phrases []string) bool {
	for _, phrase := range phrases {
		if util.ContainsFold(text, phrase) {
			return true
		}
	}
	return false
}
