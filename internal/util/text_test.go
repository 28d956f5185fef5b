package util

import "testing"

func TestSanitizePostgresText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "contains null byte",
			input: "hel\x00lo",
			want:  "hello",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizePostgresText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "collapses whitespace",
			input: "  โมเดิน   ใช้กับ\tทุเรียน ",
			want:  "โมเดิน ใช้กับ ทุเรียน",
		},
		{
			name:  "lowercases latin",
			input: "NPK 15-15-15",
			want:  "npk 15-15-15",
		},
		{
			name:  "empty",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected normalized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFoldThai(t *testing.T) {
	t.Run("missing thanthakhat collapses", func(t *testing.T) {
		if FoldThai("โมเดิร์น") != FoldThai("โมเดิรน") {
			t.Fatal("expected spellings with and without thanthakhat to fold to the same key")
		}
	})

	t.Run("tone mark dropped", func(t *testing.T) {
		if FoldThai("น้ำ") != FoldThai("นำ") {
			t.Fatal("expected tone-marked and bare spellings to fold to the same key")
		}
	})

	t.Run("distinct consonants stay distinct", func(t *testing.T) {
		if FoldThai("แอนแทรคโนส") == FoldThai("แอนแทรกโนส") {
			t.Fatal("consonant substitutions must not collapse; the variant table owns those")
		}
	})
}

func TestContainsFold(t *testing.T) {
	if !ContainsFold("โมเดิน ใช้กับทุเรียนได้ไหม", "โมเดิน") {
		t.Fatal("expected product name to match inside the query")
	}
	if !ContainsFold("ใบเป็นแผลจุดนำตาล", "แผลจุดน้ำตาล") {
		t.Fatal("expected tone-mark-insensitive match")
	}
	if ContainsFold("สวัสดีครับ", "") {
		t.Fatal("empty needle must never match")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := TruncateRunes("ทุเรียนหมอนทอง", 7); got != "ทุเรียน..." {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if got := TruncateRunes("สั้น", 10); got != "สั้น" {
		t.Fatalf("short value must be unchanged, got %q", got)
	}
	if got := TruncateRunes("อะไร", 0); got != "" {
		t.Fatalf("zero limit must return empty, got %q", got)
	}
}
