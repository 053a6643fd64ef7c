package domain

import "testing"

func TestChunk_Overlaps(t *testing.T) {
	base := Chunk{PageID: 1, Offset: 100, Text: "aaaaaaaaaa"} // runes 100..110

	cases := []struct {
		name  string
		other Chunk
		want  bool
	}{
		{"identical range", Chunk{PageID: 1, Offset: 100, Text: "aaaaaaaaaa"}, true},
		{"partial overlap", Chunk{PageID: 1, Offset: 105, Text: "bbbbbbbbbb"}, true},
		{"touching end is disjoint", Chunk{PageID: 1, Offset: 110, Text: "cc"}, false},
		{"before", Chunk{PageID: 1, Offset: 90, Text: "dddd"}, false},
		{"other page", Chunk{PageID: 2, Offset: 100, Text: "aaaaaaaaaa"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := base.Overlaps(tc.other); got != tc.want {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTenantOrDefault(t *testing.T) {
	if got := TenantOrDefault(""); got != DefaultTenant {
		t.Errorf("empty key: got %q", got)
	}
	if got := TenantOrDefault("  "); got != DefaultTenant {
		t.Errorf("whitespace key: got %q", got)
	}
	if got := TenantOrDefault(" alice "); got != Tenant("alice") {
		t.Errorf("expected trimmed key, got %q", got)
	}
}

func TestTenant_Validate(t *testing.T) {
	if err := Tenant("").Validate(); err == nil {
		t.Error("expected error for empty tenant")
	}
	if err := Tenant("bob").Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
