package cachepath

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// sha256("[]") — the fixed fingerprint of the empty filter set.
const emptyFiltersHash = "4f53cda18c2baa0c0354bb5f9a3ecbe5ed12ab4d8e11ba873c2f11161202b945"

func TestFiltersHash_empty(t *testing.T) {
	if got := FiltersHash(nil); got != emptyFiltersHash {
		t.Errorf("FiltersHash(nil) = %s, want %s", got, emptyFiltersHash)
	}
	if got := FiltersHash([]Filter{}); got != emptyFiltersHash {
		t.Errorf("FiltersHash([]) = %s, want %s", got, emptyFiltersHash)
	}
}

func TestSerialize_canonical(t *testing.T) {
	filters := []Filter{
		{Channel: "trade", Symbols: []string{"B", "A"}},
		{Channel: "book", Symbols: []string{}},
	}
	want := `[{"channel":"book","symbols":[]},{"channel":"trade","symbols":["A","B"]}]`
	if got := Serialize(filters); got != want {
		t.Errorf("Serialize = %s, want %s", got, want)
	}
}

func TestSerialize_nilSymbols(t *testing.T) {
	got := Serialize([]Filter{{Channel: "trade"}})
	want := `[{"channel":"trade","symbols":null}]`
	if got != want {
		t.Errorf("Serialize = %s, want %s", got, want)
	}
}

func TestFiltersHash_orderIndependent(t *testing.T) {
	a := []Filter{
		{Channel: "trade", Symbols: []string{"XBTUSD", "ETHUSD"}},
		{Channel: "orderBookL2", Symbols: []string{"ETHUSD", "XBTUSD"}},
	}
	b := []Filter{
		{Channel: "orderBookL2", Symbols: []string{"XBTUSD", "ETHUSD"}},
		{Channel: "trade", Symbols: []string{"ETHUSD", "XBTUSD"}},
	}
	if FiltersHash(a) != FiltersHash(b) {
		t.Error("fingerprint should not depend on filter or symbol order")
	}
}

func TestNormalize_doesNotMutateInput(t *testing.T) {
	in := []Filter{{Channel: "trade", Symbols: []string{"B", "A"}}}
	Normalize(in)
	if in[0].Symbols[0] != "B" {
		t.Error("Normalize mutated caller's symbol slice")
	}
}

func TestSlicePath_layout(t *testing.T) {
	minute := time.Date(2019, 8, 1, 8, 52, 0, 0, time.UTC)
	got := SlicePath("/cache", "bitmex", minute, emptyFiltersHash)
	want := filepath.Join("/cache", "feeds", "bitmex", emptyFiltersHash,
		"2019", "08", "01", "08", "52") + ".json.gz"
	if got != want {
		t.Errorf("SlicePath = %s, want %s", got, want)
	}
}

func TestSlicePath_truncatesToMinute(t *testing.T) {
	aligned := time.Date(2020, 1, 2, 3, 4, 0, 0, time.UTC)
	skewed := aligned.Add(17*time.Second + 300*time.Millisecond)
	if SlicePath("/c", "kraken", aligned, "x") != SlicePath("/c", "kraken", skewed, "x") {
		t.Error("sub-minute components should be ignored")
	}
}

func TestEscapeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`[{"channel":"trade","symbols":["XBTUSD"]}]`,
			`%5B%7B%22channel%22%3A%22trade%22%2C%22symbols%22%3A%5B%22XBTUSD%22%5D%7D%5D`},
		{"~()*!.'", "~()*!.'"},
		{"a b", "a%20b"},
		{"a/b", "a%2Fb"},
	}
	for _, tt := range tests {
		if got := EscapeQuery(tt.in); got != tt.want {
			t.Errorf("EscapeQuery(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFiltersHash_scenario(t *testing.T) {
	filters := []Filter{
		{Channel: "trade", Symbols: []string{"B", "A"}},
		{Channel: "book", Symbols: []string{}},
	}
	shuffled := []Filter{
		{Channel: "book", Symbols: []string{}},
		{Channel: "trade", Symbols: []string{"A", "B"}},
	}
	h1, h2 := FiltersHash(filters), FiltersHash(shuffled)
	if h1 != h2 {
		t.Fatalf("hashes differ: %s vs %s", h1, h2)
	}
	if len(h1) != 64 || strings.ToLower(h1) != h1 {
		t.Errorf("fingerprint should be lowercase 64-char hex: %s", h1)
	}
}
