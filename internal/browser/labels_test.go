package browser

import "testing"

func TestNormalizeLabel(t *testing.T) {
	cases := map[string]string{
		"  PERSEROAN   Terbatas ": "perseroan terbatas",
		"ＣＶ":                      "cv",
		"Tutup Sementara":          "tutup sementara",
	}
	for input, want := range cases {
		if got := normalizeLabel(input); got != want {
			t.Fatalf("normalizeLabel(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestOptionByCodeToleratesLeadingZeros(t *testing.T) {
	opts := []option{
		{Value: "", Label: "-- Pilih --"},
		{Value: "2318", Label: "[71] JAKARTA SELATAN"},
		{Value: "2319", Label: "[73] JAKARTA PUSAT"},
		{Value: "9001", Label: "[010] TANAH ABANG"},
	}
	tests := []struct {
		code string
		want string
		ok   bool
	}{
		{"73", "2319", true},
		{"073", "2319", true},
		{"10", "9001", true},
		{"010", "9001", true},
		{"99", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := optionByCode(opts, tt.code)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("optionByCode(%q) = %q,%v want %q,%v", tt.code, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOptionByLabel(t *testing.T) {
	opts := []option{
		{Value: "1", Label: "Aktif"},
		{Value: "2", Label: "Tutup Sementara"},
	}
	if got, ok := optionByLabel(opts, " tutup  sementara"); !ok || got != "2" {
		t.Fatalf("unexpected match %q %v", got, ok)
	}
	if _, ok := optionByLabel(opts, "Tutup"); ok {
		t.Fatal("partial label must not match")
	}
}

func TestBestMatchPrefersExactTokens(t *testing.T) {
	candidates := []string{
		"-- Pilih --",
		"Perseroan Terbatas (PT)",
		"Perseroan Terbatas Terbuka (Tbk)",
		"Koperasi",
	}
	if got := bestMatch("perseroan terbatas", candidates); got != 1 {
		t.Fatalf("bestMatch = %d, want 1", got)
	}
	if got := bestMatch("KOPERASI", candidates); got != 3 {
		t.Fatalf("bestMatch = %d, want 3", got)
	}
	if got := bestMatch("yayasan", candidates); got != -1 {
		t.Fatalf("expected no match, got %d", got)
	}
	if got := bestMatch("", candidates); got != -1 {
		t.Fatalf("expected no match for empty target, got %d", got)
	}
}

func TestFieldHelpers(t *testing.T) {
	if got := digitsOnly("+62 812-3456"); got != "628123456" {
		t.Fatalf("digitsOnly = %q", got)
	}
	if got := foundedYear("th. 1998/99"); got != "1998" {
		t.Fatalf("foundedYear = %q", got)
	}
	if got := foundedYear("98"); got != "" {
		t.Fatalf("short year should be dropped, got %q", got)
	}
	if !validEmail(" toko@example.co.id ") || validEmail("toko@") || validEmail("") {
		t.Fatal("unexpected email validation")
	}
	if got := normalizeCode("0073"); got != "73" {
		t.Fatalf("normalizeCode = %q", got)
	}
}
