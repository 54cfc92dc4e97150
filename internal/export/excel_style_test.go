package export

import "testing"

func TestBuildDuesRegisterFilename(t *testing.T) {
	got := BuildDuesRegisterFilename("2024-25")
	want := "Реестр долгов — 2024-25.xlsx"
	if got != want {
		t.Fatalf("ожидали %q, получили %q", want, got)
	}

	// запрещённые для файловой системы символы заменяются
	got = BuildDuesRegisterFilename(`2024/25?`)
	if got != "Реестр долгов — 2024_25_.xlsx" {
		t.Fatalf("небезопасные символы не вычищены: %q", got)
	}

	if got := BuildDuesRegisterFilename("  "); got != "Реестр долгов — —.xlsx" {
		t.Fatalf("пустое имя сессии должно давать прочерк: %q", got)
	}
}

func TestColName(t *testing.T) {
	cases := map[int]string{1: "A", 2: "B", 26: "Z", 27: "AA", 52: "AZ", 53: "BA"}
	for n, want := range cases {
		if got := colName(n); got != want {
			t.Fatalf("colName(%d): ожидали %s, получили %s", n, want, got)
		}
	}
}
