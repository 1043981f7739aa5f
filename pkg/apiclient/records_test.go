package apiclient

import (
	"strings"
	"testing"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, "-"},
		{"", "-"},
		{"abc", "abc"},
		{true, "Sim"},
		{false, "Não"},
		{float64(42), "42"},
		{3.14159, "3.14"},
		{map[string]any{"a": float64(1)}, `{"a":1}`},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestColumns(t *testing.T) {
	records := []Record{
		{"cidade": "x", "nome": "y", "id": float64(1), "endereco": map[string]any{}},
		{"uf": "PR"},
	}

	cols := Columns(records, 0)
	want := []string{"id", "nome", "cidade", "uf"}
	if strings.Join(cols, ",") != strings.Join(want, ",") {
		t.Errorf("Columns() = %v, want %v", cols, want)
	}

	if got := Columns(records, 2); len(got) != 2 || got[0] != "id" || got[1] != "nome" {
		t.Errorf("Columns(limit 2) = %v", got)
	}
}

func TestFilterRecords(t *testing.T) {
	records := []Record{
		{"id": float64(1), "nome": "Acme", "ativo": true},
		{"id": float64(2), "nome": "Beta", "ativo": false},
	}

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"acme", 1},
		{"BETA", 1},
		{"sim", 1},
		{"2", 1},
		{"zzz", 0},
	}
	for _, tt := range tests {
		if got := FilterRecords(records, tt.query); len(got) != tt.want {
			t.Errorf("FilterRecords(%q) returned %d records, want %d", tt.query, len(got), tt.want)
		}
	}
}

func TestRecordKeys(t *testing.T) {
	rec := Record{"z": 1, "codigo": "A1", "descricao": "x", "a": 2}
	want := "codigo,descricao,a,z"
	if got := strings.Join(rec.Keys(), ","); got != want {
		t.Errorf("Keys() = %s, want %s", got, want)
	}
}
