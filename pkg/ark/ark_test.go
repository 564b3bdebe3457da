package ark

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIDAndFull(t *testing.T) {
	if got := ID("ark:/12148/bpt6k70557r"); got != "bpt6k70557r" {
		t.Errorf("ID: expected bpt6k70557r, got %q", got)
	}
	if got := ID("bpt6k70557r"); got != "bpt6k70557r" {
		t.Errorf("ID should leave bare identifiers alone, got %q", got)
	}
	if got := Full("bpt6k70557r"); got != "ark:/12148/bpt6k70557r" {
		t.Errorf("Full: got %q", got)
	}
	if got := Full("ark:/12148/bpt6k70557r"); got != "ark:/12148/bpt6k70557r" {
		t.Errorf("Full should leave complete ARKs alone, got %q", got)
	}
}

func TestBaseFilename(t *testing.T) {
	if got := BaseFilename("bpt6k70557r", 12); got != "bpt6k70557r-0012" {
		t.Errorf("expected bpt6k70557r-0012, got %q", got)
	}
	if got := BaseFilename("ark:/12148/bpt6k70557r", 7); got != "bpt6k70557r-0007" {
		t.Errorf("expected prefix stripped, got %q", got)
	}
	if got := PageFilename("bpt6k70557r", 1, "jpg"); got != "bpt6k70557r-0001.jpg" {
		t.Errorf("expected bpt6k70557r-0001.jpg, got %q", got)
	}
}

func TestView(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		want    int
		wantErr bool
	}{
		{"canonical", "bpt6k858005x-0001.jpg", 1, false},
		{"with directory", "bpt6k858005x/bpt6k858005x-0216.jpg", 216, false},
		{"no dash", "image.jpg", 0, true},
		{"non numeric", "bpt6k858005x-abcd.jpg", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := View(tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("View(%q) error = %v, wantErr %v", tt.file, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("View(%q) = %d, want %d", tt.file, got, tt.want)
			}
		})
	}
}

func TestViewFromTitle(t *testing.T) {
	got, err := ViewFromTitle("Ces_presentes_Heures_a_lusaige_de_view_216_num_NP.jpg")
	if err != nil {
		t.Fatalf("ViewFromTitle failed: %v", err)
	}
	if got != 216 {
		t.Errorf("expected view 216, got %d", got)
	}

	if _, err := ViewFromTitle("no_marker_here.jpg"); err == nil {
		t.Error("expected an error for a filename without a view marker")
	}
}

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Ces presentes Heures", "ces_presentes_heures"},
		{"Heures à l'usaige de Rome", "heures_a_lusaige_de_rome"},
		{"Ces_presentes_Heures_view_216_num_NP", "ces_presentes_heures"},
		{"Très Long Titre Qui Dépasse La Limite De Trente Caractères", "tres_long_titre_qui_depasse_la"},
		{"Titre  avec   espaces", "titre_avec_espaces"},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arks_database.csv")
	content := "Ces presentes Heures#ark:/12148/bpt6k70557r\n" +
		"Heures à l'usaige de Rome#ark:/12148/btv1b8449691v\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := LoadDatabase(path)
	if err != nil {
		t.Fatalf("LoadDatabase failed: %v", err)
	}
	if db.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", db.Len())
	}

	if got, ok := db.Lookup("Ces presentes Heures_view_3_num_1.jpg"); !ok || got != "ark:/12148/bpt6k70557r" {
		t.Errorf("Lookup = %q, %v", got, ok)
	}
	if _, ok := db.Lookup("Unknown Title"); ok {
		t.Error("expected lookup miss for unknown title")
	}
	if missing := db.Missing(); len(missing) != 1 || missing[0] != "Unknown Title" {
		t.Errorf("expected one recorded miss, got %v", missing)
	}
}

func TestLoadDatabaseMissingFile(t *testing.T) {
	if _, err := LoadDatabase(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected an error for a missing database file")
	}
}
