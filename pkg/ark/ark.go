// Package ark handles BnF ARK identifiers and the title-to-ARK lookup table
// used to tie annotation exports back to Gallica documents.
package ark

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Prefix is the naming-authority prefix of every Gallica ARK.
const Prefix = "ark:/12148/"

// ID strips the naming-authority prefix from an ARK, leaving the bare
// identifier used in file and directory names.
func ID(ark string) string {
	if strings.HasPrefix(ark, "ark:") {
		return strings.TrimPrefix(ark, Prefix)
	}
	return ark
}

// Full returns the complete ARK for a bare identifier.
func Full(id string) string {
	if strings.HasPrefix(id, "ark:") {
		return id
	}
	return Prefix + id
}

// BaseFilename builds the canonical "<id>-<view>" stem for a document page,
// with the view number padded to four digits.
func BaseFilename(id string, view int) string {
	return fmt.Sprintf("%s-%04d", ID(id), view)
}

// PageFilename builds the canonical page filename with an extension.
func PageFilename(id string, view int, ext string) string {
	return BaseFilename(id, view) + "." + ext
}

// View extracts the view number from a canonical page filename such as
// "bpt6k858005x-0001.jpg".
func View(filename string) (int, error) {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	i := strings.LastIndex(base, "-")
	if i < 0 || i == len(base)-1 {
		return 0, fmt.Errorf("no view number in filename %q", filename)
	}
	view, err := strconv.Atoi(base[i+1:])
	if err != nil {
		return 0, fmt.Errorf("bad view number in filename %q: %w", filename, err)
	}
	return view, nil
}

// ViewFromTitle extracts the view number from legacy title-based filenames
// such as "Ces_presentes_Heures_a_lusaige_de_view_216_num_NP.jpg".
func ViewFromTitle(filename string) (int, error) {
	base := filepath.Base(filename)
	_, rest, found := strings.Cut(base, "view_")
	if !found {
		return 0, fmt.Errorf("no view marker in filename %q", filename)
	}
	num, _, _ := strings.Cut(rest, "_")
	view, err := strconv.Atoi(num)
	if err != nil {
		return 0, fmt.Errorf("bad view number in filename %q: %w", filename, err)
	}
	return view, nil
}

// NormalizeTitle reduces a document title to the lookup key used by the ARK
// database: lowercase ASCII letters, digits and single underscores, capped at
// 30 characters. Everything after a "_view" marker is dropped.
func NormalizeTitle(title string) string {
	title, _, _ = strings.Cut(title, "_view")
	title = strings.ReplaceAll(title, " ", "_")

	var b strings.Builder
	for _, r := range norm.NFD.String(title) {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining accent, dropped
		case r == '_':
			// collapse runs of underscores
			if !strings.HasSuffix(b.String(), "_") {
				b.WriteRune(r)
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > 30 {
		s = s[:30]
	}
	s = strings.TrimSuffix(s, "_")
	return strings.ToLower(s)
}

// Database maps normalised document titles to their ARK identifiers.
// Lookups that fail are remembered so callers can report them at the end of
// a run.
type Database struct {
	arks    map[string]string
	missing []string
}

// LoadDatabase reads a title/ARK table from a '#'-separated CSV file, one
// "title#ark" row per document.
func LoadDatabase(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ARK database: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '#'
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ARK database: %w", err)
	}

	db := &Database{arks: make(map[string]string, len(rows))}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		db.arks[NormalizeTitle(row[0])] = row[1]
	}
	return db, nil
}

// Len returns the number of entries in the database.
func (d *Database) Len() int {
	return len(d.arks)
}

// Lookup resolves a document title (or title-based filename) to its ARK.
// Failed lookups are recorded and reported by Missing.
func (d *Database) Lookup(title string) (string, bool) {
	ark, ok := d.arks[NormalizeTitle(title)]
	if !ok {
		d.missing = append(d.missing, title)
		return "", false
	}
	return ark, true
}

// Missing returns the titles that failed to resolve, in lookup order.
func (d *Database) Missing() []string {
	return d.missing
}
