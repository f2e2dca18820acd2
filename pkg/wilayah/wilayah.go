// Package wilayah defines the administrative-region data model shared by the
// crawler, the artifact writers, and the SQL generator.
//
// The BPS bridging API exposes a fixed four-level hierarchy:
// provinsi (province), kabupaten (regency), kecamatan (district), and
// desa (village). Every record carries both the BPS statistics code and the
// Kemendagri home-affairs code for the same unit.
package wilayah

import (
	"strings"

	"github.com/pkg/errors"
)

// Level is one tier of the administrative hierarchy.
type Level string

const (
	LevelProvinsi  Level = "provinsi"
	LevelKabupaten Level = "kabupaten"
	LevelKecamatan Level = "kecamatan"
	LevelDesa      Level = "desa"
)

// LevelOrder is the canonical crawl order. It determines fan-out precedence
// during the breadth-first traversal and the sort rank used when rendering SQL.
var LevelOrder = []Level{LevelProvinsi, LevelKabupaten, LevelKecamatan, LevelDesa}

// Rank returns the position of the level in LevelOrder, or 99 for an unknown
// level so that unexpected values sort last instead of panicking.
func (l Level) Rank() int {
	for i, known := range LevelOrder {
		if l == known {
			return i
		}
	}
	return 99
}

// String implements fmt.Stringer.
func (l Level) String() string {
	return string(l)
}

// ParseLevels splits a comma-separated list of level names, validates each
// against the known hierarchy, and returns them deduplicated and sorted by
// canonical rank. Caller order is not preserved: kabupaten always crawls
// after provinsi no matter how the flag was written, and a level named twice
// is crawled once. Unknown names are rejected eagerly so a typo fails the run
// before any network traffic.
func ParseLevels(raw string) ([]Level, error) {
	var levels []Level
	var unknown []string
	seen := make(map[Level]struct{})
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		level := Level(name)
		if level.Rank() == 99 {
			unknown = append(unknown, name)
			continue
		}
		if _, dup := seen[level]; dup {
			continue
		}
		seen[level] = struct{}{}
		levels = append(levels, level)
	}
	if len(unknown) > 0 {
		return nil, errors.Errorf("unsupported levels supplied: %s", strings.Join(unknown, ", "))
	}
	if len(levels) == 0 {
		return nil, errors.New("no levels supplied")
	}
	sortByRank(levels)
	return levels, nil
}

func sortByRank(levels []Level) {
	// Stable insertion sort; the input is already deduplicated.
	for i := 1; i < len(levels); i++ {
		for j := i; j > 0 && levels[j].Rank() < levels[j-1].Rank(); j-- {
			levels[j], levels[j-1] = levels[j-1], levels[j]
		}
	}
}

// LevelNames renders a level slice back to plain strings, mostly for logs and
// the manifest.
func LevelNames(levels []Level) []string {
	names := make([]string, len(levels))
	for i, level := range levels {
		names[i] = string(level)
	}
	return names
}

// Record is one flattened administrative unit.
//
// ParentKodeBPS is the immediate parent's code and is empty for provinces.
// ProvinceKodeBPS is the ancestral province regardless of depth; both are
// derived during the crawl and never mutated afterward.
type Record struct {
	Level           Level  `json:"level"`
	KodeBPS         string `json:"kode_bps"`
	NamaBPS         string `json:"nama_bps"`
	KodeDagri       string `json:"kode_dagri"`
	NamaDagri       string `json:"nama_dagri"`
	ParentKodeBPS   string `json:"parent_kode_bps"`
	ProvinceKodeBPS string `json:"province_kode_bps"`
}

// Flatten merges per-level record sets into a single slice ordered by the
// canonical level order (provinsi rows first, desa rows last). Levels absent
// from the map are skipped.
func Flatten(collected map[Level][]Record) []Record {
	var merged []Record
	for _, level := range LevelOrder {
		merged = append(merged, collected[level]...)
	}
	return merged
}
