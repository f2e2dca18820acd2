// Package sqlgen renders the flattened record set as a SQL dump matching the
// bps_wilayah reference schema. Rendering is deterministic: identical input
// always produces byte-identical text (stable sort keys, fixed column order).
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

// TableName is the target table of the generated dump.
const TableName = "bps_wilayah"

// Columns is the fixed column order used in every INSERT.
var Columns = []string{
	"kode_bps",
	"nama_bps",
	"kode_dagri",
	"nama_dagri",
	"level",
	"parent_kode_bps",
	"periode_merge",
	"fetched_at",
}

// Escape renders a value as a SQL literal: empty becomes the NULL literal,
// anything else is single-quote wrapped with embedded quotes doubled.
func Escape(value string) string {
	if value == "" {
		return "NULL"
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// Render emits the full dump: a comment header, the DROP/CREATE preamble with
// the primary key on (level, kode_bps) and the parent-code index, then one
// INSERT block per province. Provinces are sorted by code and rows within a
// province by (level rank, kode_bps).
func Render(records []wilayah.Record, periode string, levels []wilayah.Level, fetchedAt string) string {
	lines := []string{
		"/*",
		"BPS wilayah dump generated by bps-wilayah",
		"Source : https://sig.bps.go.id/",
		"Periode: " + periode,
		"Fetched: " + fetchedAt,
		"Levels : " + strings.Join(wilayah.LevelNames(levels), ", "),
		"*/",
		"--",
		"-- Table structure for table " + TableName,
		"--",
		"",
		"DROP TABLE IF EXISTS " + TableName + ";",
		"CREATE TABLE IF NOT EXISTS " + TableName + " (",
		"    kode_bps VARCHAR(16) NOT NULL,",
		"    nama_bps VARCHAR(200) NOT NULL,",
		"    kode_dagri VARCHAR(16),",
		"    nama_dagri VARCHAR(200),",
		"    level VARCHAR(16) NOT NULL,",
		"    parent_kode_bps VARCHAR(16),",
		"    periode_merge VARCHAR(32) NOT NULL,",
		"    fetched_at VARCHAR(32) NOT NULL,",
		"    PRIMARY KEY (level, kode_bps)",
		") ENGINE=MyISAM;",
		"CREATE INDEX " + TableName + "_parent_idx ON " + TableName + " (parent_kode_bps);",
		"",
		"--",
		"-- Dumping data for table " + TableName,
		"--",
		"",
	}

	byProvince := make(map[string][]wilayah.Record)
	provinceNames := make(map[string]string)
	for _, record := range records {
		provinceCode := record.ProvinceKodeBPS
		if provinceCode == "" {
			provinceCode = record.KodeBPS
		}
		byProvince[provinceCode] = append(byProvince[provinceCode], record)
		if record.Level == wilayah.LevelProvinsi {
			provinceNames[provinceCode] = record.NamaBPS
		}
	}

	provinceCodes := make([]string, 0, len(byProvince))
	for code := range byProvince {
		provinceCodes = append(provinceCodes, code)
	}
	sort.Strings(provinceCodes)

	for _, provinceCode := range provinceCodes {
		provinceName := provinceNames[provinceCode]
		if provinceName == "" {
			provinceName = provinceCode
		}
		group := byProvince[provinceCode]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Level.Rank() != group[j].Level.Rank() {
				return group[i].Level.Rank() < group[j].Level.Rank()
			}
			return group[i].KodeBPS < group[j].KodeBPS
		})

		lines = append(lines,
			"-- Provinsi "+provinceName,
			"INSERT INTO "+TableName+" ("+strings.Join(Columns, ", ")+")",
			"VALUES",
		)
		for i, record := range group {
			values := []string{
				Escape(record.KodeBPS),
				Escape(record.NamaBPS),
				Escape(record.KodeDagri),
				Escape(record.NamaDagri),
				Escape(string(record.Level)),
				Escape(record.ParentKodeBPS),
				Escape(periode),
				Escape(fetchedAt),
			}
			terminator := ","
			if i == len(group)-1 {
				terminator = ";"
			}
			lines = append(lines, fmt.Sprintf("(%s)%s", strings.Join(values, ", "), terminator))
		}
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}
