// Package artifact persists the crawl outputs: raw JSON payloads grouped by
// parent, normalized CSV rows, a manifest summarizing the run, and the SQL
// dump. Nothing is written until the full crawl has succeeded; a failed run
// leaves no files behind.
package artifact

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

// Writer knows the three output roots. The periode is appended to the raw and
// processed roots so snapshots from different periodes never collide.
type Writer struct {
	RawDir       string
	ProcessedDir string
	SQLDir       string
}

// Paths are the periode-scoped directories of one run.
type Paths struct {
	Raw       string
	Processed string
}

// Resolve returns the periode-scoped paths without creating anything, for
// dry-run reporting.
func (w Writer) Resolve(periode string) Paths {
	return Paths{
		Raw:       filepath.Join(w.RawDir, periode),
		Processed: filepath.Join(w.ProcessedDir, periode),
	}
}

// EnsureDirs creates the output directories for one periode.
func (w Writer) EnsureDirs(periode string) (Paths, error) {
	paths := w.Resolve(periode)
	for _, dir := range []string{w.SQLDir, paths.Raw, paths.Processed} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Paths{}, errors.Wrapf(err, "create output dir %s", dir)
		}
	}
	return paths, nil
}

// SQLPath resolves the dump filename: an explicit override wins, otherwise
// bps_wilayah_<periode>.sql with slashes in the periode made path-safe.
func (w Writer) SQLPath(periode, override string) string {
	name := override
	if name == "" {
		name = "bps_wilayah_" + strings.ReplaceAll(periode, "/", "-") + ".sql"
	}
	return filepath.Join(w.SQLDir, name)
}

// rawDocument is one <level>.json file: every fetched row for the level,
// grouped by the parent code it was fetched under.
type rawDocument struct {
	Level     string     `json:"level"`
	FetchedAt string     `json:"fetched_at"`
	Payloads  []rawGroup `json:"payloads"`
}

type rawGroup struct {
	ParentKodeBPS *string  `json:"parent_kode_bps"`
	Items         []rawRow `json:"items"`
}

// rawRow mirrors wilayah.Record with a nullable parent so root rows serialize
// as JSON null rather than an empty string.
type rawRow struct {
	Level           string  `json:"level"`
	KodeBPS         string  `json:"kode_bps"`
	NamaBPS         string  `json:"nama_bps"`
	KodeDagri       string  `json:"kode_dagri"`
	NamaDagri       string  `json:"nama_dagri"`
	ParentKodeBPS   *string `json:"parent_kode_bps"`
	ProvinceKodeBPS string  `json:"province_kode_bps"`
}

// WriteRaw persists one level's rows grouped by parent code, parents sorted.
func (w Writer) WriteRaw(paths Paths, level wilayah.Level, rows []wilayah.Record, fetchedAt string) error {
	grouped := make(map[string][]rawRow)
	for _, row := range rows {
		grouped[row.ParentKodeBPS] = append(grouped[row.ParentKodeBPS], rawRow{
			Level:           string(row.Level),
			KodeBPS:         row.KodeBPS,
			NamaBPS:         row.NamaBPS,
			KodeDagri:       row.KodeDagri,
			NamaDagri:       row.NamaDagri,
			ParentKodeBPS:   nullable(row.ParentKodeBPS),
			ProvinceKodeBPS: row.ProvinceKodeBPS,
		})
	}
	parents := make([]string, 0, len(grouped))
	for parent := range grouped {
		parents = append(parents, parent)
	}
	sort.Strings(parents)

	doc := rawDocument{
		Level:     string(level),
		FetchedAt: fetchedAt,
		Payloads:  make([]rawGroup, 0, len(parents)),
	}
	for _, parent := range parents {
		doc.Payloads = append(doc.Payloads, rawGroup{
			ParentKodeBPS: nullable(parent),
			Items:         grouped[parent],
		})
	}

	data, err := marshalIndent(doc)
	if err != nil {
		return errors.Wrapf(err, "marshal raw payloads for level %s", level)
	}
	target := filepath.Join(paths.Raw, string(level)+".json")
	return errors.Wrapf(os.WriteFile(target, data, 0o644), "write %s", target)
}

// CSVColumns is the fixed column set of the processed output. periode_merge
// and fetched_at are injected per run rather than carried on the records.
var CSVColumns = []string{
	"level",
	"kode_bps",
	"nama_bps",
	"kode_dagri",
	"nama_dagri",
	"parent_kode_bps",
	"periode_merge",
	"fetched_at",
	"province_kode_bps",
}

// WriteCSV persists one level's normalized rows.
func (w Writer) WriteCSV(paths Paths, level wilayah.Level, rows []wilayah.Record, periode, fetchedAt string) error {
	target := filepath.Join(paths.Processed, string(level)+".csv")
	f, err := os.Create(target)
	if err != nil {
		return errors.Wrapf(err, "create %s", target)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(CSVColumns); err != nil {
		return errors.Wrapf(err, "write header to %s", target)
	}
	for _, row := range rows {
		record := []string{
			string(row.Level),
			row.KodeBPS,
			row.NamaBPS,
			row.KodeDagri,
			row.NamaDagri,
			row.ParentKodeBPS,
			periode,
			fetchedAt,
			row.ProvinceKodeBPS,
		}
		if err := cw.Write(record); err != nil {
			return errors.Wrapf(err, "write row to %s", target)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrapf(err, "flush %s", target)
	}
	return errors.Wrapf(f.Close(), "close %s", target)
}

// Manifest summarizes one run. Field order matches the sorted-key JSON layout
// so manifests from different runs diff cleanly.
type Manifest struct {
	BaseURL      string         `json:"base_url"`
	Counts       map[string]int `json:"counts"`
	FetchedAt    string         `json:"fetched_at"`
	Levels       []string       `json:"levels"`
	PeriodeMerge string         `json:"periode_merge"`
}

// WriteManifest persists the run manifest next to the processed CSVs.
func (w Writer) WriteManifest(paths Paths, manifest Manifest) error {
	data, err := marshalIndent(manifest)
	if err != nil {
		return errors.Wrap(err, "marshal manifest")
	}
	target := filepath.Join(paths.Processed, "manifest.json")
	return errors.Wrapf(os.WriteFile(target, data, 0o644), "write %s", target)
}

// WriteSQL persists the rendered dump.
func (w Writer) WriteSQL(path, content string) error {
	return errors.Wrapf(os.WriteFile(path, []byte(content), 0o644), "write %s", path)
}

// marshalIndent is json.MarshalIndent without HTML escaping, so region names
// with ampersands survive verbatim.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
