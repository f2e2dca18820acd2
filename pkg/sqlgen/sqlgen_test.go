package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datapublik/bps-wilayah/pkg/wilayah"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty becomes NULL", input: "", want: "NULL"},
		{name: "plain value quoted", input: "ACEH", want: "'ACEH'"},
		{name: "embedded quote doubled", input: "KAB. O'KI", want: "'KAB. O''KI'"},
		{name: "two quotes", input: "''", want: "''''''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Escape(tt.input); got != tt.want {
				t.Errorf("Escape(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func sampleRecords() []wilayah.Record {
	return []wilayah.Record{
		{Level: wilayah.LevelKabupaten, KodeBPS: "1201", NamaBPS: "NIAS", ParentKodeBPS: "12", ProvinceKodeBPS: "12"},
		{Level: wilayah.LevelProvinsi, KodeBPS: "12", NamaBPS: "SUMATERA UTARA", ProvinceKodeBPS: "12"},
		{Level: wilayah.LevelProvinsi, KodeBPS: "11", NamaBPS: "ACEH", ProvinceKodeBPS: "11"},
		{Level: wilayah.LevelKabupaten, KodeBPS: "1101", NamaBPS: "ACEH SELATAN", ParentKodeBPS: "11", ProvinceKodeBPS: "11"},
	}
}

func TestRenderDeterministic(t *testing.T) {
	levels := []wilayah.Level{wilayah.LevelProvinsi, wilayah.LevelKabupaten}

	first := Render(sampleRecords(), "2024-1", levels, "2024-06-01T00:00:00Z")
	second := Render(sampleRecords(), "2024-1", levels, "2024-06-01T00:00:00Z")
	assert.Equal(t, first, second, "identical input must produce byte-identical SQL")
}

func TestRenderSchemaPreamble(t *testing.T) {
	out := Render(sampleRecords(), "2024-1", []wilayah.Level{wilayah.LevelProvinsi}, "2024-06-01T00:00:00Z")

	assert.Contains(t, out, "DROP TABLE IF EXISTS bps_wilayah;")
	assert.Contains(t, out, "PRIMARY KEY (level, kode_bps)")
	assert.Contains(t, out, "CREATE INDEX bps_wilayah_parent_idx ON bps_wilayah (parent_kode_bps);")
	assert.Contains(t, out, "Periode: 2024-1")
	assert.Contains(t, out, "Fetched: 2024-06-01T00:00:00Z")
}

func TestRenderGroupsByProvinceSorted(t *testing.T) {
	out := Render(sampleRecords(), "2024-1", []wilayah.Level{wilayah.LevelProvinsi, wilayah.LevelKabupaten}, "2024-06-01T00:00:00Z")

	aceh := strings.Index(out, "-- Provinsi ACEH")
	sumut := strings.Index(out, "-- Provinsi SUMATERA UTARA")
	require.NotEqual(t, -1, aceh)
	require.NotEqual(t, -1, sumut)
	assert.Less(t, aceh, sumut, "province blocks must be sorted by province code")

	// Within a province, the province row precedes its kabupaten row.
	acehBlock := out[aceh:sumut]
	provRow := strings.Index(acehBlock, "'11', 'ACEH'")
	kabRow := strings.Index(acehBlock, "'1101', 'ACEH SELATAN'")
	require.NotEqual(t, -1, provRow)
	require.NotEqual(t, -1, kabRow)
	assert.Less(t, provRow, kabRow)
}

func TestRenderNullParentForProvinces(t *testing.T) {
	records := []wilayah.Record{
		{Level: wilayah.LevelProvinsi, KodeBPS: "11", NamaBPS: "ACEH", ProvinceKodeBPS: "11"},
	}
	out := Render(records, "2024-1", []wilayah.Level{wilayah.LevelProvinsi}, "2024-06-01T00:00:00Z")

	assert.Contains(t, out, "('11', 'ACEH', NULL, NULL, 'provinsi', NULL, '2024-1', '2024-06-01T00:00:00Z');")
}

func TestRenderRowsSortedByLevelRankThenCode(t *testing.T) {
	records := []wilayah.Record{
		{Level: wilayah.LevelKecamatan, KodeBPS: "1101020", ParentKodeBPS: "1101", ProvinceKodeBPS: "11", NamaBPS: "B"},
		{Level: wilayah.LevelKecamatan, KodeBPS: "1101010", ParentKodeBPS: "1101", ProvinceKodeBPS: "11", NamaBPS: "A"},
		{Level: wilayah.LevelProvinsi, KodeBPS: "11", NamaBPS: "ACEH", ProvinceKodeBPS: "11"},
		{Level: wilayah.LevelKabupaten, KodeBPS: "1101", NamaBPS: "ACEH SELATAN", ParentKodeBPS: "11", ProvinceKodeBPS: "11"},
	}
	out := Render(records, "2024-1", wilayah.LevelOrder, "2024-06-01T00:00:00Z")

	positions := []int{
		strings.Index(out, "'provinsi'"),
		strings.Index(out, "'1101', 'ACEH SELATAN'"),
		strings.Index(out, "'1101010', 'A'"),
		strings.Index(out, "'1101020', 'B'"),
	}
	for i := 1; i < len(positions); i++ {
		require.NotEqual(t, -1, positions[i])
		assert.Less(t, positions[i-1], positions[i], "row %d out of order", i)
	}
}
