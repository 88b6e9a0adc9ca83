package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/jusox/internal/domain"
)

func sampleRows() []domain.Row {
	return []domain.Row{
		{Index: 1, Input: "Sejong-daero 110", MatchedAddress: "서울특별시 중구 세종대로 110 (태평로1가)", PostalCode: "04524", Choice: domain.ChoiceAuto},
		{Index: 2, Input: `say "hi", ok`, Note: domain.NoteNoMatch},
		{Index: 3, Input: "Teheran-ro 152", PostalCode: "06236", Choice: domain.ChoiceAuto, Note: domain.NoteFallbackZipOnly},
	}
}

func TestWriteCSV_Format(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))
	out := buf.String()

	require.True(t, strings.HasPrefix(out, "\ufeff"), "缺少 BOM")
	lines := strings.Split(strings.TrimPrefix(out, "\ufeff"), "\r\n")
	require.Len(t, lines, 5) // 表头 + 3 行 + 末尾空串

	assert.Equal(t, `"index","input","matched_addr","zipNo","choice","note"`, lines[0])
	assert.Equal(t, `"1","Sejong-daero 110","서울특별시 중구 세종대로 110 (태평로1가)","04524","auto",""`, lines[1])
	assert.Equal(t, `"2","say ""hi"", ok","","","","NO_MATCH"`, lines[2])
	assert.Equal(t, "", lines[4])
}

func TestWriteCSV_ReadableByEncodingCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRows()))

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(buf.Bytes(), []byte("\ufeff"))))
	recs, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, Header, recs[0])
	assert.Equal(t, `say "hi", ok`, recs[2][1])
	assert.Equal(t, domain.NoteFallbackZipOnly, recs[3][5])
}

func TestWriteCSVFile_Atomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	require.NoError(t, WriteCSVFile(path, sampleRows()))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(b, []byte("\ufeff")))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "不应残留临时文件")
}
