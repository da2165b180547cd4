package parsers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestFiles(t *testing.T) string {
	tempDir := t.TempDir()

	csvContent := `respondent_id,feedback,score
1,great service,9
2,too expensive,4
3,friendly staff,8
`
	csvPath := filepath.Join(tempDir, "survey.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csvContent), 0644))

	jsonContent := `[
  {"respondent_id": 1, "feedback": "great service", "score": 9},
  {"respondent_id": 2, "feedback": "too expensive", "score": 4},
  {"respondent_id": 3, "feedback": "friendly staff", "score": 8}
]`
	jsonPath := filepath.Join(tempDir, "survey.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(jsonContent), 0644))

	jsonlContent := `{"respondent_id": 1, "feedback": "great service", "score": 9}
{"respondent_id": 2, "feedback": "too expensive", "score": 4}
{"respondent_id": 3, "feedback": "friendly staff", "score": 8}
`
	jsonlPath := filepath.Join(tempDir, "survey.jsonl")
	require.NoError(t, os.WriteFile(jsonlPath, []byte(jsonlContent), 0644))

	ndjsonPath := filepath.Join(tempDir, "survey.ndjson")
	require.NoError(t, os.WriteFile(ndjsonPath, []byte(jsonlContent), 0644))

	return tempDir
}

func TestCSVParser_Parse(t *testing.T) {
	tempDir := setupTestFiles(t)
	csvPath := filepath.Join(tempDir, "survey.csv")

	parser := NewCSVParser(nil)
	table, err := parser.Parse(context.Background(), csvPath)

	require.NoError(t, err)
	assert.Equal(t, "CSV", table.Format)
	assert.Equal(t, []string{"respondent_id", "feedback", "score"}, table.Columns)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "great service", table.Rows[0]["feedback"])
	assert.Equal(t, "9", table.Rows[0]["score"])
}

func TestCSVParser_SkipEmptyRows(t *testing.T) {
	csvContent := `respondent_id,feedback
1,great
,
2,slow
,
`
	parser := NewCSVParser(nil)
	table, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(csvContent)))

	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, 2, table.SkippedRows)
	assert.Equal(t, 4, table.TotalRows)
}

func TestCSVParser_TrimWhitespace(t *testing.T) {
	csvContent := `  feedback  ,  score
  great  ,  9
`
	parser := NewCSVParser(nil)
	table, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(csvContent)))

	require.NoError(t, err)
	assert.Equal(t, []string{"feedback", "score"}, table.Columns)
	assert.Equal(t, "great", table.Rows[0]["feedback"])
}

func TestCSVParser_ShortRowsPadWithBlanks(t *testing.T) {
	csvContent := `respondent_id,feedback,score
1,great,9
2,slow
3
`
	parser := NewCSVParser(nil)
	table, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(csvContent)))

	require.NoError(t, err)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "", table.Rows[1]["score"])
	assert.Equal(t, "", table.Rows[2]["feedback"])
	assert.Equal(t, "", table.Rows[2]["score"])
}

func TestJSONParser_ParseStringifiesCells(t *testing.T) {
	tempDir := setupTestFiles(t)
	jsonPath := filepath.Join(tempDir, "survey.json")

	parser := NewJSONParser(nil)
	table, err := parser.Parse(context.Background(), jsonPath)

	require.NoError(t, err)
	assert.Equal(t, "JSON", table.Format)
	require.Len(t, table.Rows, 3)
	assert.Equal(t, "great service", table.Rows[0]["feedback"])
	assert.Equal(t, "9", table.Rows[0]["score"])
	assert.Equal(t, "1", table.Rows[0]["respondent_id"])
}

func TestJSONParser_SingleObjectIsOneRow(t *testing.T) {
	jsonContent := `{"feedback": "great", "score": 9.5}`
	parser := NewJSONParser(nil)
	table, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(jsonContent)))

	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "9.5", table.Rows[0]["score"])
}

func TestJSONLParser_SkipsEmptyAndMalformedLines(t *testing.T) {
	jsonlContent := `{"feedback": "great"}

{not json}
{"feedback": "slow"}
`
	parser := NewJSONLParser(nil)
	table, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(jsonlContent)))

	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
	assert.Equal(t, 2, table.SkippedRows)
}

func TestJSONLParser_ColumnsFollowFirstAppearance(t *testing.T) {
	jsonlContent := `{"feedback": "great"}
{"feedback": "slow", "score": 4}
`
	parser := NewJSONLParser(nil)
	table, err := parser.ParseStream(context.Background(), bytes.NewReader([]byte(jsonlContent)))

	require.NoError(t, err)
	assert.Equal(t, []string{"feedback", "score"}, table.Columns)
	assert.Equal(t, "", table.Rows[0]["score"])
}

func TestTable_ColumnValues(t *testing.T) {
	table := &Table{
		Columns: []string{"feedback", "score"},
		Rows: []map[string]string{
			{"feedback": "great", "score": "9"},
			{"feedback": "slow"},
		},
	}

	assert.True(t, table.HasColumn("score"))
	assert.False(t, table.HasColumn("missing"))
	assert.Equal(t, []string{"great", "slow"}, table.ColumnValues("feedback"))
	assert.Equal(t, []string{"9", ""}, table.ColumnValues("score"))
}

func TestParserFactory_GetParser(t *testing.T) {
	factory := NewParserFactory(nil)

	for _, ext := range []string{".csv", ".xlsx", ".xls", ".json", ".jsonl", ".ndjson", "CSV"} {
		t.Run(ext, func(t *testing.T) {
			parser, err := factory.GetParser(ext)
			require.NoError(t, err)
			assert.NotNil(t, parser)
		})
	}

	parser, err := factory.GetParser(".txt")
	assert.Error(t, err)
	assert.Nil(t, parser)
	assert.Contains(t, err.Error(), "no parser found")
}

func TestParserFactory_ParseFile(t *testing.T) {
	tempDir := setupTestFiles(t)
	factory := NewParserFactory(nil)

	tests := []struct {
		filename string
		format   string
	}{
		{"survey.csv", "CSV"},
		{"survey.json", "JSON"},
		{"survey.jsonl", "JSONL"},
		{"survey.ndjson", "JSONL"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			table, err := factory.ParseFile(context.Background(), filepath.Join(tempDir, tt.filename))
			require.NoError(t, err)
			assert.Equal(t, tt.format, table.Format)
			assert.Len(t, table.Rows, 3)
			assert.Equal(t, []string{"great service", "too expensive", "friendly staff"},
				table.ColumnValues("feedback"))
		})
	}
}

func TestParserConfig_MaxFileSize(t *testing.T) {
	tempDir := setupTestFiles(t)

	config := DefaultParserConfig()
	config.MaxFileSize = 10

	parser := NewCSVParser(config)
	_, err := parser.Parse(context.Background(), filepath.Join(tempDir, "survey.csv"))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestContext_Cancellation(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("feedback\n")
	for i := 0; i < 10000; i++ {
		buf.WriteString("fine\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser := NewCSVParser(nil)
	_, err := parser.ParseStream(ctx, &buf)

	assert.Equal(t, context.Canceled, err)
}

func TestStringifyCell(t *testing.T) {
	tests := []struct {
		in   interface{}
		want string
	}{
		{nil, ""},
		{"text", "text"},
		{true, "true"},
		{float64(9), "9"},
		{9.5, "9.5"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, stringifyCell(tt.in))
	}
}
