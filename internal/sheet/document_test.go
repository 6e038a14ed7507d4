package sheet

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDocument(t *testing.T) {
	sheets, err := ParseDocument([]byte(`{"name":"Sheet1","cells":[["a","b"],[1,2]]}`), LoadOptions{})
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, "Sheet1", sheets[0].Name)
	assert.Len(t, sheets[0].Cells, 2)

	sheets, err = ParseDocument([]byte(`{"sheets":[{"name":"A","cells":[]},{"name":"B","cells":[["x"]]}]}`), LoadOptions{})
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Equal(t, "B", sheets[1].Name)
}

func TestParseDocument_Workbook(t *testing.T) {
	content, err := os.ReadFile(writeWorkbook(t))
	require.NoError(t, err)

	sheets, err := ParseDocument(content, LoadOptions{})
	require.NoError(t, err)
	require.Len(t, sheets, 1)
	assert.Equal(t, "Sheet1", sheets[0].Name)
}

func TestParseDocument_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "  \n", "no input"},
		{"bad json", "{", "failed to parse sheet JSON"},
		{"no sheets", `{"sheets": []}`, "input has no sheets"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDocument([]byte(tt.content), LoadOptions{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := ParseDocument([]byte(`{}`), LoadOptions{})
	assert.ErrorIs(t, err, ErrNoSheets)
}
