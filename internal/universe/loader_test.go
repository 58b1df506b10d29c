package universe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const constituentsHTML = `
<html><body>
<table id="constituents" class="wikitable">
<tbody>
<tr><th>Symbol</th><th>Security</th></tr>
<tr><td>MMM</td><td>3M</td></tr>
<tr><td>AAPL</td><td>Apple Inc.</td></tr>
<tr><td>BRK.B</td><td>Berkshire Hathaway</td></tr>
<tr><td>BF.B</td><td>Brown-Forman</td></tr>
<tr><td>AAPL</td><td>duplicate row</td></tr>
</tbody>
</table>
</body></html>`

func TestParseConstituents(t *testing.T) {
	symbols, err := ParseConstituents(strings.NewReader(constituentsHTML))
	require.NoError(t, err)

	assert.Equal(t, []string{"MMM", "AAPL", "BRK B", "BF B"}, symbols)
}

func TestParseConstituentsNoTable(t *testing.T) {
	_, err := ParseConstituents(strings.NewReader("<html><body><p>nope</p></body></html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"AAPL", "AAPL"},
		{" msft\n", "MSFT"},
		{"BRK.B", "BRK B"},
		{"BF.B", "BF B"},
		{"", ""},
		{"N/A", ""},
		{"TOOLONGNAME", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSymbol(tt.raw), "raw=%q", tt.raw)
	}
}
