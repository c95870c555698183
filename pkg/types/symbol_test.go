package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolInBounds(t *testing.T) {
	// Ten-line file: valid line indexes are 0 through 9.
	const lineCount = 10

	inRange := Symbol{Name: "handle", Kind: KindFunction, StartLine: 3, EndLine: 7}
	assert.True(t, inRange.InBounds(lineCount))

	lastLine := Symbol{Name: "tail", Kind: KindFunction, StartLine: 9, EndLine: 9}
	assert.True(t, lastLine.InBounds(lineCount))

	pastEnd := Symbol{Name: "ghost", Kind: KindFunction, StartLine: 10, EndLine: 15}
	assert.False(t, pastEnd.InBounds(lineCount))

	straddling := Symbol{Name: "overflow", Kind: KindFunction, StartLine: 8, EndLine: 10}
	assert.False(t, straddling.InBounds(lineCount))
}

func TestSymbolValidate(t *testing.T) {
	valid := Symbol{Name: "run", Kind: KindFunction, StartLine: 0, EndLine: 2}
	assert.NoError(t, valid.Validate())

	unnamed := Symbol{Kind: KindFunction}
	assert.Error(t, unnamed.Validate())

	badKind := Symbol{Name: "x", Kind: SymbolKind("struct")}
	assert.Error(t, badKind.Validate())

	inverted := Symbol{Name: "x", Kind: KindFunction, StartLine: 5, EndLine: 2}
	assert.Error(t, inverted.Validate())
}

func TestSymbolNamingHelpers(t *testing.T) {
	assert.True(t, (&Symbol{Name: "_hidden"}).IsPrivate())
	assert.False(t, (&Symbol{Name: "Visible"}).IsPrivate())

	assert.True(t, (&Symbol{Name: "MAX_RETRIES"}).IsConstantCase())
	assert.False(t, (&Symbol{Name: "MaxRetries"}).IsConstantCase())
	assert.False(t, (&Symbol{Name: "__"}).IsConstantCase())
}
