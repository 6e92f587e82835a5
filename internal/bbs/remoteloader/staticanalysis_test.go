package remoteloader

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbserr"
)

func TestAnalyzeRejectsEval(t *testing.T) {
	source := `module.exports = { handleCommand: function() { return eval("1+1"); } };`
	err := Analyze(source)
	require.Error(t, err)
	bErr := bbserr.As(err)
	require.NotNil(t, bErr)
	assert.Equal(t, bbserr.KindSandbox, bErr.Kind)
	assert.Contains(t, bErr.Message, "eval")
}

func TestAnalyzeRejectsForbiddenGlobal(t *testing.T) {
	source := `module.exports = { handleCommand: function() { return process.env; } };`
	err := Analyze(source)
	require.Error(t, err)
	assert.Equal(t, bbserr.KindSandbox, bbserr.As(err).Kind)
}

func TestAnalyzeRejectsForbiddenModule(t *testing.T) {
	source := `const fs = require("fs"); module.exports = { handleCommand: function() {} };`
	err := Analyze(source)
	require.Error(t, err)
	assert.Contains(t, bbserr.As(err).Details["module"], "fs")
}

func TestAnalyzeRejectsPrototypeAccess(t *testing.T) {
	source := `module.exports = { handleCommand: function() { return ({}).__proto__; } };`
	err := Analyze(source)
	require.Error(t, err)
}

func TestAnalyzeRejectsDynamicFunctionConstruction(t *testing.T) {
	source := `module.exports = { handleCommand: function() { return new Function("return 1"); } };`
	err := Analyze(source)
	require.Error(t, err)
}

func TestAnalyzeAllowsCleanSource(t *testing.T) {
	source := `module.exports = {
		meta: { name: "clean" },
		getWelcomeScreen: function() { return "hi"; },
		handleCommand: function(screenId, command, session) {
			return { response: "ok", refresh: true };
		},
	};`
	assert.NoError(t, Analyze(source))
}

func TestAnalyzeRejectsOversizedSource(t *testing.T) {
	source := strings.Repeat("a", (1<<20)+1)
	err := Analyze(source)
	require.Error(t, err)
	assert.Contains(t, bbserr.As(err).Message, "1 MiB")
}

func TestAnalyzeRejectsUnbalancedBrackets(t *testing.T) {
	err := Analyze(`module.exports = { handleCommand: function() { `)
	require.Error(t, err)
	assert.Contains(t, bbserr.As(err).Message, "unbalanced")
}

func TestAnalyzeRejectsTooManyParams(t *testing.T) {
	params := strings.Repeat("p,", maxParams)
	source := "function f(" + params + "pLast) {}"
	err := Analyze(source)
	require.Error(t, err)
	assert.Contains(t, bbserr.As(err).Message, "parameter count")
}
