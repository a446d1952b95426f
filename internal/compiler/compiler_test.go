package compiler

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/praxislabs/codelab-engine/internal/model"
)

func sampleBuffers() model.SourceBuffers {
	return model.SourceBuffers{
		HTML: `<h1 id="title">Hello</h1>`,
		CSS:  `h1 { color: rebeccapurple; }`,
		JS:   `document.getElementById("title");`,
	}
}

func TestCompileDeterministic(t *testing.T) {
	b := sampleBuffers()

	first := Compile(b, true)
	second := Compile(b, true)
	assert.Equal(t, first, second, "identical inputs must yield byte-identical documents")

	// The toolkit flag is part of the input.
	assert.NotEqual(t, Compile(b, true), Compile(b, false))
}

func TestCompileDocumentStructure(t *testing.T) {
	b := sampleBuffers()
	doc := Compile(b, true)

	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
	assert.Contains(t, doc, b.HTML)
	assert.Contains(t, doc, b.CSS)
	assert.Contains(t, doc, b.JS)
	assert.Contains(t, doc, ToolkitStylesheetURL)
	assert.Contains(t, doc, ToolkitScriptURL)

	// Assembly order: toolkit stylesheet, inline style, markup, toolkit
	// script, then the wrapped student script.
	positions := []int{
		strings.Index(doc, ToolkitStylesheetURL),
		strings.Index(doc, b.CSS),
		strings.Index(doc, b.HTML),
		strings.Index(doc, ToolkitScriptURL),
		strings.Index(doc, b.JS),
	}
	for i := 1; i < len(positions); i++ {
		require.Greater(t, positions[i], positions[i-1], "segment %d out of order", i)
	}
}

func TestCompileWithoutToolkit(t *testing.T) {
	doc := Compile(sampleBuffers(), false)
	assert.NotContains(t, doc, ToolkitStylesheetURL)
	assert.NotContains(t, doc, ToolkitScriptURL)
}

func TestCompileWrapsScriptInTryCatch(t *testing.T) {
	doc := Compile(sampleBuffers(), false)

	tryIdx := strings.Index(doc, "try {")
	jsIdx := strings.Index(doc, sampleBuffers().JS)
	catchIdx := strings.Index(doc, "} catch (err) {")

	require.NotEqual(t, -1, tryIdx)
	require.NotEqual(t, -1, catchIdx)
	assert.Greater(t, jsIdx, tryIdx)
	assert.Greater(t, catchIdx, jsIdx)

	// The catch only logs; it must not rethrow or surface to the host.
	assert.Contains(t, doc, "console.error")
	assert.NotContains(t, doc[catchIdx:], "throw")
}

func TestCompileEmptyBuffers(t *testing.T) {
	doc := Compile(model.SourceBuffers{}, false)
	assert.Contains(t, doc, "<body>")
	assert.Contains(t, doc, "try {")
}

func TestSandboxHeaders(t *testing.T) {
	headers := SandboxHeaders()
	assert.Equal(t, "sandbox allow-scripts", headers["Content-Security-Policy"])
	assert.Equal(t, "nosniff", headers["X-Content-Type-Options"])
}
