// Package compiler assembles the three student source buffers into one
// self-contained sandbox document and recompiles it after a settling delay.
package compiler

import (
	"strings"

	"github.com/praxislabs/codelab-engine/internal/model"
)

// Styling toolkit assets injected when the exercise enables the toolkit.
const (
	ToolkitStylesheetURL = "https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css"
	ToolkitScriptURL     = "https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/js/bootstrap.bundle.min.js"
)

// Compile merges the buffers into a single document string. It is a pure
// function of the buffers and the toolkit flag: identical inputs yield
// byte-identical output.
//
// The student script is wrapped in try/catch so a runtime error in student
// code can never crash the host page; the catch only logs. The document is
// rendered by an isolated execution context (script execution allowed,
// same-origin access denied) — see SandboxHeaders.
func Compile(b model.SourceBuffers, withToolkit bool) string {
	var doc strings.Builder

	doc.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	if withToolkit {
		doc.WriteString("<link rel=\"stylesheet\" href=\"" + ToolkitStylesheetURL + "\">\n")
	}
	doc.WriteString("<style>\n")
	doc.WriteString(b.CSS)
	doc.WriteString("\n</style>\n</head>\n<body>\n")
	doc.WriteString(b.HTML)
	doc.WriteString("\n")
	if withToolkit {
		doc.WriteString("<script src=\"" + ToolkitScriptURL + "\"></script>\n")
	}
	doc.WriteString("<script>\ntry {\n")
	doc.WriteString(b.JS)
	doc.WriteString("\n} catch (err) {\n  console.error('Runtime error:', err);\n}\n</script>\n</body>\n</html>\n")

	return doc.String()
}

// SandboxHeaders are set on every response serving a compiled document.
// The CSP sandbox directive permits script execution but denies the
// document same-origin access, storage and top-level navigation.
func SandboxHeaders() map[string]string {
	return map[string]string{
		"Content-Security-Policy": "sandbox allow-scripts",
		"X-Content-Type-Options":  "nosniff",
	}
}
