package tools

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Comcast/tuplescript/interpreters/tuplescript"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderBuiltinsPage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderBuiltinsPage(tuplescript.Builtins(), &buf, []string{"builtins.css"}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, `<link href="builtins.css" rel="stylesheet">`)
	assert.Contains(t, out, `<h2 id="control">control</h2>`)
	assert.Contains(t, out, `<span id="defun" class="builtinName">defun</span>`)
	assert.Contains(t, out, `<code>set_meta owner:key targetOwner:targetKey</code>`)
	assert.Equal(t, strings.Count(out, `<div class="category">`), strings.Count(out, `</table></div>`))
}
