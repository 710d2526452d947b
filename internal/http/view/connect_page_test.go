package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConnectPage(t *testing.T) {
	html, err := RenderConnectPage(ConnectPageData{Connected: true, Message: "All set", Status: "connected"})
	require.NoError(t, err)
	assert.Contains(t, html, "eBay connected")
	assert.Contains(t, html, "All set")
	assert.NotContains(t, html, "Back to MyGlassCase")
}

func TestRenderConnectPage_EscapesMessage(t *testing.T) {
	html, err := RenderConnectPage(ConnectPageData{Message: "<script>alert(1)</script>", Status: "failed", AppURL: "https://myglasscase.app"})
	require.NoError(t, err)
	assert.Contains(t, html, "eBay connection failed")
	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "Back to MyGlassCase")
}
