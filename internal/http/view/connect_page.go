package view

import (
	"bytes"
	"html/template"
)

// ConnectPageData provides the dynamic fields of the eBay connection result page.
type ConnectPageData struct {
	Title     string
	Connected bool
	Message   string
	// AppURL is where the "Back to MyGlassCase" button leads.
	AppURL string
	// Status is posted to the opener window so the app can close the popup.
	Status string
}

var connectPageTmpl = template.Must(template.New("connect_page").Parse(`
<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8" />
	<meta name="viewport" content="width=device-width, initial-scale=1" />
	<title>{{.Title}}</title>
	<style>
		:root {
			--bg: #0b1120;
			--card: rgba(255, 255, 255, 0.05);
			--border: rgba(255, 255, 255, 0.15);
			--text: #e7ecff;
			--muted: #a1acc5;
			--ok: #34d399;
			--fail: #f87171;
			--accent: #7dd3fc;
			--accent-strong: #38bdf8;
			font-family: "Inter", -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif;
		}
		* { box-sizing: border-box; }
		body {
			margin: 0;
			min-height: 100vh;
			display: flex;
			align-items: center;
			justify-content: center;
			background: radial-gradient(circle at 20% 20%, #111827, #030712 60%);
			color: var(--text);
		}
		.card {
			background: var(--card);
			border: 1px solid var(--border);
			border-radius: 18px;
			padding: 32px;
			width: min(480px, 92vw);
			box-shadow: 0 45px 100px rgba(0,0,0,0.35);
			backdrop-filter: blur(18px);
		}
		h1 {
			font-size: 1.5rem;
			margin-bottom: 6px;
		}
		h1.ok { color: var(--ok); }
		h1.fail { color: var(--fail); }
		p {
			color: var(--muted);
			margin-top: 0;
		}
		a.button {
			display: inline-flex;
			align-items: center;
			justify-content: center;
			margin-top: 24px;
			padding: 0 28px;
			height: 48px;
			border-radius: 999px;
			background: linear-gradient(120deg, var(--accent), var(--accent-strong));
			color: #050708;
			font-weight: 600;
			text-decoration: none;
		}
	</style>
</head>
<body>
	<div class="card">
		<h1 class="{{if .Connected}}ok{{else}}fail{{end}}">{{.Title}}</h1>
		<p>{{.Message}}</p>
		{{if .AppURL}}<a class="button" href="{{.AppURL}}">Back to MyGlassCase</a>{{end}}
	</div>
	<script>
		(function() {
			if (window.opener && !window.opener.closed) {
				window.opener.postMessage({ type: "ebay-auth", status: {{.Status}} }, "*");
				setTimeout(function() { window.close(); }, 1500);
			}
		})();
	</script>
</body>
</html>
`))

// RenderConnectPage expands the connection result template with the provided data.
func RenderConnectPage(data ConnectPageData) (string, error) {
	if data.Title == "" {
		if data.Connected {
			data.Title = "eBay connected"
		} else {
			data.Title = "eBay connection failed"
		}
	}
	var buf bytes.Buffer
	if err := connectPageTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
