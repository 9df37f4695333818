package callback

import "html/template"

// pageData fills the result page. Error and Description are only set
// when the hub redirected with an OAuth error instead of a code.
type pageData struct {
	Title       string
	Message     string
	Error       string
	Description string
}

var resultPage = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>halcyon</title>
<style>
  *, *::before, *::after { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif;
    background: #f5f5f5;
    color: #1a1a1a;
    display: flex;
    align-items: center;
    justify-content: center;
    min-height: 100vh;
  }
  .card {
    background: #fff;
    border: 1px solid #e0e0e0;
    border-radius: 8px;
    padding: 2.5rem 2rem;
    width: 100%;
    max-width: 420px;
    box-shadow: 0 1px 3px rgba(0,0,0,0.06);
  }
  .card h1 { font-size: 1.25rem; font-weight: 600; margin-bottom: 0.5rem; }
  .card p { font-size: 0.9rem; color: #444; }
  .error {
    background: #fef2f2;
    color: #991b1b;
    border: 1px solid #fecaca;
    border-radius: 6px;
    padding: 0.6rem 0.75rem;
    font-size: 0.85rem;
    margin-top: 1rem;
  }
  .error code { font-size: 0.8rem; }
</style>
</head>
<body>
<div class="card">
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
  {{- if .Error}}
  <div class="error"><code>{{.Error}}</code>{{if .Description}}: {{.Description}}{{end}}</div>
  {{- end}}
</div>
</body>
</html>`))

var (
	successData = pageData{
		Title:   "Device authorized",
		Message: "Halcyon received the authorization code. You can close this window and return to the terminal.",
	}

	failureData = pageData{
		Title:   "Authorization failed",
		Message: "The redirect did not include an authorization code. Check the terminal for details and run setup again.",
	}
)
