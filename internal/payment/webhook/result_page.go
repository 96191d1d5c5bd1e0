package webhook

import (
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"blankcanvas-be/internal/logger"

	"go.uber.org/zap"
)

const (
	// deepLinkDelayMs gives the iframe attempt a head start before navigating.
	deepLinkDelayMs = 100
	// webFallbackDelayMs is when the page gives up on the app and goes to the web result.
	webFallbackDelayMs = 2000

	resultPath = "/payment/result"
)

type resultPage struct {
	Title      string
	Message    string
	Accent     string
	AppURL     template.JS
	WebURL     template.JS
	DeepLinkMs int
	FallbackMs int
}

var resultPageTmpl = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body { display: flex; justify-content: center; align-items: center; height: 100vh; font-family: Arial, sans-serif; background: #f5f5f5; }
    .container { text-align: center; padding: 20px; }
    .spinner { border: 4px solid #f3f3f3; border-top: 4px solid {{.Accent}}; border-radius: 50%; width: 40px; height: 40px; animation: spin 1s linear infinite; margin: 20px auto; }
    @keyframes spin { 0% { transform: rotate(0deg); } 100% { transform: rotate(360deg); } }
  </style>
</head>
<body>
  <div class="container">
    <div class="spinner"></div>
    <p>{{.Message}}</p>
  </div>
  <script>
    var appUrl = {{.AppURL}};
    var webUrl = {{.WebURL}};

    var iframe = document.createElement('iframe');
    iframe.style.display = 'none';
    iframe.src = appUrl;
    document.body.appendChild(iframe);

    setTimeout(function() { window.location.href = appUrl; }, {{.DeepLinkMs}});
    setTimeout(function() { window.location.href = webUrl; }, {{.FallbackMs}});
  </script>
</body>
</html>
`))

var redirectTmpl = template.Must(template.New("redirect").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body>
  <script>
    window.location.href = {{.}};
  </script>
</body>
</html>
`))

// param is one query pair; order is kept so URLs read the same as the
// gateway documentation.
type param struct {
	key, value string
}

func withQuery(base string, params ...param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p.key+"="+url.QueryEscape(p.value))
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + strings.Join(parts, "&")
}

func (c ReturnConfig) webResultURL(params ...param) string {
	return withQuery(strings.TrimRight(c.ClientURL, "/")+resultPath, params...)
}

func (c ReturnConfig) appResultURL(params ...param) string {
	return withQuery(c.DeepLink, params...)
}

func successParam(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}

// jsString quotes s as a JavaScript string literal safe inside <script>.
// '&' is left alone so the redirect target is readable in the page source.
func jsString(s string) template.JS {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\'':
			b.WriteString(`\u0027`)
		case '<':
			b.WriteString(`\u003c`)
		case '>':
			b.WriteString(`\u003e`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return template.JS(b.String())
}

// writeResultPage tries the app deep link first and always falls back to
// the web result page; a browser cannot tell whether a custom scheme opened.
func writeResultPage(w http.ResponseWriter, r *http.Request, title, message, accent, appURL, webURL string) {
	page := resultPage{
		Title:      title,
		Message:    message,
		Accent:     accent,
		AppURL:     jsString(appURL),
		WebURL:     jsString(webURL),
		DeepLinkMs: deepLinkDelayMs,
		FallbackMs: webFallbackDelayMs,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := resultPageTmpl.Execute(w, page); err != nil {
		logger.FromCtx(r.Context()).Error("failed to render payment result page", zap.Error(err))
	}
}

// writeScriptRedirect sends the browser straight to target.
func writeScriptRedirect(w http.ResponseWriter, r *http.Request, target string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if err := redirectTmpl.Execute(w, jsString(target)); err != nil {
		logger.FromCtx(r.Context()).Error("failed to render payment redirect", zap.Error(err))
	}
}
