package api

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/reelscript/reelscript/internal/model"
	"github.com/reelscript/reelscript/internal/observability"
	"github.com/reelscript/reelscript/internal/scriptfmt"
	"github.com/reelscript/reelscript/internal/store"
	"github.com/reelscript/reelscript/internal/worker"
)

// scriptPageTmpl renders the shareable read-only script page. Template
// interpolation escapes all script content.
var scriptPageTmpl = template.Must(template.New("script").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta name="robots" content="noindex, nofollow">
<title>Your Speaking Script</title>
<style>
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; max-width: 640px; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
h1 { font-size: 1.4rem; }
section { margin: 1.5rem 0; }
section h2 { font-size: 0.85rem; text-transform: uppercase; letter-spacing: 0.08em; color: #888; margin-bottom: 0.4rem; }
section p { white-space: pre-wrap; line-height: 1.6; margin: 0; }
button { background: #1a1a1a; color: #fff; border: 0; border-radius: 6px; padding: 0.6rem 1.2rem; font-size: 1rem; cursor: pointer; }
footer { margin-top: 2.5rem; font-size: 0.8rem; color: #aaa; }
</style>
</head>
<body>
<h1>Your Speaking Script</h1>
{{if .Hook}}<section><h2>Hook</h2><p>{{.Hook}}</p></section>{{end}}
{{if .Body}}<section><h2>Body</h2><p>{{.Body}}</p></section>{{end}}
{{if .CTA}}<section><h2>Call to Action</h2><p>{{.CTA}}</p></section>{{end}}
<button id="copy">Copy script</button>
<footer>Generated from your reel. This page is private to whoever holds the link.</footer>
<textarea id="raw" style="position:absolute;left:-9999px">{{.Raw}}</textarea>
<script>
document.getElementById("copy").addEventListener("click", function () {
  var raw = document.getElementById("raw").value;
  navigator.clipboard.writeText(raw).then(function () {
    document.getElementById("copy").textContent = "Copied!";
  });
});
</script>
</body>
</html>
`))

var notFoundPage = []byte(`<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>Script not found</title></head>
<body style="font-family: sans-serif; max-width: 640px; margin: 3rem auto; padding: 0 1rem">
<h1>Script not found</h1>
<p>This link has expired or never existed. Send a new reel to get a fresh script.</p>
</body></html>`)

type scriptPage struct {
	Hook string
	Body string
	CTA  string
	Raw  string
}

// PublicViewHandler serves GET /s/{publicId}.
type PublicViewHandler struct {
	st      store.Store
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewPublicViewHandler(st store.Store, metrics *observability.Metrics, log zerolog.Logger) *PublicViewHandler {
	return &PublicViewHandler{st: st, metrics: metrics, log: log}
}

func (h *PublicViewHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	if h.metrics != nil {
		h.metrics.Requests.WithLabelValues("public_view").Inc()
	}
	publicID := mux.Vars(r)["publicId"]
	if !worker.ValidPublicID(publicID) {
		http.Error(w, "invalid script id", http.StatusBadRequest)
		return
	}

	sc, err := h.st.Scripts().GetByPublicID(r.Context(), publicID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write(notFoundPage)
			return
		}
		http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
		return
	}

	sections := scriptfmt.Parse(sc.ScriptText)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if err := scriptPageTmpl.Execute(w, scriptPage{
		Hook: sections.Hook,
		Body: sections.Body,
		CTA:  sections.CTA,
		Raw:  sc.ScriptText,
	}); err != nil {
		h.log.Error().Err(err).Str("public_id", publicID).Msg("script page render failed")
	}
}
