package handlers

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

// medsPage carries everything the prescription list page shows.
type medsPage struct {
	PatientName string
	UserName    string
	Medications []string
}

var authorizeTmpl = template.Must(template.New("authorize").Parse(`<!DOCTYPE html>
<html>
<head><title>SMART Meds</title></head>
<body>
<h1>SMART Meds</h1>
<p><a href="{{.AuthURL}}">Connect to your health record</a></p>
<p><a href="/reset" style="font-size: 0.8em">Reset session</a></p>
</body>
</html>
`))

var medsTmpl = template.Must(template.New("meds").Parse(`<!DOCTYPE html>
<html>
<head><title>SMART Meds</title></head>
<body>
<h1>Medications for {{.PatientName}}</h1>
{{if .Medications}}<ul>
{{range .Medications}}<li>{{.}}</li>
{{end}}</ul>
{{else}}<p>` + NoPrescriptions + `</p>
{{end}}{{if .UserName}}<p>Signed in as {{.UserName}}</p>
{{end}}<p><a href="/logout">Change patient</a> | <a href="/reset">Reset session</a></p>
</body>
</html>
`))

var errorTmpl = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html>
<head><title>SMART Meds</title></head>
<body>
<h1>Something went wrong</h1>
<p>{{.Message}}</p>
<p><a href="/reset">Start over</a></p>
</body>
</html>
`))

func (h *AppHandler) renderAuthorize(w http.ResponseWriter, authURL string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := authorizeTmpl.Execute(w, struct{ AuthURL string }{authURL}); err != nil {
		h.logger.Error("template render failed", zap.Error(err))
	}
}

func (h *AppHandler) renderMeds(w http.ResponseWriter, page medsPage) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := medsTmpl.Execute(w, page); err != nil {
		h.logger.Error("template render failed", zap.Error(err))
	}
}

func (h *AppHandler) renderError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := errorTmpl.Execute(w, struct{ Message string }{message}); err != nil {
		h.logger.Error("template render failed", zap.Error(err))
	}
}
