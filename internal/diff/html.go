package diff

import (
	"fmt"
	"html/template"
	"io"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: monospace; font-size: 12px; }
table { border-collapse: collapse; }
td, th { border: 1px solid #ccc; padding: 1px 6px; vertical-align: top; white-space: pre; }
th { background: #eee; }
.kind { font-weight: bold; }
.line td { border-top: none; border-bottom: none; }
.addr { font-weight: bold; }
.a0 { color: #e6194b; }
.a1 { color: #3cb44b; }
.a2 { color: #4363d8; }
.a3 { color: #f58231; }
.a4 { color: #911eb4; }
.a5 { color: #42d4f4; }
.a6 { color: #f032e6; }
.a7 { color: #9a6324; }
.m { color: #3cb44b; font-weight: bold; }
.param { color: #911eb4; background: #f3e6f8; }
.skip { color: #999; text-decoration: line-through; }
.empty { background: #f4f4f4; }
.warn { color: #9a6324; background: #fff4e0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>#</th><th>kind</th>{{range .Inputs}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows -}}
<tr><td>{{.Index}}</td><td class="kind">{{.Kind}}</td>{{range .Cells}}<td{{with .Class}} class="{{.}}"{{end}}>{{.Text}}</td>{{end}}</tr>
{{range .Lines -}}
<tr class="line"><td></td><td>{{printf "%04x" .Index}}</td>{{range .Cells}}<td>{{range .Skipped}}<span class="skip">{{.}}</span> {{end}}{{with .Word}}{{template "word" .}}{{end}}</td>{{end}}</tr>
{{end}}{{end -}}
</table>
</body>
</html>
{{define "word"}}{{if .Bytes}}{{range .Bytes}}{{if .Matched}}<span class="m">{{.Text}}</span>{{else}}{{.Text}}{{end}}{{end}}{{else}}<span class="{{.Class}}">{{.Text}}</span>{{with .Title}} <span class="param">{{.}}</span>{{end}}{{end}}{{end}}`))

// Render writes rep as a standalone HTML document.
func Render(w io.Writer, rep *Report) error {
	if err := reportTemplate.Execute(w, rep); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}
