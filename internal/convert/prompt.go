package convert

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

//go:embed prompt.tmpl
var promptRaw string

var promptTmpl = template.Must(template.New("convert").Funcs(template.FuncMap{
	"join": strings.Join,
}).Parse(promptRaw))

type promptData struct {
	Row    string
	Fields []string
}

// BuildPrompt renders the conversion prompt for row. fields lists the rule
// field names the model may use; it may be empty.
func BuildPrompt(row Row, fields []string) (string, error) {
	var rowJSON strings.Builder
	enc := json.NewEncoder(&rowJSON)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(row); err != nil {
		return "", fmt.Errorf("convert: encode row: %w", err)
	}
	var b strings.Builder
	data := promptData{Row: strings.TrimSpace(rowJSON.String()), Fields: fields}
	if err := promptTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("convert: render prompt: %w", err)
	}
	return strings.TrimSpace(b.String()), nil
}
