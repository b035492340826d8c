package llm

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/joseph-ayodele/contracts-parser/internal/topics"
)

// DefaultMaxContextRunes caps the contract text placed in one prompt.
const DefaultMaxContextRunes = 12000

const systemTemplate = `You are a contract field extractor. Return ONLY a JSON object whose keys are exactly: {{ .Names | join ", " }}.
Rules:
- Use null for any field the text does not state. Never guess.
- Dates must be YYYY-MM-DD.
- Amounts must be bare numerals without currency symbols or separators (50万 becomes 500000).
- Percentages are decimals (6% becomes 0.06).
- Currency must be a 3-letter ISO 4217 code.
- Arrays hold objects with the keys listed in the field description.
{{- with .Hint }}
Context: {{ . }}
{{- end }}`

const userTemplate = `Fields:
{{- range .Fields }}
- {{ .Name }} ({{ .Type }}){{ with .Description }}: {{ . }}{{ end }}
{{- end }}

Contract text{{ if .Truncated }} (truncated){{ end }}:
{{ .Context | trim }}`

var (
	systemTmpl = template.Must(template.New("system").Option("missingkey=error").Funcs(sprig.FuncMap()).Parse(systemTemplate))
	userTmpl   = template.Must(template.New("user").Option("missingkey=error").Funcs(sprig.FuncMap()).Parse(userTemplate))
)

// PromptData is the structured input of both prompt templates.
type PromptData struct {
	Names     []string
	Fields    []topics.FieldDefinition
	Context   string
	Hint      string
	Truncated bool
}

// RenderPrompts renders the system and user messages for one extraction call.
func RenderPrompts(data PromptData) (system, user string, err error) {
	var sb, ub strings.Builder
	if err := systemTmpl.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if err := userTmpl.Execute(&ub, data); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return sb.String(), ub.String(), nil
}
