package deployment

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// TemplateData is available to env value templates of a ServiceSpec.
//
//	spec.WithEnv("SERVICE_ID", "{{ .SpecName }}-{{ randAlphaNum 6 | lower }}")
type TemplateData struct {
	SpecName     string
	Alias        string
	Port         int
	RuntimeAlias string
}

func parseTemplate(key, value string) (*template.Template, error) {
	tmpl, err := template.New(key).Funcs(sprig.TxtFuncMap()).Option("missingkey=error").Parse(value)
	if err != nil {
		return nil, fmt.Errorf("env %s: %w", key, err)
	}
	return tmpl, nil
}

// RenderEnv expands template actions in the values of env. Values without
// actions are returned unchanged.
func RenderEnv(env map[string]string, data TemplateData) (map[string]string, error) {
	out := make(map[string]string, len(env))
	for k, v := range env {
		if !strings.Contains(v, "{{") {
			out[k] = v
			continue
		}
		tmpl, err := parseTemplate(k, v)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		if err := tmpl.Execute(&sb, data); err != nil {
			return nil, fmt.Errorf("env %s: %w", k, err)
		}
		out[k] = sb.String()
	}
	return out, nil
}
