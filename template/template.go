package template

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"

	apperrors "github.com/goliatone/go-errors"

	automation "github.com/goliatone/go-automation"
)

const ErrCodeTemplate = "TEMPLATE_FAILED"

var simpleVarRegex = regexp.MustCompile(`^\s*\{\{\s*\.([a-zA-Z0-9_.]+)\s*\}\}\s*$`)

// Renderer expands template placeholders against run data.
type Renderer interface {
	Render(templateString string, data map[string]any) (string, error)
	Resolve(templateString string, data map[string]any) (any, error)
}

// GoRenderer implements Renderer with text/template. Parsed templates are
// cached and the renderer is safe for concurrent use.
type GoRenderer struct {
	funcs template.FuncMap
	mu    sync.Mutex
	cache map[string]*template.Template
}

// Option customizes a GoRenderer.
type Option func(*GoRenderer)

// WithFuncs adds template functions, overriding built-ins with the same name.
func WithFuncs(funcs template.FuncMap) Option {
	return func(r *GoRenderer) {
		for name, fn := range funcs {
			r.funcs[name] = fn
		}
	}
}

// NewGoRenderer creates a renderer with the default function map.
func NewGoRenderer(opts ...Option) *GoRenderer {
	r := &GoRenderer{
		funcs: FuncMap(),
		cache: make(map[string]*template.Template),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Render executes templateString against data. Missing keys are errors.
func (r *GoRenderer) Render(templateString string, data map[string]any) (string, error) {
	t, err := r.parse(templateString)
	if err != nil {
		return "", newTemplateError("template parse error", templateString, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", newTemplateError("template execution error", templateString, err)
	}
	return buf.String(), nil
}

// Resolve returns the raw value for a lone "{{ .path }}" expression so
// numbers, maps and slices keep their type; anything else is rendered.
func (r *GoRenderer) Resolve(templateString string, data map[string]any) (any, error) {
	if matches := simpleVarRegex.FindStringSubmatch(templateString); len(matches) == 2 {
		if value, found := lookup(data, matches[1]); found {
			return value, nil
		}
	}
	return r.Render(templateString, data)
}

func (r *GoRenderer) parse(templateString string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cached, ok := r.cache[templateString]; ok {
		return cached, nil
	}
	t, err := template.New("param").Option("missingkey=error").Funcs(r.funcs).Parse(templateString)
	if err != nil {
		return nil, err
	}
	r.cache[templateString] = t
	return t, nil
}

// Expand walks params and resolves every string holding a placeholder,
// descending into nested maps and slices. The input is not modified.
func Expand(r Renderer, params automation.Params, data map[string]any) (automation.Params, error) {
	if r == nil {
		return params.Clone(), nil
	}
	out := make(automation.Params, len(params))
	for key, value := range params {
		expanded, err := expandValue(r, value, data)
		if err != nil {
			return nil, err
		}
		out[key] = expanded
	}
	return out, nil
}

func expandValue(r Renderer, value any, data map[string]any) (any, error) {
	switch v := value.(type) {
	case string:
		if !strings.Contains(v, "{{") {
			return v, nil
		}
		return r.Resolve(v, data)
	case automation.Params:
		return Expand(r, v, data)
	case map[string]any:
		out, err := Expand(r, automation.Params(v), data)
		if err != nil {
			return nil, err
		}
		return map[string]any(out), nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			expanded, err := expandValue(r, item, data)
			if err != nil {
				return nil, err
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return value, nil
	}
}

func lookup(data map[string]any, path string) (any, bool) {
	var current any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func newTemplateError(msg, templateString string, source error) error {
	return apperrors.Wrap(source, apperrors.CategoryValidation, fmt.Sprintf("%s: %v", msg, source)).
		WithTextCode(ErrCodeTemplate).
		WithMetadata(map[string]any{"template": templateString})
}
