// Package out renders command results. JSON mode emits the full envelope or
// the bare data payload; plain mode prints key=value lines meant for shell
// pipelines.
package out

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/payflowhq/payflow/internal/config"
	"github.com/payflowhq/payflow/internal/model"
)

func Render(w io.Writer, env model.Envelope, settings config.Settings) error {
	data := env.Data
	if len(settings.SelectFields) > 0 {
		data = project(data, settings.SelectFields)
	}

	if settings.ResultsOnly {
		if settings.OutputMode == "plain" {
			return renderPlain(w, data)
		}
		return renderJSON(w, data)
	}

	env.Data = data
	if settings.OutputMode == "plain" {
		return renderPlain(w, envelopeView(env))
	}
	return renderJSON(w, env)
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envelopeView(env model.Envelope) map[string]any {
	view := map[string]any{
		"success":  env.Success,
		"data":     env.Data,
		"warnings": env.Warnings,
		"meta":     env.Meta,
	}
	if env.Error != nil {
		view["error"] = env.Error
	}
	return view
}

// renderPlain prints one line per row. Lists of objects become one key=value
// line each; anything else is printed as a single line.
func renderPlain(w io.Writer, data any) error {
	switch v := decode(data).(type) {
	case nil:
		_, err := fmt.Fprintln(w, "null")
		return err
	case []any:
		if len(v) == 0 {
			_, err := fmt.Fprintln(w, "[]")
			return err
		}
		for _, item := range v {
			line, err := formatLine(item)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		return nil
	default:
		line, err := formatLine(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, line)
		return err
	}
}

func formatLine(v any) (string, error) {
	m, ok := v.(map[string]any)
	if !ok {
		buf, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(buf), nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(m[k]))
	}
	return strings.Join(parts, " "), nil
}

// formatValue keeps scalars bare and re-encodes composites as JSON so nested
// structures stay parseable.
func formatValue(v any) string {
	switch v.(type) {
	case map[string]any, []any:
		buf, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(buf)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func project(data any, fields []string) any {
	switch t := decode(data).(type) {
	case []any:
		out := make([]map[string]any, 0, len(t))
		for _, item := range t {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			out = append(out, projectMap(m, fields))
		}
		return out
	case map[string]any:
		return projectMap(t, fields)
	default:
		return t
	}
}

func projectMap(m map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := m[f]; ok {
			out[f] = v
		}
	}
	return out
}

// decode round-trips through JSON so typed structs and slices collapse into
// the generic shapes the renderer works with.
func decode(v any) any {
	buf, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(buf, &out); err != nil {
		return v
	}
	return out
}
