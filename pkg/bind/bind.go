// Package bind resolves abstract step templates against an environment's
// placeholder table and the variables captured so far, producing concrete
// command vectors.
package bind

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Error is a binding failure: the template references a placeholder
// absent from the environment, or a variable not yet captured. Binding
// errors fail the step immediately, bypassing continue-on-failure, since
// execution cannot proceed without a valid command.
type Error struct {
	Template string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bind %q: %v", e.Template, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// funcMap provides the template functions available in command templates.
// These supplement the built-in Go template functions (eq, ne, index, …).
var funcMap = template.FuncMap{
	"hasPrefix":  strings.HasPrefix,
	"hasSuffix":  strings.HasSuffix,
	"contains":   strings.Contains,
	"lower":      strings.ToLower,
	"upper":      strings.ToUpper,
	"split":      strings.Split,
	"join":       strings.Join,
	"replace":    strings.ReplaceAll,
	"trimPrefix": strings.TrimPrefix,
	"trimSuffix": strings.TrimSuffix,
}

// Resolve evaluates a template string against the merged variable scope.
// Substitution is textual and order-independent; an unresolved reference
// is a *Error.
func Resolve(tmpl string, vars map[string]string) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil // fast path for literals
	}

	t, err := template.New("bind").Funcs(funcMap).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", &Error{Template: tmpl, Err: err}
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", &Error{Template: tmpl, Err: err}
	}
	return buf.String(), nil
}

// ResolveArgv resolves template expressions in each argv element.
func ResolveArgv(argv []string, vars map[string]string) ([]string, error) {
	resolved := make([]string, len(argv))
	for i, arg := range argv {
		r, err := Resolve(arg, vars)
		if err != nil {
			return nil, err
		}
		resolved[i] = r
	}
	return resolved, nil
}

// Command produces a concrete argument vector from either an exact argv
// (resolved element-wise) or a command string template (resolved, then
// split shell-style).
func Command(run string, argv []string, vars map[string]string) ([]string, error) {
	if len(argv) > 0 {
		return ResolveArgv(argv, vars)
	}
	resolved, err := Resolve(run, vars)
	if err != nil {
		return nil, err
	}
	words, err := SplitCommand(resolved)
	if err != nil {
		return nil, &Error{Template: run, Err: err}
	}
	if len(words) == 0 {
		return nil, &Error{Template: run, Err: fmt.Errorf("empty command after substitution")}
	}
	return words, nil
}

// SplitCommand splits a command string into words, honoring single and
// double quotes and backslash escapes outside quotes. It is a word
// splitter, not a shell: no globbing, no variable expansion, no
// redirection.
func SplitCommand(s string) ([]string, error) {
	var words []string
	var cur strings.Builder
	inWord := false
	var quote rune // 0 when outside quotes

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			} else {
				cur.WriteRune(c)
			}
		case c == '\'' || c == '"':
			quote = c
			inWord = true
		case c == '\\' && i+1 < len(runes):
			i++
			cur.WriteRune(runes[i])
			inWord = true
		case c == ' ' || c == '\t':
			if inWord {
				words = append(words, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(c)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if inWord {
		words = append(words, cur.String())
	}
	return words, nil
}

// Merge layers variable maps left to right; later maps win. The result is
// a fresh map, so callers never alias shared state.
func Merge(maps ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}
