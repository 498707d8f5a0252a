package tsemitter

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	genspec "github.com/mark3labs/koiosgen/internal/spec"
)

// NameOverride appends Suffix to the name derived for one (path, method).
type NameOverride struct {
	Path   string             `yaml:"path"`
	Method genspec.HttpMethod `yaml:"method"`
	Suffix string             `yaml:"suffix"`
}

// DefaultNameOverrides is the built-in override table. The bulk asset endpoint
// shares its path with the single-asset lookup.
func DefaultNameOverrides() []NameOverride {
	return []NameOverride{
		{Path: "/asset_info", Method: genspec.POST, Suffix: "Bulk"},
	}
}

// MergeNameOverrides returns the built-in table followed by the entries of
// extra that are not already in it. The built-in entries are always present.
func MergeNameOverrides(extra []NameOverride) []NameOverride {
	out := DefaultNameOverrides()
	for _, o := range extra {
		dup := false
		for _, have := range out {
			if have.Path == o.Path && strings.EqualFold(string(have.Method), string(o.Method)) && have.Suffix == o.Suffix {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, o)
		}
	}
	return out
}

// DeriveName maps (path, method) to the identifier used for the method entry
// and the type declarations: slashes are removed, the remainder is split on
// underscores and spaces (also dashes and dots), and the first character of
// each word is upper-cased. "/pool_delegators_history" becomes "PoolDelegatorsHistory".
// Characters that cannot appear in an identifier are dropped.
func DeriveName(path string, method genspec.HttpMethod, overrides []NameOverride) (string, error) {
	s := strings.NewReplacer("/", "", "{", "", "}", "").Replace(path)
	words := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-' || r == '.'
	})

	upper := cases.Upper(language.Und)
	var b strings.Builder
	for _, w := range words {
		first := true
		for _, r := range w {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$' {
				continue
			}
			if first {
				b.WriteString(upper.String(string(r)))
				first = false
				continue
			}
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		return "", fmt.Errorf("cannot derive an identifier from path %q", path)
	}
	if unicode.IsDigit([]rune(name)[0]) {
		name = "Op" + name
	}
	for _, o := range overrides {
		if o.Path == path && strings.EqualFold(string(o.Method), string(method)) {
			name += o.Suffix
		}
	}
	return name, nil
}

// namedOperation pairs an operation with its derived name.
type namedOperation struct {
	Name string
	Op   genspec.OperationRecord
}

// nameOperations derives every name and checks the mapping is injective.
// Operations whose name cannot be derived are reported as diagnostics and
// left out; a collision is fatal.
func nameOperations(ops []genspec.OperationRecord, overrides []NameOverride) ([]namedOperation, []Diagnostic, error) {
	var diags []Diagnostic
	out := make([]namedOperation, 0, len(ops))
	seen := make(map[string]string, len(ops))
	for _, op := range ops {
		name, err := DeriveName(op.Path, op.Method, overrides)
		if err != nil {
			diags = append(diags, Diagnostic{Stage: StageEmit, Operation: op.ID(), Severity: SeverityError, Message: err.Error()})
			continue
		}
		if prev, dup := seen[name]; dup {
			return nil, diags, &EmitError{
				Stage:     StageEmit,
				Operation: op.ID(),
				Message:   fmt.Sprintf("name %q derived for both %s and %s; add a name override", name, prev, op.ID()),
			}
		}
		if dropped := droppedRunes(op.Path); dropped != "" {
			diags = append(diags, Diagnostic{
				Stage: StageEmit, Operation: op.ID(), Severity: SeverityWarning,
				Message: fmt.Sprintf("characters %q dropped from the derived name %q", dropped, name),
			})
		}
		seen[name] = op.ID()
		out = append(out, namedOperation{Name: name, Op: op})
	}
	return out, diags, nil
}

// droppedRunes lists the characters of path that DeriveName neither keeps nor
// treats as separators.
func droppedRunes(path string) string {
	var b strings.Builder
	for _, r := range path {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '$':
		case strings.ContainsRune("/{}_ -.", r):
		default:
			if !strings.ContainsRune(b.String(), r) {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// CheckUnique reports an error when two operations derive the same name.
func CheckUnique(ops []genspec.OperationRecord, overrides []NameOverride) error {
	_, _, err := nameOperations(ops, overrides)
	return err
}
