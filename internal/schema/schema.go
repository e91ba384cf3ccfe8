// Package schema validates pack artifacts against embedded CUE definitions.
//
// Every JSON document a pack owner edits by hand (config, scenario plan,
// scenario catalogs, surface inventory and overlays) is checked here before
// it is decoded into Go types. Definitions are closed, so an unknown field
// is reported instead of being silently ignored.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

//go:embed bman.cue
var schemaSource string

// Kind names one schema definition.
type Kind string

const (
	KindConfig           Kind = "#Config"
	KindScenarioPlan     Kind = "#ScenarioPlan"
	KindCatalog          Kind = "#Catalog"
	KindSurfaceInventory Kind = "#SurfaceInventory"
	KindSurfaceOverlays  Kind = "#SurfaceOverlays"
	KindSemantics        Kind = "#Semantics"
)

// Issue is a single schema violation.
type Issue struct {
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// ValidationError reports why a file does not satisfy its schema.
// Syntax is true when the file is not well-formed JSON at all.
type ValidationError struct {
	Kind   Kind
	File   string
	Syntax bool
	Issues []Issue
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	what := "schema violation"
	if e.Syntax {
		what = "parse error"
	}
	if len(e.Issues) == 0 {
		return fmt.Sprintf("%s: %s", e.File, what)
	}
	first := e.Issues[0]
	loc := e.File
	if first.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.File, first.Line)
	}
	msg := first.Message
	if first.Path != "" {
		msg = first.Path + ": " + msg
	}
	if extra := len(e.Issues) - 1; extra > 0 {
		return fmt.Sprintf("%s: %s: %s (and %d more)", loc, what, msg, extra)
	}
	return fmt.Sprintf("%s: %s: %s", loc, what, msg)
}

// AsValidationError unwraps err into a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// IsSyntaxError reports whether err is a ValidationError for malformed input.
func IsSyntaxError(err error) bool {
	ve, ok := AsValidationError(err)
	return ok && ve.Syntax
}

// Validate checks JSON data from file against the definition named by kind.
// A nil return means the document is well-formed and schema-valid.
func Validate(kind Kind, file string, data []byte) error {
	ctx := cuecontext.New()

	schemaVal := ctx.CompileString(schemaSource, cue.Filename("bman.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("failed to compile embedded schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath(string(kind)))
	if !def.Exists() {
		return fmt.Errorf("unknown schema kind %s", kind)
	}

	expr, err := cuejson.Extract(file, data)
	if err != nil {
		return &ValidationError{Kind: kind, File: file, Syntax: true, Issues: issuesFrom(err)}
	}
	dataVal := ctx.BuildExpr(expr)
	if err := dataVal.Err(); err != nil {
		return &ValidationError{Kind: kind, File: file, Syntax: true, Issues: issuesFrom(err)}
	}

	unified := def.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Kind: kind, File: file, Issues: issuesFrom(err)}
	}
	return nil
}

// issuesFrom flattens a CUE error list into issues sorted by line then path.
func issuesFrom(err error) []Issue {
	var issues []Issue
	seen := make(map[string]bool)
	for _, e := range cueerrors.Errors(err) {
		format, args := e.Msg()
		issue := Issue{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(format, args...),
		}
		if pos := e.Position(); pos.IsValid() {
			issue.Line = pos.Line()
		}
		key := fmt.Sprintf("%d|%s|%s", issue.Line, issue.Path, issue.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		issues = append(issues, issue)
	}
	if len(issues) == 0 {
		issues = append(issues, Issue{Message: err.Error()})
	}
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Line != issues[j].Line {
			return issues[i].Line < issues[j].Line
		}
		return issues[i].Path < issues[j].Path
	})
	return issues
}
