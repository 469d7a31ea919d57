package bridge

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rzbill/orbiter/internal/table"
)

// recordFilter wraps a compiled CEL program deciding which new records
// the bridge forwards. When disabled, Eval always returns true.
type recordFilter struct {
	prog    cel.Program
	enabled bool
}

func newRecordFilter(expr string) (recordFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return recordFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("partition_key", cel.StringType),
		cel.Variable("row_key", cel.StringType),
		cel.Variable("bug_id", cel.StringType),
		cel.Variable("payload", cel.StringType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return recordFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return recordFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return recordFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return recordFilter{}, err
	}
	return recordFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against a record. Evaluation
// errors count as a non-match.
func (f recordFilter) Eval(w *table.WorkItem) bool {
	if !f.enabled {
		return true
	}
	out, _, err := f.prog.Eval(map[string]any{
		"partition_key": w.PartitionKey,
		"row_key":       w.RowKey,
		"bug_id":        w.BugID,
		"payload":       w.Payload,
		"now_ms":        time.Now().UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
