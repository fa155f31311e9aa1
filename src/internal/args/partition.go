// Package args splits a free-order command line into positional compound
// identifiers and recognised flags.
package args

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
)

// Flag declares one recognised flag. Value flags consume exactly one
// following token; the others are booleans.
type Flag struct {
	Name    string
	Short   string
	Value   bool
	Default string
	Usage   string
}

type Spec struct {
	Command       string
	Usage         string
	Flags         []Flag
	MinPositional int
}

// UsageError is returned for unknown flags, missing flag values and too few
// positional identifiers.
type UsageError struct {
	Command string
	Usage   string
	Reason  string
}

func (e *UsageError) Error() string {
	if e.Usage == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s\nusage: %s", e.Reason, e.Usage)
}

// Result holds the partitioned command line. Positional preserves input
// order.
type Result struct {
	Positional []string
	Help       bool
	values     map[string]string
	bools      map[string]bool
	changed    map[string]bool
}

func (r *Result) Value(name string) string {
	return r.values[name]
}

func (r *Result) Bool(name string) bool {
	return r.bools[name]
}

// Has reports whether the flag appeared on the command line.
func (r *Result) Has(name string) bool {
	return r.changed[name]
}

// Partition parses tokens against spec. Tokens after "--" are always
// positional. A "help" flag in spec short-circuits the positional minimum.
func Partition(tokens []string, spec Spec) (*Result, error) {
	fs := pflag.NewFlagSet(spec.Command, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(true)
	fs.Usage = func() {}

	strs := make(map[string]*string)
	bools := make(map[string]*bool)
	for _, f := range spec.Flags {
		if f.Value {
			strs[f.Name] = fs.StringP(f.Name, f.Short, f.Default, f.Usage)
		} else {
			bools[f.Name] = fs.BoolP(f.Name, f.Short, false, f.Usage)
		}
	}

	if err := fs.Parse(tokens); err != nil {
		return nil, &UsageError{Command: spec.Command, Usage: spec.Usage, Reason: err.Error()}
	}

	res := &Result{
		Positional: append([]string(nil), fs.Args()...),
		values:     make(map[string]string, len(strs)),
		bools:      make(map[string]bool, len(bools)),
		changed:    make(map[string]bool),
	}
	for name, v := range strs {
		res.values[name] = *v
	}
	for name, v := range bools {
		res.bools[name] = *v
	}
	fs.Visit(func(f *pflag.Flag) {
		res.changed[f.Name] = true
	})

	if res.bools["help"] {
		res.Help = true
		return res, nil
	}

	if len(res.Positional) < spec.MinPositional {
		return nil, &UsageError{
			Command: spec.Command,
			Usage:   spec.Usage,
			Reason:  fmt.Sprintf("%s requires at least %d compound identifiers, got %d", spec.Command, spec.MinPositional, len(res.Positional)),
		}
	}
	return res, nil
}

// SplitList splits a comma separated flag value, dropping empty items.
func SplitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CompareSpec is the command line accepted by the comparison entry point.
var CompareSpec = Spec{
	Command: "compare",
	Usage:   "pharmaclaw compare <smiles1> <smiles2> [more...] [--names \"A,B\"] [--output report.pdf] [--format pdf|json]",
	Flags: []Flag{
		{Name: "names", Value: true, Usage: "Comma-separated display names, in compound order"},
		{Name: "output", Short: "o", Value: true, Usage: "Report path (default: comparison_report_<date>.<format>)"},
		{Name: "format", Value: true, Default: "pdf", Usage: "Report format: pdf or json"},
		{Name: "help", Short: "h", Usage: "Show usage"},
	},
	MinPositional: 2,
}
