// Package exitcode maps errors to process exit statuses.
package exitcode

import (
	"errors"

	"pharmaclaw/src/internal/args"
	"pharmaclaw/src/internal/chain"
	"pharmaclaw/src/internal/interpreter"
	"pharmaclaw/src/internal/pipeline"
	"pharmaclaw/src/internal/scripts"
	"pharmaclaw/src/internal/skills"
)

const (
	OK          = 0
	Failure     = 1
	Usage       = 2
	Environment = 3
	Stage       = 4
)

// For returns the exit status for err. nil maps to OK.
func For(err error) int {
	if err == nil {
		return OK
	}
	var usageErr *args.UsageError
	var envErr *interpreter.Error
	var stageErr *chain.StageError
	var scriptErr *ScriptError
	var coded *CodedError
	switch {
	case errors.As(err, &coded):
		return coded.Code
	case errors.As(err, &usageErr), errors.Is(err, pipeline.ErrBadRequest):
		return Usage
	case errors.As(err, &envErr):
		return Environment
	case errors.As(err, &stageErr), errors.As(err, &scriptErr), errors.Is(err, scripts.ErrScriptNotFound), errors.Is(err, skills.ErrSkillNotFound):
		return Stage
	default:
		return Failure
	}
}

// ScriptError turns a script's {"status":"error"} output into an error.
type ScriptError struct {
	Script  string
	Message string
}

func (e *ScriptError) Error() string {
	return e.Script + ": " + e.Message
}

// CheckOutput returns a *ScriptError when out reports a failure.
func CheckOutput(script string, out scripts.Output) error {
	if out.IsError() {
		return &ScriptError{Script: script, Message: out.Error()}
	}
	return nil
}

// CodedError carries a status decided elsewhere, such as a task report
// that already classified its failure.
type CodedError struct {
	Code    int
	Message string
}

func (e *CodedError) Error() string {
	return e.Message
}
