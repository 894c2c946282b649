package config

import "fmt"

// ParseError reports a configuration file that could not be parsed into a
// record: malformed YAML, a non-mapping document, or a duplicate parameter
// name. Parse errors are fatal; no partial record is produced.
type ParseError struct {
	Path string // source file, empty for in-memory data
	Line int    // 1-based line of the offending node, 0 if unknown
	Msg  string
	Err  error // underlying decoder error, if any
}

func (e *ParseError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("parse %s:%d: %s", e.Path, e.Line, e.Msg)
	case e.Path != "":
		return fmt.Sprintf("parse %s: %s", e.Path, e.Msg)
	case e.Line > 0:
		return fmt.Sprintf("parse config line %d: %s", e.Line, e.Msg)
	default:
		return fmt.Sprintf("parse config: %s", e.Msg)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a parameter value the trainer would reject.
// Validation runs at load time so a bad value fails before any trial
// is scheduled.
type ValidationError struct {
	Param string // dotted parameter path, e.g. "network_config.rnn_dim"
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Msg)
}
