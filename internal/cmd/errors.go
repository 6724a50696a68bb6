package cmd

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/a5c-ai/mcpml/internal/errs"
	"github.com/a5c-ai/mcpml/internal/present"
)

func handleError(err error) {
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		args := []any{
			fmt.Sprintf(
				"Check out %s %s",
				present.StderrStyles().InlineCode.Render("mcpml -h"),
				present.StderrStyles().Comment.Render("for help."),
			),
			fmt.Sprintf(
				ferr.ReasonFormat(),
				present.StderrStyles().InlineCode.Render(ferr.Flag()),
			),
		}
		fmt.Fprintf(os.Stderr, format+"%s\n\n", args...)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		formatArgs := []any{present.StderrStyles().ErrPadding.Render(present.StderrStyles().ErrorHeader.String(), merr.Reason)}
		format += "%s\n\n"
		formatArgs = append(formatArgs, present.StderrStyles().ErrPadding.Render(present.StderrStyles().ErrorDetails.Render(err.Error())))
		fmt.Fprintf(os.Stderr, format, formatArgs...)
		return
	}

	fmt.Fprintf(os.Stderr, format, present.StderrStyles().ErrPadding.Render(present.StderrStyles().ErrorDetails.Render(err.Error())))
}

// flagParseError wraps pflag errors so they render with the offending flag
// highlighted.
type flagParseError struct {
	err    error
	flag   string
	reason string
}

var flagArgumentRE = regexp.MustCompile(`'.+' in (-\S+)`)

func newFlagParseError(err error) flagParseError {
	e := flagParseError{err: err}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "unknown flag:"):
		e.reason = "Flag %s is missing."
		e.flag = strings.TrimSpace(strings.TrimPrefix(msg, "unknown flag:"))
	case strings.HasPrefix(msg, "flag needs an argument:"):
		e.reason = "Flag %s needs an argument."
		rest := strings.TrimSpace(strings.TrimPrefix(msg, "flag needs an argument:"))
		if m := flagArgumentRE.FindStringSubmatch(rest); m != nil {
			e.flag = m[1]
		} else {
			e.flag = rest
		}
	case strings.HasPrefix(msg, "invalid argument"):
		e.reason = "Flag %s have an invalid argument."
		if _, after, ok := strings.Cut(msg, `for "`); ok {
			e.flag, _, _ = strings.Cut(after, `"`)
		}
	default:
		e.reason = "Flag parsing failed: %s."
		e.flag = msg
	}
	return e
}

func (e flagParseError) Error() string {
	return e.err.Error()
}

// Flag returns the flag the error is about.
func (e flagParseError) Flag() string {
	return e.flag
}

// ReasonFormat returns the user-facing format string for the error.
func (e flagParseError) ReasonFormat() string {
	return e.reason
}
