package printer

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/dyluth/signboard/pkg/signboard"
)

var (
	// Color definitions. fatih/color disables them when the output is not a
	// terminal or NO_COLOR is set, so scripted output stays plain.
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

// Printer writes command results and CLI errors.
type Printer struct {
	out io.Writer
	err io.Writer
}

// New creates a printer writing results to out and failures to errOut.
func New(out, errOut io.Writer) *Printer {
	return &Printer{out: out, err: errOut}
}

// Response prints resp and returns the exit code it maps to.
// A failure's message goes to the error stream; a non-empty output goes to
// the output stream followed by a newline.
func (p *Printer) Response(resp signboard.Response) int {
	if resp.Code != signboard.CodeOK {
		red.Fprintln(p.err, resp.Error)
		return resp.Code
	}
	if resp.Output != "" {
		fmt.Fprintln(p.out, resp.Output)
	}
	return signboard.CodeOK
}

// Error creates a formatted error message with title, explanation, and suggestions
// Prints the formatted error to the error stream and returns a simple error for Cobra
func (p *Printer) Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(p.err, "%s\n", title)

	if explanation != "" {
		fmt.Fprintf(p.err, "\n%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(p.err, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(p.err, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(p.err, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(p.err, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	// Return simple error for Cobra (won't be printed due to SilenceErrors)
	return fmt.Errorf("%s", title)
}

// Warning prints a warning message in yellow to the error stream
func (p *Printer) Warning(format string, a ...any) {
	yellow.Fprintf(p.err, "warning: %s\n", fmt.Sprintf(format, a...))
}

