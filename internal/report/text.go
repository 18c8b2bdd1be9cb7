package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteText writes the plain report: one "name [STATUS]" line per
// protocol, the stderr of failed and errored protocols, then the totals.
func WriteText(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)

	for _, e := range r.Entries {
		fmt.Fprintf(bw, "%s [%s]\n", e.Name, e.Status)
	}

	writeSection(bw, "failed", r.WithStatus(StatusFailed))
	writeSection(bw, "errored", r.WithStatus(StatusError))

	fmt.Fprintf(bw, "%d protocols run over %d protocols available.\n", r.Run, r.Total)
	fmt.Fprintf(bw, "%d protocols succeeded.\n", r.Succeeded)

	for _, msg := range r.Errors {
		fmt.Fprintf(bw, "error: %s\n", msg)
	}
	return bw.Flush()
}

func writeSection(w io.Writer, label string, entries []Entry) {
	fmt.Fprintf(w, "\n==== %d tests %s ====\n", len(entries), label)
	for _, e := range entries {
		fmt.Fprintf(w, "### %s STDERR\n", e.Name)
		// Stderr is echoed as captured, without completing a last line.
		io.WriteString(w, strings.Join(e.Stderr, "\n"))
		if len(e.Stderr) > 0 && e.stderrEOL {
			io.WriteString(w, "\n")
		}
	}
}
