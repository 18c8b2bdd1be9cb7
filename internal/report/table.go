package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// WriteTable renders the report as a table sorted by protocol name.
func WriteTable(w io.Writer, r *Report) error {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Protocol Results")
	t.AppendHeader(table.Row{"Protocol", "Status", "Exit", "Verdict"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Protocol", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Verdict", Align: text.AlignRight},
	})

	for _, e := range sortedEntries(r.Entries) {
		t.AppendRow(table.Row{e.Name, string(e.Status), code(e.ExitCode), code(e.SuccessCode)})
	}

	t.AppendFooter(table.Row{
		fmt.Sprintf("%d available", r.Total),
		fmt.Sprintf("%d run", r.Run),
		fmt.Sprintf("%d errored", r.Errored),
		fmt.Sprintf("%d succeeded", r.Succeeded),
	})
	t.SetStyle(table.StyleLight)
	t.Style().Format.Footer = text.FormatDefault
	t.Render()
	return nil
}

// sortedEntries orders entries by collated name, ignoring case.
func sortedEntries(entries []Entry) []Entry {
	out := slices.Clone(entries)
	c := collate.New(language.English, collate.IgnoreCase)
	slices.SortStableFunc(out, func(a, b Entry) int {
		return c.CompareString(a.Name, b.Name)
	})
	return out
}

func code(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}
