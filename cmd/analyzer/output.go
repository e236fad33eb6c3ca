package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/dgnsrekt/options-positioning/internal/server"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

var stdout io.Writer = os.Stdout

// emit prints v as the API would serve it when --format=json, otherwise it
// hands off to the command's table renderer.
func emit(v any, table func(io.Writer)) error {
	if format == formatJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(server.Present(v))
	}
	table(stdout)
	return nil
}

// keyValues renders a two column table.
func keyValues(w io.Writer, rows [][2]string) {
	table := tablewriter.NewTable(w,
		tablewriter.WithHeader([]string{"Field", "Value"}),
	)
	for _, r := range rows {
		table.Append([]string{r[0], r[1]})
	}
	table.Render()
}

func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

func num(v float64, places int) string { return strconv.FormatFloat(v, 'f', places, 64) }

// opt renders an optional value, "n/a" when unknown.
func opt(v *float64, places int) string {
	if v == nil {
		return "n/a"
	}
	return num(*v, places)
}

func optInt(v *int64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatInt(*v, 10)
}

func optString[T ~string](v *T) string {
	if v == nil {
		return "n/a"
	}
	return string(*v)
}

func strikes(vs []float64) string {
	if len(vs) == 0 {
		return "-"
	}
	out := ""
	for i, v := range vs {
		if i > 0 {
			out += ", "
		}
		out += money(v)
	}
	return out
}

func count(v *int) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprint(*v)
}
