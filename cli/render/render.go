// Package render writes command results as json, yaml or an aligned
// table.
//
// Without --format, a terminal gets a table and anything else gets json.
// --no-color drops the bold table header and never changes json or yaml.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Format is an output format name.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a --format value case-insensitively. The empty string
// parses to the empty Format, leaving the choice to NewRenderer.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML, "":
		return f, nil
	}
	return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
}

// Renderer writes command results in one format.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer builds a renderer from the --format and --no-color flags,
// writing to the app writer. Without --format it picks table for a
// terminal and json otherwise.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	var out io.Writer = os.Stdout
	if c.App.Writer != nil {
		out = c.App.Writer
	}
	if format == "" {
		format = defaultFormat(out)
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), out), nil
}

func defaultFormat(out io.Writer) Format {
	if f, ok := out.(*os.File); ok && isTTY(f) {
		return FormatTable
	}
	return FormatJSON
}

// NewRendererWithWriter returns a renderer for an explicit format and
// writer.
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render writes data. JSON and YAML use two-space indentation.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatTable:
		return r.renderTable(data)
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown format: %s", r.format)
}

// cell is one labelled value of a table row.
type cell struct {
	label string
	value reflect.Value
}

// cells flattens a struct or map into labelled cells. Struct fields keep
// declaration order and maps are ordered by key.
func cells(v reflect.Value) []cell {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		out := make([]cell, 0, t.NumField())
		for i := range t.NumField() {
			if f := t.Field(i); f.IsExported() {
				out = append(out, cell{label: fieldName(f), value: v.Field(i)})
			}
		}
		return out
	case reflect.Map:
		labels := make([]string, 0, v.Len())
		byLabel := make(map[string]reflect.Value, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			l := fmt.Sprint(iter.Key().Interface())
			labels = append(labels, l)
			byLabel[l] = iter.Value()
		}
		slices.Sort(labels)
		out := make([]cell, len(labels))
		for i, l := range labels {
			out[i] = cell{label: l, value: byLabel[l]}
		}
		return out
	}
	return nil
}

var headerStyle = lipgloss.NewStyle().Bold(true)

func (r *Renderer) renderTable(data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
		writeFields(w, v)
		return w.Flush()
	}

	// Rows are aligned before the header is styled so escape codes do not
	// count toward column widths.
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	hasHeader := writeRows(w, v)
	if err := w.Flush(); err != nil {
		return err
	}
	if hasHeader && !r.noColor {
		header, rest, _ := strings.Cut(buf.String(), "\n")
		_, err := fmt.Fprintf(r.out, "%s\n%s", headerStyle.Render(header), rest)
		return err
	}
	_, err := buf.WriteTo(r.out)
	return err
}

func writeFields(w io.Writer, v reflect.Value) {

	v = indirect(v)
	switch v.Kind() {
	case reflect.Invalid:
		fmt.Fprintln(w, "(none)")
	case reflect.Struct, reflect.Map:
		for _, c := range cells(v) {
			fmt.Fprintf(w, "%s:\t%s\n", c.label, formatValue(c.value))
		}
	default:
		fmt.Fprintln(w, formatValue(v))
	}
}

// writeRows prints one line per element under a header taken from the
// first element. Map rows are aligned to the first row's keys. It reports
// whether a header line was written.
func writeRows(w io.Writer, v reflect.Value) bool {
	if v.Len() == 0 {
		fmt.Fprintln(w, "(no results)")
		return false
	}

	header := cells(indirect(v.Index(0)))
	labels := make([]string, len(header))
	for i, c := range header {
		labels[i] = c.label
	}
	fmt.Fprintln(w, strings.Join(labels, "\t"))

	for i := range v.Len() {
		row := indirect(v.Index(i))
		var values []string
		switch row.Kind() {
		case reflect.Struct:
			for _, c := range cells(row) {
				values = append(values, formatValue(c.value))
			}
		case reflect.Map:
			for _, l := range labels {
				values = append(values, formatValue(row.MapIndex(reflect.ValueOf(l))))
			}
		default:
			values = append(values, formatValue(row))
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	return true
}

func fieldName(f reflect.StructField) string {
	if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
		return name
	}
	return strings.ToLower(f.Name)
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

var timeType = reflect.TypeFor[time.Time]()

func formatValue(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		if v.Len() <= 4 && v.Type().Elem().Kind() != reflect.Struct {
			return fmt.Sprintf("%v", v.Interface())
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if v.Type() == timeType {
			return v.Interface().(time.Time).Format(time.RFC3339)
		}
		return "{...}"
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
