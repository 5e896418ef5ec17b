package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"
)

// printer writes command results in the selected format. Text output is
// produced by a per-command function; json and yaml encode data directly.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions) *printer {
	return &printer{format: opts.Format, w: opts.Out}
}

// print renders data. text may be nil when data has a useful %v form.
func (p *printer) print(data any, text func(w io.Writer)) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		return writeYAML(p.w, data)
	}
	if text == nil {
		_, err := fmt.Fprintln(p.w, data)
		return err
	}
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	text(tw)
	return tw.Flush()
}

// writeYAML encodes data with the same field names as the json output. The
// wire types only carry json tags, so the value is normalized through json
// first.
func writeYAML(w io.Writer, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func unixTime(sec int64) string {
	if sec == 0 {
		return "-"
	}
	return time.Unix(sec, 0).Format("2006-01-02 15:04")
}
