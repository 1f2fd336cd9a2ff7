package prometheus

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/streamauth/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Exporter renders engine metrics in the Prometheus text exposition format.
type Exporter struct {
	source internaldefs.Source
}

// New returns an Exporter reading from source, usually a *streamauth.Engine.
func New(source internaldefs.Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current exposition on every request.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = e.WriteTo(w)
	})
}

// WriteTo writes one exposition to w. Nothing is written when metrics are
// disabled.
func (e *Exporter) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	e.render(&buf)
	return buf.WriteTo(w)
}

// Render returns one exposition as a string.
func (e *Exporter) Render() string {
	var buf bytes.Buffer
	e.render(&buf)
	return buf.String()
}

func (e *Exporter) render(buf *bytes.Buffer) {
	if e == nil {
		return
	}
	sample := internaldefs.Collect(e.source)
	if sample.Empty {
		return
	}
	buf.Grow(8192)

	for _, c := range sample.Counters {
		writeHeader(buf, c.Name, c.Help, "counter")
		writeValue(buf, c.Name, "", strconv.FormatUint(c.Value, 10))
	}

	for _, h := range sample.Histograms {
		writeHeader(buf, h.Name, h.Help, "histogram")
		for i, le := range internaldefs.HistogramBounds {
			writeValue(buf, h.Name+"_bucket", `le="`+le+`"`, strconv.FormatUint(h.Cumulative[i], 10))
		}
		writeValue(buf, h.Name+"_sum", "", strconv.FormatFloat(h.SumSeconds, 'g', -1, 64))
		writeValue(buf, h.Name+"_count", "", strconv.FormatUint(h.Count, 10))
	}

	writeHeader(buf, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, "counter")
	writeValue(buf, internaldefs.AuditDroppedName, "", strconv.FormatUint(sample.AuditDropped, 10))
}

func writeHeader(buf *bytes.Buffer, name, help, kind string) {
	buf.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	buf.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeValue(buf *bytes.Buffer, name, labels, value string) {
	buf.WriteString(name)
	if labels != "" {
		buf.WriteString("{" + labels + "}")
	}
	buf.WriteString(" " + value + "\n")
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
