package internaldefs

import "github.com/MrEthical07/streamauth"

// AuditDroppedName is the series carrying streamauth.Engine.AuditDropped.
const (
	AuditDroppedName = "streamauth_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// Source is what exporters read from. *streamauth.Engine implements it.
type Source interface {
	MetricsSnapshot() streamauth.MetricsSnapshot
	AuditDropped() uint64
}

// CounterValue is one counter read at collection time.
type CounterValue struct {
	CounterDef
	Value uint64
}

// HistogramValue is one latency histogram read at collection time.
// Cumulative[len-1] equals Count.
type HistogramValue struct {
	HistogramDef
	Cumulative [8]uint64
	Count      uint64
	SumSeconds float64
}

// Sample is a single read of a Source, ordered like CounterDefs and
// HistogramDefs so exporters can index instruments by position.
type Sample struct {
	Counters     []CounterValue
	Histograms   []HistogramValue
	AuditDropped uint64
	// Empty is set when metrics are disabled and nothing was ever dropped.
	Empty bool
}

// Collect reads source once. A nil source yields an empty sample.
func Collect(source Source) Sample {
	if source == nil {
		return Sample{Empty: true}
	}

	snapshot := source.MetricsSnapshot()
	out := Sample{AuditDropped: source.AuditDropped()}
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && out.AuditDropped == 0 {
		out.Empty = true
		return out
	}

	out.Counters = make([]CounterValue, len(CounterDefs))
	for i, def := range CounterDefs {
		out.Counters[i] = CounterValue{CounterDef: def, Value: snapshot.Counters[def.ID]}
	}

	out.Histograms = make([]HistogramValue, len(HistogramDefs))
	for i, def := range HistogramDefs {
		cumulative := CumulativeBuckets(NormalizeBuckets(snapshot.Histograms[def.ID]))
		out.Histograms[i] = HistogramValue{
			HistogramDef: def,
			Cumulative:   cumulative,
			Count:        cumulative[len(cumulative)-1],
			SumSeconds:   snapshot.Sums[def.ID].Seconds(),
		}
	}
	return out
}
