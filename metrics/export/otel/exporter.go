package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/streamauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

// ScopeName is the instrumentation scope callers should request their
// Meter under.
const ScopeName = "github.com/MrEthical07/streamauth"

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type histogramInstruments struct {
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableCounter
	sum     metric.Float64ObservableCounter
}

// Exporter observes engine metrics on every collection cycle of the meter
// it was registered with.
type Exporter struct {
	source       internaldefs.Source
	registration metric.Registration
	counters     []metric.Int64ObservableCounter
	histograms   []histogramInstruments
	auditDropped metric.Int64ObservableCounter
}

// New creates one instrument per series and registers a single callback
// that reads source once per collection. Counter and histogram instruments
// line up with internaldefs.CounterDefs and HistogramDefs by index.
func New(meter metric.Meter, source internaldefs.Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:     source,
		counters:   make([]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		histograms: make([]histogramInstruments, len(internaldefs.HistogramDefs)),
	}
	var observables []metric.Observable

	for i, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[i] = ins
		observables = append(observables, ins)
	}

	for i, def := range internaldefs.HistogramDefs {
		h, err := newHistogramInstruments(meter, def)
		if err != nil {
			return nil, err
		}
		e.histograms[i] = h
		observables = append(observables, h.count, h.sum)
		for _, b := range h.buckets {
			observables = append(observables, b)
		}
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func newHistogramInstruments(meter metric.Meter, def internaldefs.HistogramDef) (histogramInstruments, error) {
	var h histogramInstruments
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		ins, err := meter.Int64ObservableGauge(name,
			metric.WithDescription(def.Help+" Cumulative bucket count."),
			metric.WithUnit("{sample}"),
		)
		if err != nil {
			return h, fmt.Errorf("bucket %s: %w", name, err)
		}
		h.buckets[i] = ins
	}

	count, err := meter.Int64ObservableCounter(def.Name+"_count",
		metric.WithDescription(def.Help+" Sample count."),
		metric.WithUnit("{sample}"),
	)
	if err != nil {
		return h, fmt.Errorf("count %s: %w", def.Name, err)
	}
	h.count = count

	sum, err := meter.Float64ObservableCounter(def.Name+"_sum",
		metric.WithDescription(def.Help+" Total observed latency."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return h, fmt.Errorf("sum %s: %w", def.Name, err)
	}
	h.sum = sum
	return h, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	sample := internaldefs.Collect(e.source)
	if sample.Empty {
		return nil
	}

	for i, c := range sample.Counters {
		o.ObserveInt64(e.counters[i], int64(c.Value))
	}
	for i, h := range sample.Histograms {
		ins := e.histograms[i]
		for b, v := range h.Cumulative {
			o.ObserveInt64(ins.buckets[b], int64(v))
		}
		o.ObserveInt64(ins.count, int64(h.Count))
		o.ObserveFloat64(ins.sum, h.SumSeconds)
	}
	o.ObserveInt64(e.auditDropped, int64(sample.AuditDropped))
	return nil
}

// Close unregisters the callback. The instruments stay with the meter.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
