// Package iomap keeps the mapping from logical reference names to pin
// state.
//
// The registry is owned by the control loop and has no locks. Edge
// interrupts never touch it: they push a Sample into the ingress Sink and
// the loop applies it later with Observe.
package iomap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sweeney/remoteio/internal/clock"
	"github.com/sweeney/remoteio/internal/gpio"
)

// Registry maps references to records.
type Registry struct {
	pins     gpio.Pins
	sink     Sink
	clock    clock.Clock
	records  map[string]*Record
	attached map[int]bool
}

// NewRegistry creates an empty registry that drives pins and sends
// interrupt samples to sink.
func NewRegistry(pins gpio.Pins, sink Sink, clk clock.Clock) *Registry {
	return &Registry{
		pins:     pins,
		sink:     sink,
		clock:    clk,
		records:  make(map[string]*Record),
		attached: make(map[int]bool),
	}
}

// Declare records a GPIO declaration and configures its pin.
//
// Redeclaring a reference with identical settings is a no-op. Redeclaring
// it on a different pin fails with ErrPinImmutable. The last known value is
// kept across redeclaration.
func (r *Registry) Declare(d Decl) error {
	existing, ok := r.records[d.Ref]
	if ok && existing.HasPin() && existing.Pin != d.Pin {
		return fmt.Errorf("declare %q on pin %d (was %d): %w", d.Ref, d.Pin, existing.Pin, ErrPinImmutable)
	}
	if ok && existing.Pin == d.Pin && existing.Direction == d.Direction &&
		existing.Sampling == d.Sampling && existing.MinSampleInterval == d.MinSampleInterval {
		return nil
	}

	rec := &Record{
		Ref:               d.Ref,
		Pin:               d.Pin,
		Direction:         d.Direction,
		Sampling:          d.Sampling,
		MinSampleInterval: d.MinSampleInterval,
	}
	if ok {
		rec.Value = existing.Value
		rec.LastSample = existing.LastSample
	}
	r.records[d.Ref] = rec

	mode, known := d.Direction.pinMode()
	if !known {
		return nil
	}
	if err := r.pins.Configure(d.Pin, mode); err != nil {
		return fmt.Errorf("declare %q: %w", d.Ref, err)
	}
	// Configure releases any previous edge request on the line.
	delete(r.attached, d.Pin)

	if d.Direction.IsInput() && d.Sampling == SamplingInterrupt {
		if err := r.attach(rec.Ref, d.Pin); err != nil {
			return fmt.Errorf("declare %q: %w", d.Ref, err)
		}
	}
	return nil
}

// attach installs an edge handler that only timestamps and enqueues.
func (r *Registry) attach(ref string, pin int) error {
	if r.attached[pin] {
		return nil
	}
	sink, clk := r.sink, r.clock
	err := r.pins.AttachEdgeInterrupt(pin, func(level int) {
		sink.Push(Sample{
			Ref:    ref,
			Value:  Int(int64(level)),
			Time:   clk.Now(),
			Mono:   clk.Mono(),
			Source: SourceInterrupt,
		})
	})
	if err != nil {
		return err
	}
	r.attached[pin] = true
	return nil
}

// Reconcile declares every entry. Applying the same list twice leaves the
// registry as applying it once. All declaration errors are returned joined.
func (r *Registry) Reconcile(decls []Decl) error {
	var errs []error
	for _, d := range decls {
		if err := r.Declare(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Write stores a value. For an output reference the pin is written exactly
// once, before the value is stored; a failed pin write stores nothing.
// Unknown references are created without a pin.
func (r *Registry) Write(ref string, v Value) error {
	if IsReserved(ref) {
		return fmt.Errorf("write %q: %w", ref, ErrReserved)
	}
	rec, ok := r.records[ref]
	if !ok {
		rec = &Record{Ref: ref, Pin: -1}
		r.records[ref] = rec
	}
	if rec.Direction == DirOutput && rec.HasPin() {
		level, numeric := v.Int()
		if !numeric {
			return fmt.Errorf("write %q=%q: %w", ref, v.String(), ErrNotNumeric)
		}
		if err := r.pins.Write(rec.Pin, int(level)); err != nil {
			return fmt.Errorf("write %q: %w", ref, err)
		}
	}
	rec.Value = v
	return nil
}

// Read returns the last known value of ref.
func (r *Registry) Read(ref string) (Value, bool) {
	rec, ok := r.records[ref]
	if !ok {
		return Value{}, false
	}
	return rec.Value, true
}

// Record returns a copy of the record for ref.
func (r *Registry) Record(ref string) (Record, bool) {
	rec, ok := r.records[ref]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Observe applies a queued sample. Pin samples arriving sooner than the
// reference's minimum sample interval after the previous accepted sample
// are discarded; remote, scheduled and peer writes always apply. It
// reports whether the sample was applied.
func (r *Registry) Observe(s Sample) bool {
	if IsReserved(s.Ref) {
		return false
	}
	rec, ok := r.records[s.Ref]
	if !ok {
		return false
	}
	fromPin := s.Source == SourceInterrupt || s.Source == SourcePoll
	if fromPin && rec.MinSampleInterval > 0 && rec.LastSample > 0 && s.Mono-rec.LastSample < rec.MinSampleInterval {
		return false
	}
	rec.Value = s.Value
	rec.LastSample = s.Mono
	return true
}

// Sample reads an input pin, stores and returns the value.
func (r *Registry) Sample(ref string) (Value, error) {
	rec, ok := r.records[ref]
	if !ok {
		return Value{}, fmt.Errorf("sample %q: %w", ref, ErrUnknownRef)
	}
	if !rec.Direction.IsInput() || !rec.HasPin() {
		return Value{}, fmt.Errorf("sample %q: %w", ref, ErrNotInput)
	}
	level, err := r.pins.Read(rec.Pin)
	if err != nil {
		return Value{}, fmt.Errorf("sample %q: %w", ref, err)
	}
	v := Int(int64(level))
	rec.Value = v
	rec.LastSample = r.clock.Mono()
	return v, nil
}

// PolledDue returns polled input references whose sample interval elapsed.
func (r *Registry) PolledDue() []string {
	now := r.clock.Mono()
	var due []string
	for ref, rec := range r.records {
		if rec.Sampling != SamplingPolled || !rec.Direction.IsInput() || !rec.HasPin() {
			continue
		}
		if rec.LastSample == 0 || now-rec.LastSample >= rec.MinSampleInterval {
			due = append(due, ref)
		}
	}
	sort.Strings(due)
	return due
}

// Refs returns every reference name in sorted order.
func (r *Registry) Refs() []string {
	refs := make([]string, 0, len(r.records))
	for ref := range r.records {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

// Snapshot returns copies of all records in reference order.
func (r *Registry) Snapshot() []Record {
	out := make([]Record, 0, len(r.records))
	for _, ref := range r.Refs() {
		out = append(out, *r.records[ref])
	}
	return out
}

// Len returns the number of references.
func (r *Registry) Len() int {
	return len(r.records)
}

// Clear forgets every reference. Used on factory reset.
func (r *Registry) Clear() {
	r.records = make(map[string]*Record)
	r.attached = make(map[int]bool)
}
