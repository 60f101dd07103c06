// Package metrics summarizes the runs of a batch.
package metrics

import (
	"math"

	"github.com/san-kum/dropsim/internal/storage"
)

// Metric accumulates one statistic over run records.
type Metric interface {
	Name() string
	Observe(rec storage.RunRecord)
	Value() float64
	Reset()
}

type MeanLift struct {
	name    string
	total   float64
	samples int
}

func NewMeanLift() *MeanLift {
	return &MeanLift{name: "mean_lift"}
}

func (m *MeanLift) Name() string { return m.name }

func (m *MeanLift) Observe(rec storage.RunRecord) {
	m.total += rec.Offset
	m.samples++
}

func (m *MeanLift) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.total / float64(m.samples)
}

func (m *MeanLift) Reset() {
	m.total = 0
	m.samples = 0
}

type MaxLift struct {
	name string
	max  float64
	seen bool
}

func NewMaxLift() *MaxLift {
	return &MaxLift{name: "max_lift"}
}

func (m *MaxLift) Name() string { return m.name }

func (m *MaxLift) Observe(rec storage.RunRecord) {
	if !m.seen || rec.Offset > m.max {
		m.max = rec.Offset
	}
	m.seen = true
}

func (m *MaxLift) Value() float64 { return m.max }

func (m *MaxLift) Reset() {
	m.max = 0
	m.seen = false
}

// AxisBias is the length of the mean rotation axis. Uniformly drawn axes
// drive it toward zero as runs accumulate.
type AxisBias struct {
	name    string
	sum     [3]float64
	samples int
}

func NewAxisBias() *AxisBias {
	return &AxisBias{name: "axis_bias"}
}

func (a *AxisBias) Name() string { return a.name }

func (a *AxisBias) Observe(rec storage.RunRecord) {
	for i := range a.sum {
		a.sum[i] += rec.Axis[i]
	}
	a.samples++
}

func (a *AxisBias) Value() float64 {
	if a.samples == 0 {
		return 0
	}
	n := float64(a.samples)
	x, y, z := a.sum[0]/n, a.sum[1]/n, a.sum[2]/n
	return math.Sqrt(x*x + y*y + z*z)
}

func (a *AxisBias) Reset() {
	a.sum = [3]float64{}
	a.samples = 0
}

// AngleCoverage is the fraction of equal slices of [0, 2π) hit by at least
// one rotation angle.
type AngleCoverage struct {
	name string
	hits []bool
}

func NewAngleCoverage(slices int) *AngleCoverage {
	if slices < 1 {
		slices = 1
	}
	return &AngleCoverage{name: "angle_coverage", hits: make([]bool, slices)}
}

func (a *AngleCoverage) Name() string { return a.name }

func (a *AngleCoverage) Observe(rec storage.RunRecord) {
	angle := math.Mod(rec.Angle, 2*math.Pi)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	i := int(angle / (2 * math.Pi) * float64(len(a.hits)))
	if i >= len(a.hits) {
		i = len(a.hits) - 1
	}
	a.hits[i] = true
}

func (a *AngleCoverage) Value() float64 {
	n := 0
	for _, h := range a.hits {
		if h {
			n++
		}
	}
	return float64(n) / float64(len(a.hits))
}

func (a *AngleCoverage) Reset() {
	for i := range a.hits {
		a.hits[i] = false
	}
}

// Default is the set the report command prints.
func Default() []Metric {
	return []Metric{NewMeanLift(), NewMaxLift(), NewAxisBias(), NewAngleCoverage(12)}
}

// Summarize feeds every record to every metric and returns the values by
// name, after resetting each metric.
func Summarize(recs []storage.RunRecord, ms ...Metric) map[string]float64 {
	out := make(map[string]float64, len(ms))
	for _, m := range ms {
		m.Reset()
		for _, r := range recs {
			m.Observe(r)
		}
		out[m.Name()] = m.Value()
	}
	return out
}
