package align_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/ktune/internal/align"
	"github.com/san-kum/ktune/internal/harness"
)

// series builds a Series with samples at the given timestamps, where
// commanded position equals t and measured equals 2t. The linear
// shapes make interpolation results exact.
func series(target string, times ...float64) *harness.Series {
	s := &harness.Series{Target: target}
	for _, t := range times {
		s.Samples = append(s.Samples, harness.Sample{
			T:       t,
			CmdPos:  t,
			MeasPos: 2 * t,
		})
	}
	return s
}

var _ = Describe("Merge", func() {
	It("chooses the denser series as the reference grid", func() {
		dense := series(harness.TargetSim, 0, 0.1, 0.2, 0.3, 0.4, 0.5)
		sparse := series(harness.TargetReal, 0, 0.25, 0.5)

		m := align.Merge(sparse, dense)
		Expect(m.Ref).To(Equal(harness.TargetSim))
		Expect(m.Other).To(Equal(harness.TargetReal))
	})

	It("never produces a point outside the overlap of both series", func() {
		a := series(harness.TargetSim, 0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6)
		b := series(harness.TargetReal, 0.15, 0.35)

		m := align.Merge(a, b)
		for _, p := range m.Points {
			Expect(p.T).To(BeNumerically(">=", 0.15))
			Expect(p.T).To(BeNumerically("<=", 0.35))
		}
	})

	It("interpolates the sparser series linearly onto the grid", func() {
		a := series(harness.TargetSim, 0, 0.1, 0.2, 0.3, 0.4)
		b := series(harness.TargetReal, 0, 0.4)

		m := align.Merge(a, b)
		Expect(m.Points).To(HaveLen(5))
		for _, p := range m.Points {
			Expect(p.OtherCmd).To(BeNumerically("~", p.T, 1e-12))
			Expect(p.OtherMeas).To(BeNumerically("~", 2*p.T, 1e-12))
		}
	})

	It("reports samples outside the overlap separately instead of extrapolating", func() {
		// The real series ends early, as after an abort.
		sim := series(harness.TargetSim, 0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7)
		real := series(harness.TargetReal, 0, 0.2, 0.4)

		m := align.Merge(sim, real)

		Expect(m.Ref).To(Equal(harness.TargetSim))
		Expect(m.Points).To(HaveLen(5)) // 0 .. 0.4
		Expect(m.RefTail).To(HaveLen(3))
		for _, s := range m.RefTail {
			Expect(s.T).To(BeNumerically(">", 0.4))
		}
		Expect(m.OtherTail).To(BeEmpty())
	})

	It("handles an empty side without producing points", func() {
		sim := series(harness.TargetSim, 0, 0.1, 0.2)
		real := &harness.Series{Target: harness.TargetReal}

		m := align.Merge(sim, real)
		Expect(m.Points).To(BeEmpty())
		Expect(m.RefTail).To(HaveLen(3))
	})

	It("keeps exact grid hits exact", func() {
		a := series(harness.TargetSim, 0, 0.1, 0.2, 0.3)
		b := series(harness.TargetReal, 0, 0.1, 0.2, 0.3)

		m := align.Merge(a, b)
		Expect(m.Points).To(HaveLen(4))
		for _, p := range m.Points {
			Expect(p.OtherCmd).To(Equal(p.RefCmd))
			Expect(p.OtherMeas).To(Equal(p.RefMeas))
		}
		Expect(m.RefTail).To(BeEmpty())
		Expect(m.OtherTail).To(BeEmpty())
	})
})
