package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/magmc/internal/rng"
	"gonum.org/v1/gonum/spatial/r3"
)

func cosine(e *Ensemble, i, j int) float64 {
	m := e.MagneticMoments()
	a := r3.Vec{X: m[3*i], Y: m[3*i+1], Z: m[3*i+2]}
	b := r3.Vec{X: m[3*j], Y: m[3*j+1], Z: m[3*j+2]}
	return r3.Dot(r3.Unit(a), r3.Unit(b))
}

func pairEnsemble(seed int64, j0, j1 float64) *Ensemble {
	e := New(2, rng.New(seed))
	Expect(e.SetHeisenbergCoeff([]float64{j0}, []int{0, 1}, []int{1, 0}, 1, 0)).To(Succeed())
	if j1 != 0 {
		Expect(e.SetHeisenbergCoeff([]float64{j1}, []int{0, 1}, []int{1, 0}, 1, 1)).To(Succeed())
	}
	return e
}

var _ = Describe("Ensemble", func() {
	Describe("a ferromagnetic pair near zero temperature", func() {
		var e *Ensemble

		BeforeEach(func() {
			e = pairEnsemble(42, 1, 0)
			Expect(e.SetMagneticMoments([]float64{1, 0, 0, -1, 0, 0})).To(Succeed())
		})

		It("aligns the moments", func() {
			Expect(e.Run(0.01, 5000, 1)).To(Succeed())
			Expect(cosine(e, 0, 1)).To(BeNumerically(">", 0.99))
		})

		It("stops accepting moves once aligned", func() {
			Expect(e.Run(0.01, 5000, 1)).To(Succeed())
			e.Reset()
			Expect(e.Run(0.01, 1000, 1)).To(Succeed())
			Expect(e.AcceptanceRatio()).To(BeNumerically("<", 0.05))
		})

		It("never raises the energy", func() {
			last, _ := e.Energy(0)
			for i := 0; i < 200; i++ {
				Expect(e.Run(0, 1, 1)).To(Succeed())
				now, _ := e.Energy(0)
				Expect(now).To(BeNumerically("<=", last+1e-12))
				last = now
			}
		})
	})

	Describe("thermodynamic integration", func() {
		It("samples both channels in a mixed ensemble", func() {
			e := New(8, rng.New(5))
			var src, dst []int
			for i := 0; i < 8; i++ {
				src = append(src, i, (i+1)%8)
				dst = append(dst, (i+1)%8, i)
			}
			Expect(e.SetHeisenbergCoeff([]float64{0.1}, src, dst, 1, 0)).To(Succeed())
			Expect(e.SetHeisenbergCoeff([]float64{-0.03}, src, dst, 3, 1)).To(Succeed())
			Expect(e.SetLambda(0.5)).To(Succeed())

			Expect(e.Run(10, 500, 1)).To(Succeed())
			e.Reset()
			Expect(e.Run(10, 500, 1)).To(Succeed())

			Expect(e.MeanEnergy(0)).To(BeNumerically("<", 0))
			Expect(e.MeanEnergy(1)).To(BeNumerically(">", 0))
			Expect(e.MeanEnergyDifference()).To(BeNumerically("~", e.MeanEnergy(1)-e.MeanEnergy(0), 1e-9))
		})

		It("is driven by channel 1 alone at lambda 1", func() {
			e := pairEnsemble(8, -1, 1)
			Expect(e.SetMagneticMoments([]float64{1, 0, 0, -1, 0, 0})).To(Succeed())
			Expect(e.SetLambda(1)).To(Succeed())
			Expect(e.Run(0.01, 3000, 1)).To(Succeed())
			Expect(cosine(e, 0, 1)).To(BeNumerically(">", 0.99))
		})
	})

	Describe("frozen sites", func() {
		It("keeps unselected moments in place", func() {
			e := pairEnsemble(3, 1, 0)
			Expect(e.SetMagneticMoments([]float64{1, 0, 0, 0, 0, 1})).To(Succeed())
			Expect(e.SelectID([]int{0})).To(Succeed())
			Expect(e.Run(0.01, 3000, 1)).To(Succeed())

			m := e.MagneticMoments()
			Expect(m[3:]).To(Equal([]float64{0, 0, 1}))
			Expect(m[2]).To(BeNumerically(">", 0.99))
		})

		It("rejects unknown sites", func() {
			e := New(2, nil)
			Expect(e.SelectID([]int{2})).To(MatchError(ErrIndexOutOfRange))
		})
	})

	Describe("parallel sweeps", func() {
		It("relaxes a ring like the sequential sweep", func() {
			build := func(seed int64) *Ensemble {
				e := New(24, rng.New(seed))
				var src, dst []int
				for i := 0; i < 24; i++ {
					src = append(src, i, (i+1)%24)
					dst = append(dst, (i+1)%24, i)
				}
				Expect(e.SetHeisenbergCoeff([]float64{0.1}, src, dst, 1, 0)).To(Succeed())
				return e
			}
			ground := -0.1 * 24
			for threads, e := range map[int]*Ensemble{1: build(1), 4: build(2)} {
				Expect(e.Run(20000, 200, threads)).To(Succeed())
				hot, _ := e.Energy(0)
				Expect(hot).To(BeNumerically(">", 0.5*ground))

				Expect(e.Run(1, 1000, threads)).To(Succeed())
				cold, _ := e.Energy(0)
				Expect(cold).To(BeNumerically("<", 0.5*ground))
				Expect(e.CurrentEnergy(0)).To(BeNumerically("~", cold, 1e-9))
			}
		})
	})
})
