// Package scoring implements the pure scoring algebra: Subjective-Logic
// opinions, cumulative belief fusion, projection, the evolutionary-stability
// penalty, and the risk/recommendation mapping. Nothing here performs I/O.
package scoring

import (
	"github.com/clawtrust/engine/internal/trust"
)

// dogmaticEpsilon guards the fusion denominators. When both opinions are
// dogmatic (u == 0) the cumulative formula degenerates, so fusion falls
// back to the arithmetic mean.
const dogmaticEpsilon = 1e-10

// Opinion is a Subjective-Logic quadruple. Invariant: B + D + U == 1
// (within floating-point tolerance). BaseRate is the prior expectation.
type Opinion struct {
	B        float64 // belief
	D        float64 // disbelief
	U        float64 // uncertainty
	BaseRate float64
}

// Vacuous returns the total-uncertainty opinion with a neutral prior.
func Vacuous() Opinion {
	return Opinion{B: 0, D: 0, U: 1, BaseRate: 0.5}
}

// FromSignal converts a provider signal into an opinion. Score and
// confidence are clamped to [0,1] on ingress.
func FromSignal(sig trust.Signal) Opinion {
	c := clamp01(sig.Confidence)
	s := clamp01(sig.Score)
	return Opinion{
		B:        s * c,
		D:        (1 - s) * c,
		U:        1 - c,
		BaseRate: 0.5,
	}
}

// Fuse combines two independent opinions with cumulative belief fusion:
// each component is weighted by the other opinion's uncertainty. Dogmatic
// pairs (kappa below the epsilon guard) fall back to the arithmetic mean
// with u = 0.
func Fuse(a, b Opinion) Opinion {
	kappa := a.U + b.U - a.U*b.U
	if kappa < dogmaticEpsilon {
		return Opinion{
			B:        (a.B + b.B) / 2,
			D:        (a.D + b.D) / 2,
			U:        0,
			BaseRate: (a.BaseRate + b.BaseRate) / 2,
		}
	}

	fused := Opinion{
		B: (a.B*b.U + b.B*a.U) / kappa,
		D: (a.D*b.U + b.D*a.U) / kappa,
		U: a.U * b.U / kappa,
	}

	// Base rates are weighted the same way; the denominator vanishes when
	// either input is vacuous, in which case the mean is the right limit.
	aDen := a.U + b.U - 2*a.U*b.U
	if aDen < dogmaticEpsilon {
		fused.BaseRate = (a.BaseRate + b.BaseRate) / 2
	} else {
		fused.BaseRate = (a.BaseRate*b.U + b.BaseRate*a.U - (a.BaseRate+b.BaseRate)*a.U*b.U) / aDen
	}

	return fused.normalized()
}

// FuseAll left-folds Fuse over the signal sequence. Zero signals yield the
// vacuous opinion; a single signal is its own opinion.
func FuseAll(signals []trust.Signal) Opinion {
	if len(signals) == 0 {
		return Vacuous()
	}
	acc := FromSignal(signals[0])
	for _, sig := range signals[1:] {
		acc = Fuse(acc, FromSignal(sig))
	}
	return acc
}

// Project returns the scalar expectation b + a*u, clamped to [0,1].
func Project(o Opinion) float64 {
	return clamp01(o.B + o.BaseRate*o.U)
}

// normalized clamps each component and rescales so b + d + u sums to one.
// Fusion arithmetic can drift a few ulps under repeated folding.
func (o Opinion) normalized() Opinion {
	o.B = clamp01(o.B)
	o.D = clamp01(o.D)
	o.U = clamp01(o.U)
	o.BaseRate = clamp01(o.BaseRate)

	sum := o.B + o.D + o.U
	if sum > dogmaticEpsilon {
		o.B /= sum
		o.D /= sum
		o.U /= sum
	}
	return o
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
