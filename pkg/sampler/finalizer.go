package sampler

import (
	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
)

// bindFinalizer compiles cfg into s.finalize, allocating whatever running
// state (Mirostat's mu) the finalizer needs in s.mu.
func (s *Sampler) bindFinalizer(cfg FinalizerConfig) error {
	switch c := cfg.(type) {
	case Greedy:
		s.finalize = func(dist kernel.Logits) (kernel.Token, error) {
			return kernel.Token(s.primitives.SampleGreedy(dist)), nil
		}
	case Dist:
		s.finalize = func(dist kernel.Logits) (kernel.Token, error) {
			s.primitives.Softmax(dist)
			return kernel.Token(s.primitives.SampleDist(dist, c.Seed)), nil
		}
	case MirostatV1:
		s.mu = []float32{2 * c.Tau}
		s.muInit = 2 * c.Tau
		m := c.M
		if m <= 0 {
			m = 100
		}
		s.finalize = func(dist kernel.Logits) (kernel.Token, error) {
			return kernel.Token(s.primitives.SampleMirostatV1(dist, c.Tau, c.Eta, m, &s.mu[0])), nil
		}
	case MirostatV2:
		s.mu = []float32{2 * c.Tau}
		s.muInit = 2 * c.Tau
		s.finalize = func(dist kernel.Logits) (kernel.Token, error) {
			return kernel.Token(s.primitives.SampleMirostatV2(dist, c.Tau, c.Eta, &s.mu[0])), nil
		}
	default:
		return &llmerr.InvalidSampler{Reason: "unknown finalizer type"}
	}
	return nil
}
