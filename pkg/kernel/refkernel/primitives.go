package refkernel

import (
	"math"
	"math/rand"
	"sort"

	"github.com/localrt/llmcore/pkg/kernel"
)

// primitives is a real, if unoptimized, implementation of
// kernel.SamplingPrimitives — the same transforms a llama.cpp-backed
// kernel applies, written directly against kernel.Logits rather than a
// quantized weight tensor. pkg/sampler's own tests build a Sampler over
// this type to exercise the stage pipeline end to end (spec §8).
type primitives struct{}

func (primitives) Temperature(dist kernel.Logits, temp float32) {
	if temp <= 0 {
		return
	}
	for i := range dist {
		dist[i] /= temp
	}
}

func (primitives) TopK(dist kernel.Logits, k int) {
	if k <= 0 || k >= len(dist) {
		return
	}
	idx := sortedIndices(dist)
	cutoff := dist[idx[k-1]]
	for i, v := range dist {
		if v < cutoff {
			dist[i] = float32(math.Inf(-1))
		}
	}
}

func (primitives) TopP(dist kernel.Logits, p float32, minKeep int) {
	probs := softmaxCopy(dist)
	idx := sortedIndices(dist)

	var cum float32
	keep := make(map[int]bool)
	for i, id := range idx {
		cum += probs[id]
		keep[id] = true
		if cum >= p && i+1 >= minKeep {
			break
		}
	}
	maskExcept(dist, keep)
}

func (primitives) MinP(dist kernel.Logits, p float32, minKeep int) {
	probs := softmaxCopy(dist)
	var maxP float32
	for _, v := range probs {
		if v > maxP {
			maxP = v
		}
	}
	threshold := p * maxP

	idx := sortedIndices(dist)
	keep := make(map[int]bool)
	for i, id := range idx {
		if probs[id] >= threshold || i < minKeep {
			keep[id] = true
		}
	}
	maskExcept(dist, keep)
}

// TypicalP keeps the tokens whose -log(p) is closest to the distribution's
// entropy, cumulatively up to p, approximating locally-typical sampling.
func (primitives) TypicalP(dist kernel.Logits, p float32, minKeep int) {
	probs := softmaxCopy(dist)

	var entropy float64
	for _, pr := range probs {
		if pr > 0 {
			entropy -= float64(pr) * math.Log(float64(pr))
		}
	}

	type scored struct {
		id   int
		dist float64
	}
	scores := make([]scored, len(probs))
	for i, pr := range probs {
		surprise := 0.0
		if pr > 0 {
			surprise = -math.Log(float64(pr))
		}
		scores[i] = scored{id: i, dist: math.Abs(surprise - entropy)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	var cum float32
	keep := make(map[int]bool)
	for i, s := range scores {
		cum += probs[s.id]
		keep[s.id] = true
		if cum >= p && i+1 >= minKeep {
			break
		}
	}
	maskExcept(dist, keep)
}

// XTC (exclude top choices) removes the highest-probability tokens above
// threshold with probability `probability`, encouraging the sampler away
// from the single most obvious continuation — deterministic here via a
// seeded RNG rather than a process-global one.
func (primitives) XTC(dist kernel.Logits, probability, threshold float32, minKeep int, seed uint64) {
	if probability <= 0 {
		return
	}
	rng := rand.New(rand.NewSource(int64(seed)))
	if rng.Float32() > probability {
		return
	}

	probs := softmaxCopy(dist)
	idx := sortedIndices(dist)

	above := 0
	for _, id := range idx {
		if probs[id] >= threshold {
			above++
		}
	}
	if above <= 1 || len(dist)-above < minKeep {
		return
	}
	for i := 0; i < above-1; i++ {
		dist[idx[i]] = float32(math.Inf(-1))
	}
}

func (primitives) RepetitionPenalties(dist kernel.Logits, recent []kernel.Token, repeat, freq, present float32, lastN int) {
	counts := make(map[kernel.Token]int)
	window := recent
	if lastN > 0 && lastN < len(window) {
		window = window[len(window)-lastN:]
	}
	for _, t := range window {
		counts[t]++
	}
	for t, c := range counts {
		if int(t) < 0 || int(t) >= len(dist) {
			continue
		}
		if repeat != 0 && repeat != 1 {
			if dist[t] > 0 {
				dist[t] /= repeat
			} else {
				dist[t] *= repeat
			}
		}
		dist[t] -= freq*float32(c) + present
	}
}

// DRY (don't repeat yourself) penalizes tokens that would extend a
// substring already seen verbatim in recent, scaled by the repeated
// sequence's length — a simplified version of the real DRY algorithm that
// scans only for repeats ending at the window's tail.
func (primitives) DRY(dist kernel.Logits, recent []kernel.Token, multiplier, base float32, allowedLen, lastN int) {
	if multiplier == 0 || len(recent) == 0 {
		return
	}
	window := recent
	if lastN > 0 && lastN < len(window) {
		window = window[len(window)-lastN:]
	}

	for matchLen := len(window) - 1; matchLen >= allowedLen; matchLen-- {
		suffix := window[len(window)-matchLen:]
		if start, ok := repeatsEarlier(window, suffix); ok {
			penalty := multiplier * float32(math.Pow(float64(base), float64(matchLen-allowedLen)))
			// The token that followed the earlier occurrence is the one
			// that would extend the repeat.
			if next := int(window[start+matchLen]); next >= 0 && next < len(dist) {
				dist[next] -= penalty
			}
			return
		}
	}
}

// repeatsEarlier reports the start of an earlier occurrence of suffix in
// window that is followed by at least one more token.
func repeatsEarlier(window, suffix []kernel.Token) (int, bool) {
	if len(suffix) == 0 || len(window) <= len(suffix) {
		return 0, false
	}
	for start := 0; start+len(suffix) <= len(window)-1; start++ {
		match := true
		for i, t := range suffix {
			if window[start+i] != t {
				match = false
				break
			}
		}
		if match {
			return start, true
		}
	}
	return 0, false
}

func (primitives) Softmax(dist kernel.Logits) {
	probs := softmaxCopy(dist)
	copy(dist, probs)
}

func (primitives) SampleGreedy(dist kernel.Logits) int {
	best := 0
	for i, v := range dist {
		if v > dist[best] {
			best = i
		}
	}
	return best
}

func (primitives) SampleDist(dist kernel.Logits, seed uint64) int {
	rng := rand.New(rand.NewSource(int64(seed)))
	target := rng.Float32()
	var cum float32
	for i, p := range dist {
		cum += p
		if target <= cum {
			return i
		}
	}
	return len(dist) - 1
}

func (p primitives) SampleMirostatV1(dist kernel.Logits, tau, eta float32, m int, mu *float32) int {
	return mirostatSample(p, dist, tau, eta, mu)
}

func (p primitives) SampleMirostatV2(dist kernel.Logits, tau, eta float32, mu *float32) int {
	return mirostatSample(p, dist, tau, eta, mu)
}

// mirostatSample keeps only tokens whose surprisal is below *mu, samples
// among them, then updates *mu toward tau using learning rate eta — the
// shared core of Mirostat v1 and v2 (v1 additionally estimates the
// distribution's Zipf exponent via its m parameter; the reference kernel's
// simplified implementation folds that into the same threshold-and-adjust
// loop since m only changes how finely v1 estimates s, not the control law).
func mirostatSample(p primitives, dist kernel.Logits, tau, eta float32, mu *float32) int {
	probs := softmaxCopy(dist)
	idx := sortedIndices(dist)

	keep := make(map[int]bool)
	for _, id := range idx {
		surprise := float32(0)
		if probs[id] > 0 {
			surprise = -float32(math.Log2(float64(probs[id])))
		}
		if surprise <= *mu {
			keep[id] = true
		}
	}
	if len(keep) == 0 {
		keep[idx[0]] = true
	}

	masked := make(kernel.Logits, len(dist))
	copy(masked, dist)
	maskExcept(masked, keep)
	p.Softmax(masked)

	chosen := p.SampleDist(masked, uint64(math.Float32bits(*mu)))

	observedSurprise := float32(0)
	if probs[chosen] > 0 {
		observedSurprise = -float32(math.Log2(float64(probs[chosen])))
	}
	*mu = *mu - eta*(observedSurprise-tau)

	return chosen
}

func softmaxCopy(dist kernel.Logits) []float32 {
	out := make([]float32, len(dist))
	maxV := float32(math.Inf(-1))
	for _, v := range dist {
		if v > maxV {
			maxV = v
		}
	}
	var sum float32
	for i, v := range dist {
		e := float32(math.Exp(float64(v - maxV)))
		out[i] = e
		sum += e
	}
	if sum > 0 {
		for i := range out {
			out[i] /= sum
		}
	}
	return out
}

func sortedIndices(dist kernel.Logits) []int {
	idx := make([]int, len(dist))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(i, j int) bool { return dist[idx[i]] > dist[idx[j]] })
	return idx
}

func maskExcept(dist kernel.Logits, keep map[int]bool) {
	for i := range dist {
		if !keep[i] {
			dist[i] = float32(math.Inf(-1))
		}
	}
}
