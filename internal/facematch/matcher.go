package facematch

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// marginTolerance absorbs float rounding so a gap of exactly Margin is not ambiguous.
const marginTolerance = 1e-9

// EuclideanDistance returns the L2 distance between two vectors of equal length.
func EuclideanDistance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// Confidence maps a distance to [0, 1]; distance 0 is full confidence.
func Confidence(distance float64) float64 {
	return max(0, 1-distance)
}

// Match classifies query against corpus.
//
// The best candidate is the overall nearest sample. The runner-up is the nearest
// sample belonging to a different identity, so several samples of the same person
// never make a decision ambiguous. Ties keep the earliest sample in corpus order.
// Samples whose length differs from the query are skipped.
func Match(query []float64, corpus []Sample, policy Policy) MatchDecision {
	best, runnerUp, ok := nearestTwo(query, corpus)
	if !ok {
		return MatchDecision{
			Outcome: OutcomeNoMatch,
			Reason:  ReasonNoIdentities,
			Message: "no identities enrolled",
		}
	}

	d := MatchDecision{
		Confidence: Confidence(best.Distance),
		Best:       &best,
		RunnerUp:   runnerUp,
	}

	if best.Distance > policy.Threshold {
		d.Outcome = OutcomeNoMatch
		d.Reason = ReasonDistance
		d.Message = fmt.Sprintf("nearest distance %.4f exceeds threshold %.2f", best.Distance, policy.Threshold)
		return d
	}

	if d.Confidence < policy.MinConfidence {
		d.Outcome = OutcomeNoMatch
		d.Reason = ReasonConfidence
		d.Message = fmt.Sprintf("confidence %.4f below minimum %.2f", d.Confidence, policy.MinConfidence)
		return d
	}

	if runnerUp != nil && runnerUp.Distance-best.Distance < policy.Margin-marginTolerance {
		d.Outcome = OutcomeAmbiguous
		d.Message = fmt.Sprintf("identities %d and %d are within margin %.2f", best.Identity, runnerUp.Identity, policy.Margin)
		return d
	}

	id := best.Identity
	d.Outcome = OutcomeMatch
	d.Identity = &id
	return d
}

// Nearest returns the closest sample to query, or false for an empty corpus.
func Nearest(query []float64, corpus []Sample) (Candidate, bool) {
	best, _, ok := nearestTwo(query, corpus)
	return best, ok
}

type identityBest struct {
	identity int64
	distance float64
	index    int // corpus position of the sample achieving distance
}

func (b identityBest) before(o identityBest) bool {
	if b.distance != o.distance {
		return b.distance < o.distance
	}
	return b.index < o.index
}

func nearestTwo(query []float64, corpus []Sample) (Candidate, *Candidate, bool) {
	byIdentity := make(map[int64]*identityBest)
	var bests []*identityBest

	for i, s := range corpus {
		if len(s.Vector) != len(query) {
			continue
		}
		dist := EuclideanDistance(query, s.Vector)
		b, seen := byIdentity[s.Identity]
		if !seen {
			b = &identityBest{identity: s.Identity, distance: dist, index: i}
			byIdentity[s.Identity] = b
			bests = append(bests, b)
			continue
		}
		if dist < b.distance {
			b.distance = dist
			b.index = i
		}
	}

	if len(bests) == 0 {
		return Candidate{}, nil, false
	}

	first := bests[0]
	for _, b := range bests[1:] {
		if b.before(*first) {
			first = b
		}
	}

	var second *identityBest
	for _, b := range bests {
		if b == first {
			continue
		}
		if second == nil || b.before(*second) {
			second = b
		}
	}

	best := Candidate{Identity: first.identity, Distance: first.distance}
	if second == nil {
		return best, nil, true
	}
	return best, &Candidate{Identity: second.identity, Distance: second.distance}, true
}
