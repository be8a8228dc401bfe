// Copyright (c) 2023 Alexander Khudich
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tempo

import "math"

// computeSkip computes the stride used to decimate the coarse AMDF pass.
func (s *Stream) computeSkip() int {
	skip := 1
	if s.sampleRate > AmdfFreq {
		skip = s.sampleRate / AmdfFreq
	}
	return skip
}

// findPitchPeriod estimates the pitch period of the signal at the front of
// view. The caller guarantees at least 2*maxPeriod readable samples.
//
// A decimated coarse pass bounds the cost regardless of sample rate; a
// second pass at full resolution refines the estimate in a narrow window
// around the coarse result.
func (s *Stream) findPitchPeriod(view []float32) int {
	skip := s.computeSkip()

	period := findPitchInRange(view, s.minPeriod, s.maxPeriod, skip)
	if skip == 1 {
		return period
	}

	minP := int(float64(period) * (1.0 - AmdfRange))
	maxP := int(math.Ceil(float64(period) * (1.0 + AmdfRange)))
	if minP < s.minPeriod {
		minP = s.minPeriod
	}
	if maxP > s.maxPeriod {
		maxP = s.maxPeriod
	}

	return findPitchInRange(view, minP, maxP, 1)
}

// findPitchInRange finds the candidate period in [minP, maxP], stepping by
// skip, that minimizes the normalized average magnitude difference D(p)/p.
// Both the candidate grid and the inner sum are decimated by skip.
//
// The division is delayed: a candidate p with difference D wins iff
// D < minDiff*p, which picks the same minimizer as comparing D/p directly
// and keeps the first candidate on exact ties.
func findPitchInRange(s []float32, minP, maxP, skip int) int {
	bestPeriod := 0
	var minDiff float64

	for period := minP; period <= maxP; period += skip {
		var diff float64
		for i := 0; i < period; i += skip {
			d := float64(s[i] - s[i+period])
			if d < 0 {
				d = -d
			}
			diff += d
		}

		if bestPeriod == 0 || diff < minDiff*float64(period) {
			minDiff = diff / float64(period)
			bestPeriod = period
		}
	}

	return bestPeriod
}
