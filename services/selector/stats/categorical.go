// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stats

import "math"

// smallCellThreshold is the classic rule of thumb: when any expected cell
// count falls below 5, the chi-square approximation is unreliable and the
// exact test is used instead.
const smallCellThreshold = 5.0

// CategoricalResult holds a 2x2 contingency test outcome.
type CategoricalResult struct {
	// Statistic is the chi-square statistic. Zero when the exact test ran.
	Statistic float64

	// PValue is the two-tailed p-value.
	PValue float64

	// Exact is true when Fisher's exact test was used instead of chi-square.
	Exact bool

	// Significant is true if PValue < significance level.
	Significant bool

	// SignificanceLevel is the alpha used.
	SignificanceLevel float64
}

// TwoByTwoTest tests independence of a 2x2 contingency table.
//
// Description:
//
//	The table rows are the two methods and the columns their (hit, miss)
//	counts:
//
//	        hit   miss
//	  A      a     b
//	  B      c     d
//
//	Runs the chi-square test (df=1) when all expected cell counts are at
//	least 5, otherwise falls back to Fisher's exact test.
//
// Inputs:
//   - a, b, c, d: Non-negative cell counts.
//   - alpha: Significance level.
//
// Outputs:
//   - *CategoricalResult: Test outcome.
//   - error: ErrInsufficientSamples when a row or column margin is zero (an
//     empty contingency cell makes the test undefined).
//
// Thread Safety: Stateless; safe for concurrent use.
func TwoByTwoTest(a, b, c, d int, alpha float64) (*CategoricalResult, error) {
	r1 := a + b
	r2 := c + d
	c1 := a + c
	c2 := b + d
	n := r1 + r2
	if r1 == 0 || r2 == 0 || c1 == 0 || c2 == 0 {
		return nil, ErrInsufficientSamples
	}

	// Expected counts under independence.
	e := [4]float64{
		float64(r1) * float64(c1) / float64(n),
		float64(r1) * float64(c2) / float64(n),
		float64(r2) * float64(c1) / float64(n),
		float64(r2) * float64(c2) / float64(n),
	}

	for _, exp := range e {
		if exp < smallCellThreshold {
			p := fisherExact(a, b, c, d)
			return &CategoricalResult{
				PValue:            p,
				Exact:             true,
				Significant:       p < alpha,
				SignificanceLevel: alpha,
			}, nil
		}
	}

	obs := [4]float64{float64(a), float64(b), float64(c), float64(d)}
	var chi2 float64
	for i := range obs {
		diff := obs[i] - e[i]
		chi2 += diff * diff / e[i]
	}

	// df=1: chi-square CDF reduces to the folded normal.
	p := 2 * (1 - normalCDF(math.Sqrt(chi2)))
	if p > 1 {
		p = 1
	}

	return &CategoricalResult{
		Statistic:         chi2,
		PValue:            p,
		Significant:       p < alpha,
		SignificanceLevel: alpha,
	}, nil
}

// fisherExact computes the two-tailed Fisher exact p-value for a 2x2 table.
//
// Sums the hypergeometric probability of every table with the same margins
// whose probability does not exceed the observed table's.
func fisherExact(a, b, c, d int) float64 {
	r1 := a + b
	c1 := a + c
	n := a + b + c + d

	pObs := hypergeomProb(a, r1, c1, n)

	lo := max(0, r1+c1-n)
	hi := min(r1, c1)

	var p float64
	for x := lo; x <= hi; x++ {
		px := hypergeomProb(x, r1, c1, n)
		// Small slack absorbs log-space rounding when px == pObs.
		if px <= pObs*(1+1e-7) {
			p += px
		}
	}
	if p > 1 {
		p = 1
	}
	return p
}

// hypergeomProb is P(X = a) for a 2x2 table with margins (r1, c1, n).
func hypergeomProb(a, r1, c1, n int) float64 {
	logP := logChoose(r1, a) + logChoose(n-r1, c1-a) - logChoose(n, c1)
	return math.Exp(logP)
}

// logChoose is log(n choose k) via the log-gamma function.
func logChoose(n, k int) float64 {
	if k < 0 || k > n {
		return math.Inf(-1)
	}
	ln1, _ := math.Lgamma(float64(n + 1))
	lk1, _ := math.Lgamma(float64(k + 1))
	lnk1, _ := math.Lgamma(float64(n - k + 1))
	return ln1 - lk1 - lnk1
}
