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

import (
	"math"
	"sort"
)

// KSResult holds a two-sample Kolmogorov-Smirnov test outcome.
type KSResult struct {
	// Statistic is the maximum distance between the two empirical CDFs.
	Statistic float64

	// PValue is the asymptotic two-sided p-value.
	PValue float64
}

// KolmogorovSmirnov runs the two-sample KS test.
//
// Description:
//
//	Computes D, the supremum distance between the empirical CDFs of the two
//	samples, and the asymptotic p-value via the Kolmogorov distribution
//	series with the small-sample correction
//	lambda = (sqrt(ne) + 0.12 + 0.11/sqrt(ne)) * D.
//
// Inputs:
//   - samples1, samples2: The two independent samples. Each must have at
//     least 2 values.
//
// Outputs:
//   - *KSResult: D statistic and p-value.
//   - error: ErrInsufficientSamples.
//
// Thread Safety: Stateless; safe for concurrent use.
func KolmogorovSmirnov(samples1, samples2 []float64) (*KSResult, error) {
	n1, n2 := len(samples1), len(samples2)
	if n1 < 2 || n2 < 2 {
		return nil, ErrInsufficientSamples
	}

	a := append([]float64(nil), samples1...)
	b := append([]float64(nil), samples2...)
	sort.Float64s(a)
	sort.Float64s(b)

	var d float64
	i, j := 0, 0
	for i < n1 && j < n2 {
		// Advance both pointers through ties so equal values never produce
		// a spurious CDF gap.
		v1, v2 := a[i], b[j]
		if v1 <= v2 {
			i++
		}
		if v2 <= v1 {
			j++
		}
		diff := math.Abs(float64(i)/float64(n1) - float64(j)/float64(n2))
		if diff > d {
			d = diff
		}
	}

	ne := float64(n1) * float64(n2) / float64(n1+n2)
	lambda := (math.Sqrt(ne) + 0.12 + 0.11/math.Sqrt(ne)) * d

	return &KSResult{
		Statistic: d,
		PValue:    ksProbability(lambda),
	}, nil
}

// ksProbability evaluates Q_KS(lambda) = 2 * sum (-1)^(j-1) exp(-2 j^2 lambda^2).
func ksProbability(lambda float64) float64 {
	if lambda <= 0 {
		return 1
	}
	const (
		maxTerms = 100
		eps      = 1e-10
	)
	var sum float64
	sign := 1.0
	for j := 1; j <= maxTerms; j++ {
		term := sign * math.Exp(-2*float64(j*j)*lambda*lambda)
		sum += term
		if math.Abs(term) < eps {
			break
		}
		sign = -sign
	}
	p := 2 * sum
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return p
}
