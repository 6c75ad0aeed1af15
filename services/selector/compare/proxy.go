// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compare

import (
	"github.com/AleutianAI/metrosel/services/selector/stats"
)

// proxyAlpha is the fixed significance threshold for the plausibility check.
const proxyAlpha = 0.05

// ProxyStatus is the plausibility verdict.
type ProxyStatus string

const (
	// ProxyPassed means the two distributions are statistically
	// indistinguishable at the fixed threshold.
	ProxyPassed ProxyStatus = "PASSED_PLAUSIBILITY"

	// ProxyFailed means the distributions differ (p <= 0.05).
	ProxyFailed ProxyStatus = "FAILED_PLAUSIBILITY"
)

// BasisCorrelational is the only basis a proxy verdict can carry. The two
// score arrays come from independently sourced datasets with no shared
// identifiers, so distribution similarity says nothing about causation.
const BasisCorrelational = "correlational"

// ProxyVerdict is the outcome of a cross-source plausibility check. It must
// never be merged into the same aggregate as same-source ground-truth
// metrics; a FAILED verdict is a normal terminal state, not an error.
type ProxyVerdict struct {
	KSStatistic float64     `json:"ks_statistic"`
	PValue      float64     `json:"p_value"`
	Status      ProxyStatus `json:"status"`

	// Basis is always "correlational"; serialized so downstream reports
	// carry the caveat verbatim.
	Basis string `json:"basis"`
}

// ProxyPlausibility runs the KS two-sample test between two independently
// sourced score arrays.
//
// Inputs:
//   - scoresA, scoresB: Numeric arrays from different sources, no shared
//     identifiers. Each needs at least 2 values.
//
// Outputs:
//   - *ProxyVerdict: FAILED_PLAUSIBILITY iff p <= 0.05, PASSED otherwise.
//   - error: stats.ErrInsufficientSamples for too-small arrays.
//
// Thread Safety: Stateless; safe for concurrent use.
func ProxyPlausibility(scoresA, scoresB []float64) (*ProxyVerdict, error) {
	ks, err := stats.KolmogorovSmirnov(scoresA, scoresB)
	if err != nil {
		return nil, err
	}

	status := ProxyPassed
	if ks.PValue <= proxyAlpha {
		status = ProxyFailed
	}
	return &ProxyVerdict{
		KSStatistic: ks.Statistic,
		PValue:      ks.PValue,
		Status:      status,
		Basis:       BasisCorrelational,
	}, nil
}
