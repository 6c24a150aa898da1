// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package spike

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/OpenPSG/mea/internal/stats"
	"gonum.org/v1/gonum/floats"
)

// Method names a noise estimation method.
type Method string

const (
	Median Method = "Median"
	RMS    Method = "RMS"
	Std    Method = "std"
)

// NoiseEstimator estimates the noise scale of one channel.
type NoiseEstimator interface {
	Estimate(x []float64) float64
}

// EstimatorFunc adapts a function into a NoiseEstimator.
type EstimatorFunc func(x []float64) float64

func (f EstimatorFunc) Estimate(x []float64) float64 {
	return f(x)
}

var (
	registryMu sync.RWMutex
	registry   = map[Method]NoiseEstimator{
		Median: EstimatorFunc(medianNoise),
		RMS:    EstimatorFunc(rmsNoise),
		Std:    EstimatorFunc(stats.PopStdDev),
	}
)

// Register makes a noise estimator available under the given method name,
// replacing any previous registration.
func Register(method Method, est NoiseEstimator) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[method] = est
}

// EstimatorFor returns the estimator registered for method.
func EstimatorFor(method Method) (NoiseEstimator, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	est, ok := registry[method]
	if !ok {
		return nil, fmt.Errorf("unknown spike detection method %q", method)
	}
	return est, nil
}

// Methods lists the registered method names.
func Methods() []Method {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]Method, 0, len(registry))
	for m := range registry {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// medianNoise is the median absolute amplitude scaled to a Gaussian sigma.
func medianNoise(x []float64) float64 {
	abs := make([]float64, len(x))
	for i, v := range x {
		abs[i] = math.Abs(v)
	}
	return stats.Median(abs) / 0.6745
}

func rmsNoise(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}
