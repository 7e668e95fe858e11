// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package manager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fan-out run metrics
	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fp_run_duration_seconds",
			Help:    "Time taken by a complete collection run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	nodeExecTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fp_node_exec_total",
			Help: "Total number of per-node execution attempts",
		},
		[]string{"status"}, // success or error
	)

	nodeExecDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fp_node_exec_duration_seconds",
			Help:    "Time taken to execute all actions on one node",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
	)

	runNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fp_run_nodes",
			Help: "Number of nodes targeted by the last run",
		},
	)

	filteredNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fp_filtered_nodes",
			Help: "Number of discovered nodes excluded by the run filters",
		},
	)
)
