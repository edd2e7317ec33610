// Copyright (C) 2019 Tim Waugh
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package cratevendor

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records what a pipeline run did. A nil *Metrics records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	patchesApplied     prometheus.Counter
	patchesFailed      prometheus.Counter
	cratesDestroyed    prometheus.Counter
	licenseFailures    prometheus.Gauge
	complianceFailures prometheus.Gauge
	stageDuration      *prometheus.GaugeVec
	stageSuccess       *prometheus.GaugeVec
}

// NewMetrics returns Metrics registered in a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		patchesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cratevendor_patches_applied_total",
			Help: "Number of patches applied to vendored crates.",
		}),
		patchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cratevendor_patches_failed_total",
			Help: "Number of patches which failed to apply.",
		}),
		cratesDestroyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cratevendor_crates_destroyed_total",
			Help: "Number of unused crates replaced with a stub.",
		}),
		licenseFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cratevendor_license_failures",
			Help: "Number of crates without an acceptable license in the last run.",
		}),
		complianceFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cratevendor_compliance_failures",
			Help: "Number of crates failing the attestation audit in the last run.",
		}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cratevendor_stage_duration_seconds",
			Help: "Time taken by each pipeline stage.",
		}, []string{"stage"}),
		stageSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cratevendor_stage_success",
			Help: "Whether each pipeline stage completed without error (1) or not (0).",
		}, []string{"stage"}),
	}
	m.registry.MustRegister(
		m.patchesApplied,
		m.patchesFailed,
		m.cratesDestroyed,
		m.licenseFailures,
		m.complianceFailures,
		m.stageDuration,
		m.stageSuccess,
	)
	return m
}

func (m *Metrics) patchApplied() {
	if m != nil {
		m.patchesApplied.Inc()
	}
}

func (m *Metrics) patchFailed() {
	if m != nil {
		m.patchesFailed.Inc()
	}
}

func (m *Metrics) crateDestroyed() {
	if m != nil {
		m.cratesDestroyed.Inc()
	}
}

// failures records the number of failures in an *AggregateError of
// the license or compliance kind.
func (m *Metrics) failures(err error) {
	if m == nil {
		return
	}
	agg, ok := errors.Cause(err).(*AggregateError)
	if !ok {
		return
	}
	switch agg.Kind {
	case LicenseFailure:
		m.licenseFailures.Set(float64(len(agg.Failures)))
	case ComplianceFailure:
		m.complianceFailures.Set(float64(len(agg.Failures)))
	}
}

// stage records the outcome of a pipeline stage which began at start.
func (m *Metrics) stage(name string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(name).Set(time.Since(start).Seconds())
	success := 1.0
	if err != nil {
		success = 0
	}
	m.stageSuccess.WithLabelValues(name).Set(success)
	m.failures(err)
}

// WriteTextfile writes the metrics to path in the Prometheus text
// format, suitable for the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry),
		"writing metrics to %s", path)
}
