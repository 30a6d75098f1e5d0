// Copyright 2025 The packetd Authors
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

package metricstorage

import (
	"fmt"
	"io"

	"github.com/prometheus/prometheus/prompb"

	"github.com/packetd/httpcore/internal/fasttime"
	"github.com/packetd/httpcore/internal/labels"
)

type Unit uint8

const (
	UnitBytes Unit = iota
	UnitSeconds
)

func KB(n int) float64 {
	return float64(n) * 1024
}

func MB(n int) float64 {
	return float64(n) * 1024 * 1024
}

var (
	// DefSizeDistribution 默认的数据量桶分布
	DefSizeDistribution = []float64{
		KB(10), KB(100), KB(250), KB(500),
		MB(1), MB(5), MB(10), MB(20), MB(30), MB(50),
		MB(80), MB(100), MB(150), MB(200), MB(500),
	}

	// DefObserveDuration 默认的时间桶分布
	DefObserveDuration = []float64{
		0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300, 600,
	}
)

func DefBuckets(u Unit) []float64 {
	switch u {
	case UnitBytes:
		return DefSizeDistribution
	case UnitSeconds:
		return DefObserveDuration
	}
	return nil
}

type Model uint8

const (
	ModelCounter Model = iota
	ModelGauge
	ModelHistogram
)

type ConstMetric struct {
	Unit   Unit
	Model  Model
	Name   string
	Labels labels.Labels
	Value  float64
}

func WritePrometheus(w io.Writer, metrics ...ConstMetric) {
	for i := 0; i < len(metrics); i++ {
		metric := metrics[i]
		w.Write([]byte(metric.Name))
		w.Write([]byte(`{`))

		var n int
		for _, label := range metric.Labels {
			if n > 0 {
				w.Write([]byte(`,`))
			}
			n++
			w.Write([]byte(label.Name))
			w.Write([]byte(`="`))
			w.Write([]byte(label.Value))
			w.Write([]byte(`"`))
		}

		w.Write([]byte("} "))
		w.Write([]byte(fmt.Sprintf("%f", metric.Value)))
		w.Write([]byte("\n"))
	}
}

func ToPrompbTimeSeries(metrics ...ConstMetric) []prompb.TimeSeries {
	ts := fasttime.UnixTimestamp() * 1000
	seriess := make([]prompb.TimeSeries, 0, len(metrics))
	for _, metric := range metrics {
		lbs := make([]prompb.Label, 0, len(metric.Labels)+1)
		lbs = append(lbs, prompb.Label{
			Name:  "__name__",
			Value: metric.Name,
		})
		for _, label := range metric.Labels {
			lbs = append(lbs, prompb.Label{
				Name:  label.Name,
				Value: label.Value,
			})
		}
		seriess = append(seriess, prompb.TimeSeries{
			Labels: lbs,
			Samples: []prompb.Sample{{
				Value:     metric.Value,
				Timestamp: ts,
			}},
		})
	}
	return seriess
}
