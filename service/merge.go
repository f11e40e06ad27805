// Copyright 2017 Fortio Authors
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

package service

import (
	"github.com/HdrHistogram/hdrhistogram-go"

	"metron.dev/metron/report"
)

// mergeHistMap folds src's histograms into dst (creating dst if nil),
// merging same-keyed histograms and adopting a copy of any histogram
// that exists only in src. Used by Controller.Run to combine the
// per-(target,status) reports of every fanned-out RunnerService.
func mergeHistMap(dst, src map[report.Key]*hdrhistogram.Histogram) map[report.Key]*hdrhistogram.Histogram {
	if dst == nil {
		dst = make(map[report.Key]*hdrhistogram.Histogram)
	}
	for k, h := range src {
		if existing, ok := dst[k]; ok {
			existing.Merge(h)
		} else {
			dst[k] = hdrhistogram.Import(h.Export())
		}
	}
	return dst
}

func mergeTargetHistMap(dst, src map[string]*hdrhistogram.Histogram) map[string]*hdrhistogram.Histogram {
	if dst == nil {
		dst = make(map[string]*hdrhistogram.Histogram)
	}
	for k, h := range src {
		if existing, ok := dst[k]; ok {
			existing.Merge(h)
		} else {
			dst[k] = hdrhistogram.Import(h.Export())
		}
	}
	return dst
}
