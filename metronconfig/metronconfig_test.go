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

package metronconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"fortio.org/assert"

	"metron.dev/metron/plan"
)

const sampleYAML = `
segments:
  - kind: fixed
    rate: 100
    duration: 1s
  - kind: linear
    rate_start: 10
    rate_end: 200
    duration: 5s
targets:
  - http://example.test/
method: POST
headers:
  - name: X-A
    value: "1"
connections: 4
latency_correction: true
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	assert.True(t, os.WriteFile(path, []byte(content), 0o600) == nil, "expected to write temp config")
	return path
}

func TestLoadAndToPlan(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	f, err := Load(path)
	assert.True(t, err == nil, "expected no error loading config: %v", err)

	p, err := f.ToPlan()
	assert.True(t, err == nil, "expected no error converting to plan: %v", err)
	p.Normalize()
	assert.True(t, p.Validate() == nil, "expected a valid plan")

	assert.Equal(t, 2, len(p.Segments))
	assert.Equal(t, plan.Fixed, p.Segments[0].Kind)
	assert.Equal(t, plan.Rate(100), p.Segments[0].Rate)
	assert.Equal(t, plan.Linear, p.Segments[1].Kind)
	assert.Equal(t, plan.Rate(10), p.Segments[1].RateStart)
	assert.Equal(t, plan.Rate(200), p.Segments[1].RateEnd)
	assert.Equal(t, "POST", p.Method)
	assert.Equal(t, 1, len(p.Headers))
	assert.Equal(t, "X-A", p.Headers[0].Name)
}

func TestFromPlanRoundTrip(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	f, err := Load(path)
	assert.True(t, err == nil, "expected no error loading config")
	p, err := f.ToPlan()
	assert.True(t, err == nil, "expected no error converting to plan")
	p.Normalize()

	f2 := FromPlan(p, "blocking", false, true)
	var buf bytes.Buffer
	assert.True(t, Print(&buf, f2) == nil, "expected Print to succeed")
	assert.True(t, buf.Len() > 0, "expected YAML output")

	p2, err := f2.ToPlan()
	assert.True(t, err == nil, "expected round-tripped file to convert back to a plan")
	assert.Equal(t, len(p.Segments), len(p2.Segments))
	assert.Equal(t, p.Targets[0], p2.Targets[0])
}

func TestLoadRejectsUnknownSegmentKind(t *testing.T) {
	path := writeTempConfig(t, "segments:\n  - kind: bogus\ntargets: [http://x/]\n")
	f, err := Load(path)
	assert.True(t, err == nil, "expected the YAML itself to parse")
	_, convErr := f.ToPlan()
	assert.True(t, convErr != nil, "expected an error for an unknown segment kind")
}
