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

package cli

import (
	"testing"

	"fortio.org/assert"

	"metron.dev/metron/plan"
	"metron.dev/metron/signaller"
)

// resetFlags restores the flags buildPlan reads to their zero/default
// state so tests don't leak into each other (flags are package globals).
func resetFlags(t *testing.T) {
	t.Helper()
	*targetsFlag = ""
	*methodFlag = plan.DefaultMethod
	*rateFlag = "100"
	*rateEndFlag = 0
	*durationFlag = "10s"
	*connectionsFlag = plan.DefaultConnections
	*headerFlag = ""
	*payloadFlag = ""
	*latencyCorrectionFlag = true
	*signallerKindFlag = "blocking"
	*configFileFlag = ""
}

func TestBuildPlanFromFlags(t *testing.T) {
	resetFlags(t)
	*targetsFlag = "http://a.test/, http://b.test/"
	*rateFlag = "50"
	*durationFlag = "2s"
	*headerFlag = "X-Test: 1"

	p, err := buildPlan()
	assert.True(t, err == nil, "expected no error: %v", err)
	assert.Equal(t, 2, len(p.Targets))
	assert.Equal(t, "http://a.test/", p.Targets[0])
	assert.Equal(t, 1, len(p.Segments))
	assert.Equal(t, plan.Fixed, p.Segments[0].Kind)
	assert.Equal(t, plan.Rate(50), p.Segments[0].Rate)
	assert.Equal(t, 1, len(p.Headers))
	assert.Equal(t, "X-Test", p.Headers[0].Name)
	assert.True(t, p.Validate() == nil, "expected a valid plan")
}

func TestBuildPlanLinearWhenRateEndSet(t *testing.T) {
	resetFlags(t)
	*targetsFlag = "http://a.test/"
	*rateFlag = "10"
	*rateEndFlag = 200

	p, err := buildPlan()
	assert.True(t, err == nil, "expected no error: %v", err)
	assert.Equal(t, plan.Linear, p.Segments[0].Kind)
	assert.Equal(t, plan.Rate(10), p.Segments[0].RateStart)
	assert.Equal(t, plan.Rate(200), p.Segments[0].RateEnd)
}

func TestBuildPlanMultiSegmentFromCommaLists(t *testing.T) {
	resetFlags(t)
	*targetsFlag = "http://a.test/"
	*rateFlag = "10,20:50,100"
	*durationFlag = "1s,2s,forever"

	p, err := buildPlan()
	assert.True(t, err == nil, "expected no error: %v", err)
	assert.Equal(t, 3, len(p.Segments))
	assert.Equal(t, plan.Fixed, p.Segments[0].Kind)
	assert.Equal(t, plan.Rate(10), p.Segments[0].Rate)
	assert.Equal(t, plan.Linear, p.Segments[1].Kind)
	assert.Equal(t, plan.Rate(20), p.Segments[1].RateStart)
	assert.Equal(t, plan.Rate(50), p.Segments[1].RateEnd)
	assert.Equal(t, plan.Fixed, p.Segments[2].Kind)
	assert.Equal(t, plan.Rate(100), p.Segments[2].Rate)
	assert.True(t, p.Segments[2].Forever, "expected the last segment to be forever")
	assert.True(t, p.Validate() == nil, "expected a valid plan")
}

func TestBuildPlanRejectsMismatchedSegmentLists(t *testing.T) {
	resetFlags(t)
	*targetsFlag = "http://a.test/"
	*rateFlag = "10,20"
	*durationFlag = "1s"

	_, err := buildPlan()
	assert.True(t, err != nil, "expected an error when -rate and -t name a different number of segments")
}

func TestBuildPlanRejectsNonLastForever(t *testing.T) {
	resetFlags(t)
	*targetsFlag = "http://a.test/"
	*rateFlag = "10,20"
	*durationFlag = "forever,1s"

	_, err := buildPlan()
	assert.True(t, err != nil, "expected an error when \"forever\" isn't the last segment")
}

func TestBuildPlanRejectsMalformedHeader(t *testing.T) {
	resetFlags(t)
	*targetsFlag = "http://a.test/"
	*headerFlag = "no-colon-here"

	_, err := buildPlan()
	assert.True(t, err != nil, "expected an error for a malformed -H value")
}

func TestParseSignallerKind(t *testing.T) {
	k, err := parseSignallerKind("")
	assert.True(t, err == nil, "expected no error")
	assert.Equal(t, signaller.KindBlocking, k)

	k, err = parseSignallerKind("Cooperative")
	assert.True(t, err == nil, "expected no error")
	assert.Equal(t, signaller.KindCooperative, k)

	_, err = parseSignallerKind("bogus")
	assert.True(t, err != nil, "expected an error for an unknown kind")
}

func TestSplitNonEmpty(t *testing.T) {
	got := splitNonEmpty(" a , b ,, c", ",")
	assert.Equal(t, 3, len(got))
	assert.Equal(t, "a", got[0])
	assert.Equal(t, "b", got[1])
	assert.Equal(t, "c", got[2])
}
