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

// Package version holds Metron's version and build information, burned in
// from module build info. The reusable library part lives in
// [fortio.org/version]; this package just binds it to this module's path.
package version // import "metron.dev/metron/version"

import (
	"fortio.org/version"
)

var (
	// The following are (re)computed in init().
	shortVersion = "dev"
	longVersion  = "unknown long"
	fullVersion  = "unknown full"
)

// Short returns the 3 digit short Metron version string Major.Minor.Patch,
// matching the project git tag (without the leading v), or "dev" when not
// built from a tagged `go install metron.dev/metron/cmd/metron@latest`.
func Short() string {
	return shortVersion
}

// Long returns the long version and build information: "X.Y.Z hash
// go-version processor os".
func Long() string {
	return longVersion
}

// Full returns the Long version plus all the runtime BuildInfo: every
// dependent module with its version and hash.
func Full() string {
	return fullVersion
}

func init() { //nolint:gochecknoinits // version is burned in at startup, once.
	shortVersion, longVersion, fullVersion = version.FromBuildInfoPath("metron.dev/metron")
}
