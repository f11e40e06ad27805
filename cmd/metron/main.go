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

// Command metron is the distributed HTTP load generator described in
// spec.md: a thin main, in the vein of fcurl/fcurl.go, that just hands
// off to the cli package.
package main

import (
	"metron.dev/metron/cli"
)

func main() {
	cli.Main()
}
