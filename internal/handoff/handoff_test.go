// Copyright 2026 Google LLC. All Rights Reserved.
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

package handoff

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type jumped struct {
	entry, hartID, dtb uint64
}

func TestExecute(t *testing.T) {
	var got []jumped
	j := JumpFunc(func(entry, hartID, dtb uint64) {
		got = append(got, jumped{entry, hartID, dtb})
		panic(got[0])
	})

	func() {
		defer func() {
			if r := recover(); r != (jumped{0x8000_0000, 1, 0x8680_0000}) {
				t.Errorf("recovered %v", r)
			}
		}()
		Execute(j, 0x8000_0000, 1, 0x8680_0000)
	}()

	if diff := cmp.Diff(got, []jumped{{0x8000_0000, 1, 0x8680_0000}}, cmp.AllowUnexported(jumped{})); diff != "" {
		t.Errorf("jumps diff (-got +want):\n%s", diff)
	}
}

func TestExecutePanicsIfJumpReturns(t *testing.T) {
	defer func() {
		r := recover()
		s, ok := r.(string)
		if !ok || !strings.Contains(s, "returned") {
			t.Errorf("recovered %v, want a panic about the jump returning", r)
		}
	}()
	Execute(JumpFunc(func(uint64, uint64, uint64) {}), 0x8000_0000, 0, 0)
}
