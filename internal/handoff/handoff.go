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

// Package handoff transfers control of the machine to a loaded program.
package handoff

import (
	"fmt"

	"github.com/golang/glog"
)

// Jumper starts execution at a physical address. On hardware Jump never
// returns.
type Jumper interface {
	Jump(entry, hartID, dtb uint64)
}

// JumpFunc adapts a function to the Jumper interface.
type JumpFunc func(entry, hartID, dtb uint64)

// Jump calls f.
func (f JumpFunc) Jump(entry, hartID, dtb uint64) {
	f(entry, hartID, dtb)
}

// Execute jumps to entry with hartID in a0 and the device tree address dtb
// in a1. It does not return; a Jumper which comes back is a fatal error.
func Execute(j Jumper, entry, hartID, dtb uint64) {
	glog.Infof("Starting program at 0x%x (hart %d, dtb 0x%x)", entry, hartID, dtb)
	glog.Flush()
	j.Jump(entry, hartID, dtb)
	panic(fmt.Sprintf("handoff: jump to 0x%x returned", entry))
}
