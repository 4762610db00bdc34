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

//go:build tamago && riscv64

package handoff

// defined in handoff_riscv64.s
func jump(entry, hartID, dtb uint64)

// CPU jumps on the running hart.
type CPU struct{}

// Jump synchronises the instruction stream with the segments just copied
// into memory and branches to entry.
func (CPU) Jump(entry, hartID, dtb uint64) {
	jump(entry, hartID, dtb)
}
