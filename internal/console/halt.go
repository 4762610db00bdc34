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

package console

import (
	"time"

	"github.com/google/stageboot/internal/failure"
)

// Halter stops the machine after a fatal failure. Halt never returns.
type Halter interface {
	Halt(err error)
}

// HaltFunc adapts a function to the Halter interface.
type HaltFunc func(err error)

// Halt calls f(err).
func (f HaltFunc) Halt(err error) {
	f(err)
}

// Spin is the hardware halter: it reports the failure on the console and then
// repeats the report forever, so an operator attaching late still sees why
// the boot stopped.
type Spin struct {
	Console *Console
	// Every is the repeat interval for the report.
	Every time.Duration
	// Sleep waits between reports; time.Sleep when nil.
	Sleep func(time.Duration)
}

// Halt implements Halter.
func (s Spin) Halt(err error) {
	sleep := s.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for {
		s.Console.Printf("\nstageboot: halted (%s): %v\n", failure.KindOf(err).Class(), err)
		sleep(s.Every)
	}
}
