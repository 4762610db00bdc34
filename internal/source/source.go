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

// Package source defines the interface shared by the image acquisition
// backends.
package source

import "github.com/google/stageboot/internal/staging"

// Backend pulls a boot image into the staging buffer.
//
// Acquire runs to completion or to a terminal failure; there is no way to
// abort a transfer once it has started writing into buf. It returns the
// number of bytes staged.
type Backend interface {
	Name() string
	Acquire(buf *staging.Buffer) (int, error)
}
