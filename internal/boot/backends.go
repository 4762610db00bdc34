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

package boot

import (
	"github.com/google/stageboot/internal/config"
	"github.com/google/stageboot/internal/console"
	"github.com/google/stageboot/internal/datagram"
	"github.com/google/stageboot/internal/flash"
	"github.com/google/stageboot/internal/fsadapter"
	"github.com/google/stageboot/internal/source"
	"github.com/google/stageboot/internal/source/blockstorage"
	"github.com/google/stageboot/internal/source/network"
	"github.com/google/stageboot/internal/source/rawflash"
)

// Devices are the boot source devices present on a board. Absent devices are
// nil, leaving their source unbound.
type Devices struct {
	FS    fsadapter.Adapter
	Flash flash.Transport
	Net   datagram.Transport
}

// Backends returns the boot sources for the devices in d, configured from
// board.
func Backends(board config.Board, d Devices, con *console.Console) map[string]source.Backend {
	spin := console.NewSpinner(con)
	m := make(map[string]source.Backend)
	if d.FS != nil {
		m[config.SourceSD] = &blockstorage.Backend{
			FS:        d.FS,
			File:      board.BootFile,
			ChunkSize: board.ChunkSize,
			Console:   con,
			Spinner:   spin,
		}
	}
	if d.Flash != nil {
		m[config.SourceFlash] = &rawflash.Backend{
			T:       d.Flash,
			Offset:  board.Flash.Offset,
			Length:  board.Flash.Length,
			Console: con,
			Spinner: spin,
		}
	}
	if d.Net != nil {
		m[config.SourceNetwork] = &network.Backend{
			T:          d.Net,
			File:       board.Network.File,
			MaxRetries: board.Network.MaxRetries,
			PollSpins:  board.Network.PollSpins,
			Console:    con,
			Spinner:    spin,
		}
	}
	return m
}
