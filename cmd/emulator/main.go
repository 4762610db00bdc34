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

// emulator runs the stageboot boot sequence on the host against simulated
// devices.
//
// Usage:
//
//	go run ./cmd/emulator --logtostderr --mode=2 --flash_image=boot.bin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/google/stageboot/cmd/emulator/impl"
)

var (
	boardConfig = flag.String("board", "", "JSON board description; the Ariane defaults when empty")
	mode        = flag.Uint("mode", 0, "Value of the boot mode switch")
	sdImage     = flag.String("sd_image", "", "ext4 filesystem image to attach as the SD card")
	sdOffset    = flag.Int64("sd_offset", 0, "Byte offset of the filesystem within --sd_image")
	flashImage  = flag.String("flash_image", "", "Image to attach as the SPI flash")
	bootServer  = flag.String("boot_server", "", "host:port of a running boot server")
	serveFile   = flag.String("serve", "", "File to serve from an in-process boot server")
	pollSpins   = flag.Int("poll_spins", 1000, "Network polls per attempt")
	pollWait    = flag.Duration("poll_wait", time.Millisecond, "How long each network poll waits")
)

func main() {
	flag.Parse()

	out, err := impl.Main(context.Background(), impl.Opts{
		BoardConfig: *boardConfig,
		Mode:        uint32(*mode),
		SDImage:     *sdImage,
		SDOffset:    *sdOffset,
		FlashImage:  *flashImage,
		BootServer:  *bootServer,
		ServeFile:   *serveFile,
		PollSpins:   *pollSpins,
		PollWait:    *pollWait,
		Console:     os.Stdout,
	})
	if err != nil {
		glog.Exit(err.Error())
	}
	fmt.Printf("\nhandoff: entry 0x%x hart %d dtb 0x%x\n", out.Entry, out.HartID, out.DTB)
}
