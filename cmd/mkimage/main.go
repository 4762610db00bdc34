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

// mkimage packages a RISC-V ELF executable as a stageboot image.
//
// Usage:
//
//	go run ./cmd/mkimage --logtostderr --elf=kernel.elf --dtb=board.dtb --out=boot.bin
//
// With --gen_key it instead creates the key pair for signed images: the signer
// key is written to --signing_key and a board description carrying the
// verifier as its manifest_key to --board_out.
//
//	go run ./cmd/mkimage --gen_key=stageboot-dev --signing_key=manifest.sec --board=board.json --board_out=signed.json
package main

import (
	"flag"

	"github.com/golang/glog"
	"github.com/google/stageboot/cmd/mkimage/impl"
)

var (
	elfPath    = flag.String("elf", "", "RISC-V executable to package")
	dtbPath    = flag.String("dtb", "", "Optional device tree blob to pass to the program")
	signingKey = flag.String("signing_key", "", "Optional file holding the note signer key for the manifest")
	out        = flag.String("out", "boot.bin", "Where to write the image")

	genKey   = flag.String("gen_key", "", "Create a key pair with this name instead of building an image")
	board    = flag.String("board", "", "Board description to add the verifier key to; empty uses the defaults")
	boardOut = flag.String("board_out", "", "Where to write the board description with the verifier key")
)

func main() {
	flag.Parse()

	if *genKey != "" {
		if _, err := impl.GenerateKey(impl.KeyOpts{
			Name:       *genKey,
			SigningKey: *signingKey,
			Board:      *board,
			BoardOut:   *boardOut,
		}); err != nil {
			glog.Exit(err.Error())
		}
		return
	}

	if err := impl.Main(impl.Opts{
		ELF:        *elfPath,
		DeviceTree: *dtbPath,
		SigningKey: *signingKey,
		Out:        *out,
	}); err != nil {
		glog.Exit(err.Error())
	}
}
