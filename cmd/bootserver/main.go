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

// bootserver serves boot images to stageboot's network boot source.
//
// Usage:
//
//	go run ./cmd/bootserver --logtostderr --listen=:4950 --root=/srv/boot
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/golang/glog"
	"github.com/google/stageboot/cmd/bootserver/impl"
)

var (
	listen  = flag.String("listen", ":4950", "UDP address to listen on")
	root    = flag.String("root", ".", "Directory holding the images to serve")
	timeout = flag.Duration("timeout", 5*time.Second, "How long to wait for each acknowledgement")
	retries = flag.Int("retries", 3, "How many times a block is re-sent before giving up")
)

func main() {
	flag.Parse()
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := impl.Main(ctx, impl.Opts{
		Listen:  *listen,
		Root:    *root,
		Timeout: *timeout,
		Retries: *retries,
	}); err != nil {
		glog.Exitf("bootserver: %v", err)
	}
}
