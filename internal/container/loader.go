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

package container

import (
	"io"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/mem"
	"golang.org/x/mod/sumdb/note"
)

// Loader copies container segments into physical memory.
type Loader struct {
	// Mem is written at physical addresses. When it is also a mem.Slicer,
	// every destination must be backed by it before anything is copied.
	Mem io.WriterAt
	// Allowed lists the ranges segments may be loaded into. Empty allows
	// any address.
	Allowed []mem.Range
	// Reserved lists ranges no segment may overlap: the loader's own
	// footprint, the staging buffer and the arena.
	Reserved []mem.Range
	// Verifier, when set, requires a manifest signed by it.
	Verifier note.Verifier
}

// Image describes a loaded program.
type Image struct {
	Entry uint64
	// Loaded lists the segments copied to memory, in header order.
	Loaded []Segment
	// DeviceTree holds the contents of the device tree segment, if any.
	DeviceTree []byte
}

func (l *Loader) allowed(r mem.Range) bool {
	if len(l.Allowed) == 0 {
		return true
	}
	for _, a := range l.Allowed {
		if a.Contains(r) {
			return true
		}
	}
	return false
}

// validate checks every descriptor of h against the staged container b.
func (l *Loader) validate(b []byte, h *Header) (*Image, []byte, error) {
	img := &Image{Entry: h.Entry}
	var manifest []byte
	for i, s := range h.Segments {
		d, err := Data(b, s)
		if err != nil {
			return nil, nil, invalid("segment %d: %v", i, err)
		}
		switch {
		case s.Flags&FlagManifest != 0:
			if manifest != nil {
				return nil, nil, invalid("segment %d: second manifest", i)
			}
			manifest = d
		case s.Flags&FlagDeviceTree != 0:
			if img.DeviceTree != nil {
				return nil, nil, invalid("segment %d: second device tree", i)
			}
			img.DeviceTree = d
		}
		if !s.Loadable() {
			continue
		}

		dst := s.Dst()
		if !dst.Valid() {
			return nil, nil, invalid("segment %d: destination 0x%x+0x%x wraps", i, s.Dest, s.Length)
		}
		if !l.allowed(dst) {
			return nil, nil, invalid("segment %d: destination %s outside loadable memory", i, dst)
		}
		if sl, ok := l.Mem.(mem.Slicer); ok && s.Length > 0 {
			if _, err := sl.Slice(s.Dest, int(s.Length)); err != nil {
				return nil, nil, invalid("segment %d: destination %s not backed by memory: %v", i, dst, err)
			}
		}
		for _, r := range l.Reserved {
			if dst.Overlaps(r) {
				return nil, nil, invalid("segment %d: destination %s overlaps reserved %s", i, dst, r)
			}
		}
		for j, p := range img.Loaded {
			if dst.Overlaps(p.Dst()) {
				return nil, nil, invalid("segment %d: destination %s overlaps segment %d at %s", i, dst, j, p.Dst())
			}
		}
		img.Loaded = append(img.Loaded, s)
	}
	return img, manifest, nil
}

// Load validates the container b and, only if every segment is acceptable,
// copies its loadable segments to their destinations.
func (l *Loader) Load(b []byte) (*Image, error) {
	h, err := Parse(b)
	if err != nil {
		return nil, err
	}
	img, manifest, err := l.validate(b, h)
	if err != nil {
		return nil, err
	}
	if l.Verifier != nil {
		if manifest == nil {
			return nil, invalid("unsigned image, manifest required by %s", l.Verifier.Name())
		}
		if err := verifyManifest(b, h, manifest, l.Verifier); err != nil {
			return nil, err
		}
		glog.Infof("Image manifest verified by %s", l.Verifier.Name())
	}

	for _, s := range img.Loaded {
		if s.Length == 0 {
			continue
		}
		d := b[s.Offset : s.Offset+s.Length]
		if _, err := l.Mem.WriteAt(d, int64(s.Dest)); err != nil {
			return nil, failure.New(failure.FormatInvalid, "load", err)
		}
		glog.V(1).Infof("Loaded %d bytes at %s", s.Length, s.Dst())
	}
	glog.Infof("Loaded %d segments, entry 0x%x", len(img.Loaded), img.Entry)
	return img, nil
}
