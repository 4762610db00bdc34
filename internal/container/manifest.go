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
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/mod/sumdb/note"
)

// manifestOrigin is the first line of every manifest.
const manifestOrigin = "stageboot image manifest"

// ManifestText returns the text a manifest for h must carry: the entry point
// followed by the destination, length and SHA-256 of every loadable segment.
func ManifestText(b []byte, h *Header) (string, error) {
	var s strings.Builder
	fmt.Fprintf(&s, "%s\nentry 0x%x\n", manifestOrigin, h.Entry)
	for _, seg := range h.Segments {
		if !seg.Loadable() {
			continue
		}
		d, err := Data(b, seg)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&s, "segment 0x%x %d %x\n", seg.Dest, seg.Length, sha256.Sum256(d))
	}
	return s.String(), nil
}

// SignManifest returns a signed manifest for the container b.
func SignManifest(b []byte, signers ...note.Signer) ([]byte, error) {
	h, err := Parse(b)
	if err != nil {
		return nil, err
	}
	text, err := ManifestText(b, h)
	if err != nil {
		return nil, err
	}
	return note.Sign(&note.Note{Text: text}, signers...)
}

// verifyManifest checks that msg is a note signed by v over the manifest of
// the container b.
func verifyManifest(b []byte, h *Header, msg []byte, v note.Verifier) error {
	n, err := note.Open(msg, note.VerifierList(v))
	if err != nil {
		return invalid("manifest: %v", err)
	}
	want, err := ManifestText(b, h)
	if err != nil {
		return err
	}
	if n.Text != want {
		return invalid("manifest does not match the image")
	}
	return nil
}
