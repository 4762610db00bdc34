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

// Package fdt edits the flattened device tree handed to the loaded program.
package fdt

import (
	"bytes"
	"fmt"

	"github.com/u-root/u-root/pkg/dt"
)

// SourceProperty is the /chosen property naming the boot source.
const SourceProperty = "stageboot,source"

func setProperty(n *dt.Node, name, value string) {
	p := dt.Property{Name: name, Value: []byte(value + "\x00")}
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			n.Properties[i] = p
			return
		}
	}
	n.Properties = append(n.Properties, p)
}

// blobReader reads a device tree blob. An empty read succeeds even at the
// end of the blob, where a tree without properties keeps its empty strings
// block.
type blobReader struct {
	*bytes.Reader
}

func (r blobReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return r.Reader.Read(p)
}

// Fixup returns dtb with bootargs and the boot source name recorded in the
// /chosen node, creating the node if the tree has none.
func Fixup(dtb []byte, bootargs, source string) ([]byte, error) {
	fdt, err := dt.ReadFDT(blobReader{bytes.NewReader(dtb)})
	if err != nil {
		return nil, fmt.Errorf("failed to parse device tree: %w", err)
	}

	var chosen *dt.Node
	for _, node := range fdt.RootNode.Children {
		if node.Name == "chosen" {
			chosen = node
			break
		}
	}
	if chosen == nil {
		chosen = &dt.Node{Name: "chosen"}
		fdt.RootNode.Children = append(fdt.RootNode.Children, chosen)
	}
	if bootargs != "" {
		setProperty(chosen, "bootargs", bootargs)
	}
	setProperty(chosen, SourceProperty, source)

	buf := new(bytes.Buffer)
	if _, err := fdt.Write(buf); err != nil {
		return nil, fmt.Errorf("failed to write device tree: %w", err)
	}
	return buf.Bytes(), nil
}
