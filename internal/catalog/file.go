package catalog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/star/debriswatch/internal/conjunction"
)

// FileSource reads objects from a YAML document. JSON is valid YAML, so exported JSON
// catalogs load as well.
//
// The document is either a bare list of objects or a mapping with an "objects" key.
type FileSource struct {
	Path string
}

// Name implements Source.
func (f FileSource) Name() string { return "file" }

// Load implements Source. The file is re-read on every call.
func (f FileSource) Load(ctx context.Context) (Contents, error) {
	if err := ctx.Err(); err != nil {
		return Contents{}, err
	}
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Contents{}, fmt.Errorf("reading catalog file: %w", err)
	}
	objects, err := Decode(bytes.NewReader(data))
	if err != nil {
		return Contents{}, fmt.Errorf("%s: %w", f.Path, err)
	}
	return Contents{Objects: objects}, nil
}

type document struct {
	Objects []conjunction.SpaceObject `yaml:"objects"`
}

// Decode parses a catalog document.
func Decode(r io.Reader) ([]conjunction.SpaceObject, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	root := &node
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}

	switch root.Kind {
	case yaml.SequenceNode:
		var objects []conjunction.SpaceObject
		if err := root.Decode(&objects); err != nil {
			return nil, fmt.Errorf("decoding catalog: %w", err)
		}
		return objects, nil
	case yaml.MappingNode:
		var doc document
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding catalog: %w", err)
		}
		return doc.Objects, nil
	default:
		return nil, fmt.Errorf("decoding catalog: expected a list or an objects mapping")
	}
}

// Encode writes objects in the mapping form Decode reads.
func Encode(w io.Writer, objects []conjunction.SpaceObject) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(document{Objects: objects}); err != nil {
		return fmt.Errorf("encoding catalog: %w", err)
	}
	return enc.Close()
}
