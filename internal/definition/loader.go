// Package definition loads YAML entity definitions, validates them and serves
// them from a registry with atomic snapshot swap.
package definition

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pitabwire/entityconfig/model"
)

// Loader reads entity definitions from YAML files. A file holds one
// definition per YAML document, so a bundle may keep its entities together.
type Loader struct{}

// NewLoader creates a Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadAll loads every .yaml and .yml file under directories, in lexical
// order. Files and directories whose name starts with a dot are skipped.
func (l *Loader) LoadAll(directories []string) ([]model.EntityDefinition, error) {
	var defs []model.EntityDefinition
	for _, dir := range directories {
		files, err := definitionFiles(dir)
		if err != nil {
			return nil, fmt.Errorf("scan definitions in %s: %w", dir, err)
		}
		for _, path := range files {
			loaded, err := l.LoadFile(path)
			if err != nil {
				return nil, err
			}
			defs = append(defs, loaded...)
		}
	}
	return defs, nil
}

func definitionFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// LoadFile parses every non-empty document of the file at path. A
// definition's checksum covers its own document only, so editing one entity
// of a bundle leaves the checksums of the others unchanged.
func (l *Loader) LoadFile(path string) ([]model.EntityDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}

	var defs []model.EntityDefinition
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for doc := 1; ; doc++ {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			return defs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, doc, err)
		}
		if emptyDocument(&node) {
			continue
		}

		def, err := decodeDefinition(&node)
		if err != nil {
			return nil, fmt.Errorf("%s: document %d: %w", path, doc, err)
		}
		def.SourceFile = path
		defs = append(defs, def)
	}
}

func decodeDefinition(node *yaml.Node) (model.EntityDefinition, error) {
	var def model.EntityDefinition
	if err := node.Decode(&def); err != nil {
		return def, err
	}
	canonical, err := yaml.Marshal(node)
	if err != nil {
		return def, err
	}
	sum := sha256.Sum256(canonical)
	def.Checksum = hex.EncodeToString(sum[:])
	return def, nil
}

// emptyDocument reports whether node is a document with no content, such as
// the one between two consecutive "---" markers.
func emptyDocument(node *yaml.Node) bool {
	switch {
	case node.Kind == 0:
		return true
	case node.Kind != yaml.DocumentNode:
		return false
	case len(node.Content) == 0:
		return true
	}
	c := node.Content[0]
	return c.Kind == yaml.ScalarNode && c.Tag == "!!null"
}
