package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Document is one YAML document together with the path it came from.
// The node is kept undecoded so that suite and manifest documents can be
// routed to their respective decoders.
type Document struct {
	Path string
	Node *yaml.Node
}

// typeOf extracts the top-level "type" field of a document, or "" when
// the document has none.
func (d Document) typeOf() string {
	if d.Node == nil || d.Node.Kind != yaml.MappingNode {
		return ""
	}
	content := d.Node.Content
	for i := 0; i+1 < len(content); i += 2 {
		if content[i].Value == "type" {
			return content[i+1].Value
		}
	}
	return ""
}

// IndexedDocs groups parsed YAML documents by the value of their
// top-level "type" field. Untyped documents are classified by filename
// convention: "*.manifest.yaml" files hold environment manifests, any
// other "*.yaml"/"*.yml" file holds a suite.
type IndexedDocs struct {
	byType map[string][]Document
}

// NewIndexedDocs returns an empty index.
func NewIndexedDocs() *IndexedDocs {
	return &IndexedDocs{byType: make(map[string][]Document)}
}

// OfType returns all documents indexed under the given type tag.
func (ix *IndexedDocs) OfType(typeName string) []Document {
	return ix.byType[typeName]
}

// Contains reports whether at least one document exists for every given
// type tag.
func (ix *IndexedDocs) Contains(typeNames ...string) bool {
	for _, name := range typeNames {
		if len(ix.byType[name]) == 0 {
			return false
		}
	}
	return true
}

// AddFile parses every YAML document in the file at path and indexes it.
func (ix *IndexedDocs) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	for {
		var node yaml.Node
		if err := dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("parse %s: %w", path, err)
		}
		doc := Document{Path: path, Node: unwrapDocument(&node)}
		ix.add(doc)
	}
	return nil
}

// add indexes one document, resolving untyped documents by filename.
func (ix *IndexedDocs) add(doc Document) {
	typeName := doc.typeOf()
	if typeName == "" {
		typeName = resolveByFilename(doc.Path)
	}
	// The type tag may carry a subtype suffix (e.g. "test/suite"); index
	// by the full value so lookups stay exact.
	ix.byType[typeName] = append(ix.byType[typeName], doc)
}

// resolveByFilename classifies an untyped document by its filename, for
// compatibility with suites written before the type tag existed.
func resolveByFilename(path string) string {
	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return ""
	}
	stem := strings.TrimSuffix(path, ext)
	if filepath.Ext(stem) == ".manifest" {
		return TypeEnvironments
	}
	return TypeSuite
}

// unwrapDocument strips the DocumentNode wrapper yaml.v3 produces for
// each document in a stream.
func unwrapDocument(node *yaml.Node) *yaml.Node {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		return node.Content[0]
	}
	return node
}

// IndexFiles globs the given patterns (doublestar syntax) and indexes
// every YAML document found. Non-YAML matches are skipped. Paths are
// visited in sorted order so indexing is deterministic.
func IndexFiles(patterns ...string) (*IndexedDocs, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", p, err)
		}
		if len(matches) == 0 {
			// Not a glob hit: treat the pattern as a literal path so a
			// missing explicit file is an error, not a silent no-op.
			if _, statErr := os.Stat(p); statErr != nil {
				return nil, fmt.Errorf("suite file %q: %w", p, statErr)
			}
			matches = []string{p}
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	ix := NewIndexedDocs()
	for _, path := range paths {
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := ix.AddFile(path); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Suites decodes every suite document in the index, strictly. The
// returned slice preserves file order.
func (ix *IndexedDocs) Suites() ([]*SuiteDoc, error) {
	docs := ix.OfType(TypeSuite)
	suites := make([]*SuiteDoc, 0, len(docs))
	for _, doc := range docs {
		var sd SuiteDoc
		if err := DecodeStrict(doc.Node, &sd); err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Path, err)
		}
		if sd.Type == "" {
			sd.Type = TypeSuite
		}
		suites = append(suites, &sd)
	}
	return suites, nil
}
