// Package manifest reads environment manifest documents and converts
// them into suite environments. A manifest factors the binding tables
// for samples already on disk out of the suite file, so the same suite
// can run against artifact layouts that differ per repository.
package manifest

import (
	"fmt"
	"path/filepath"

	"github.com/ormasoftchile/polytest/pkg/bind"
	"github.com/ormasoftchile/polytest/pkg/schema"
)

// LoadSuite indexes the given files and globs, decodes the single suite
// document among them, and merges manifest-supplied environments into
// its environment list. Duplicate environment names surface later, in
// domain validation.
func LoadSuite(patterns ...string) (*schema.SuiteDoc, error) {
	ix, err := schema.IndexFiles(patterns...)
	if err != nil {
		return nil, err
	}
	suites, err := ix.Suites()
	if err != nil {
		return nil, err
	}
	switch len(suites) {
	case 0:
		return nil, fmt.Errorf("no suite document found")
	case 1:
	default:
		return nil, fmt.Errorf("found %d suite documents, expected one", len(suites))
	}

	doc := suites[0]
	envs, err := Environments(ix)
	if err != nil {
		return nil, err
	}
	doc.Suite.Environments = append(doc.Suite.Environments, envs...)
	return doc, nil
}

// Doc is a manifest/environments document. Base holds tags shared by
// every entry; YAML merge keys (<<: *anchor) are equivalent and are
// resolved by the decoder before this struct sees them.
type Doc struct {
	Type          string  `yaml:"type"`
	SchemaVersion int     `yaml:"schema_version"`
	Base          *Entry  `yaml:"base,omitempty"`
	Environments  []Entry `yaml:"environments"`
}

// Entry describes one environment binding table. Samples maps a sample
// ID (its region tag) to a path relative to Basepath; each becomes a
// placeholder variable holding the joined path.
type Entry struct {
	Name      string            `yaml:"name"`
	Basepath  string            `yaml:"basepath,omitempty"`
	Workdir   string            `yaml:"workdir,omitempty"`
	Isolation string            `yaml:"isolation,omitempty"`
	Vars      map[string]string `yaml:"vars,omitempty"`
	Samples   map[string]string `yaml:"samples,omitempty"`
}

// DefaultBasepath applies when neither the base nor the entry sets one.
const DefaultBasepath = "."

// Environments decodes every manifest document in the index and
// converts the entries into suite environments, in file order.
func Environments(ix *schema.IndexedDocs) ([]schema.Environment, error) {
	var envs []schema.Environment
	for _, doc := range ix.OfType(schema.TypeEnvironments) {
		var md Doc
		if err := schema.DecodeStrict(doc.Node, &md); err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Path, err)
		}
		converted, err := md.ToEnvironments()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Path, err)
		}
		envs = append(envs, converted...)
	}
	return envs, nil
}

// ToEnvironments merges the base tags into each entry (the entry wins)
// and produces one suite environment per entry. Sample paths are joined
// onto the effective basepath and exposed as plain variables, so a
// scenario references "{{.analyze_sentiment}}" without caring where the
// manifest put the file.
func (d *Doc) ToEnvironments() ([]schema.Environment, error) {
	if d.SchemaVersion != 0 && d.SchemaVersion != schema.SchemaVersion {
		return nil, fmt.Errorf("unsupported manifest schema_version %d", d.SchemaVersion)
	}

	envs := make([]schema.Environment, 0, len(d.Environments))
	seen := make(map[string]bool)
	for i, entry := range d.Environments {
		merged := entry.mergeBase(d.Base)
		if merged.Name == "" {
			return nil, fmt.Errorf("environments[%d]: missing name", i)
		}
		if seen[merged.Name] {
			return nil, fmt.Errorf("environments[%d]: duplicate environment %q", i, merged.Name)
		}
		seen[merged.Name] = true

		basepath := merged.Basepath
		if basepath == "" {
			basepath = DefaultBasepath
		}

		vars := bind.Merge(merged.Vars)
		for tag, path := range merged.Samples {
			if _, taken := vars[tag]; taken {
				return nil, fmt.Errorf("environment %q: sample tag %q collides with a var", merged.Name, tag)
			}
			vars[tag] = filepath.Join(basepath, path)
		}

		envs = append(envs, schema.Environment{
			Name:      merged.Name,
			Vars:      vars,
			Workdir:   merged.Workdir,
			Isolation: merged.Isolation,
		})
	}
	return envs, nil
}

// mergeBase layers the entry over the document base. Vars and Samples
// merge per key with the entry winning; scalar fields fall back to the
// base only when the entry leaves them empty.
func (e Entry) mergeBase(base *Entry) Entry {
	if base == nil {
		return e
	}
	merged := e
	if merged.Basepath == "" {
		merged.Basepath = base.Basepath
	}
	if merged.Workdir == "" {
		merged.Workdir = base.Workdir
	}
	if merged.Isolation == "" {
		merged.Isolation = base.Isolation
	}
	merged.Vars = bind.Merge(base.Vars, e.Vars)
	merged.Samples = bind.Merge(base.Samples, e.Samples)
	return merged
}
