package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/ormasoftchile/polytest/pkg/schema"
)

// Region tag markers recognized inside sample source files.
var (
	startTagRe = regexp.MustCompile(`\[START ([a-zA-Z0-9_]*)\]`)
	endTagRe   = regexp.MustCompile(`\[END ([a-zA-Z0-9_]*)\]`)
)

// GenOptions controls manifest generation.
type GenOptions struct {
	// Name of the generated environment.
	Name string

	// Basepath is prepended to each sample path. Empty means ".".
	Basepath string

	// Vars are tags applied to the environment verbatim.
	Vars map[string]string

	// Globs select sample files (doublestar syntax); YAML files are
	// always ignored so manifests never list themselves.
	Globs []string

	// Flat repeats the tags inside the entry instead of factoring them
	// into a base anchor.
	Flat bool
}

// Generate builds a manifest document for samples already on disk: each
// globbed file contributes one samples entry keyed by the region tag
// found inside it. The output is YAML text, factored through an anchor
// unless Flat is set.
func Generate(opts GenOptions) (string, error) {
	if opts.Name == "" {
		return "", fmt.Errorf("gen manifest: environment name required")
	}
	for reserved := range opts.Vars {
		if reserved == "name" || reserved == "samples" || reserved == "basepath" {
			return "", fmt.Errorf("gen manifest: tag %q is reserved", reserved)
		}
	}

	samples, err := collectSamples(opts.Globs)
	if err != nil {
		return "", err
	}
	if len(samples) == 0 {
		return "", fmt.Errorf("gen manifest: no sample files matched")
	}

	basepath := opts.Basepath
	if basepath == "" {
		basepath = DefaultBasepath
	}

	var b strings.Builder
	fmt.Fprintf(&b, "type: %s\n", schema.TypeEnvironments)
	fmt.Fprintf(&b, "schema_version: %d\n", schema.SchemaVersion)

	varNames := make([]string, 0, len(opts.Vars))
	for name := range opts.Vars {
		varNames = append(varNames, name)
	}
	sort.Strings(varNames)

	writeVars := func(indent string) {
		for _, name := range varNames {
			fmt.Fprintf(&b, "%s%s: '%s'\n", indent, name, escapeYAML(opts.Vars[name]))
		}
	}

	if !opts.Flat && len(opts.Vars) > 0 {
		b.WriteString("base: &common\n")
		fmt.Fprintf(&b, "  basepath: '%s'\n", escapeYAML(basepath))
		b.WriteString("  vars:\n")
		writeVars("    ")
		b.WriteString("environments:\n")
		b.WriteString("- <<: *common\n")
		fmt.Fprintf(&b, "  name: '%s'\n", escapeYAML(opts.Name))
	} else {
		b.WriteString("environments:\n")
		fmt.Fprintf(&b, "- name: '%s'\n", escapeYAML(opts.Name))
		fmt.Fprintf(&b, "  basepath: '%s'\n", escapeYAML(basepath))
		if len(opts.Vars) > 0 {
			b.WriteString("  vars:\n")
			writeVars("    ")
		}
	}

	b.WriteString("  samples:\n")
	for _, s := range samples {
		fmt.Fprintf(&b, "    %s: '%s'\n", s.tag, escapeYAML(s.path))
	}
	return b.String(), nil
}

type sampleEntry struct {
	tag  string
	path string
}

// collectSamples globs sample files, skipping YAML, and extracts one
// region tag per file. Paths are sorted for deterministic output.
func collectSamples(globs []string) ([]sampleEntry, error) {
	var paths []string
	seen := make(map[string]bool)
	for _, g := range globs {
		matches, err := doublestar.FilepathGlob(g)
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", g, err)
		}
		for _, m := range matches {
			ext := filepath.Ext(m)
			if ext == ".yaml" || ext == ".yml" || seen[m] {
				continue
			}
			seen[m] = true
			paths = append(paths, m)
		}
	}
	sort.Strings(paths)

	samples := make([]sampleEntry, 0, len(paths))
	tags := make(map[string]string)
	for _, path := range paths {
		tag, err := RegionTag(path)
		if err != nil {
			return nil, err
		}
		if prev, dup := tags[tag]; dup {
			return nil, fmt.Errorf("region tag %q appears in both %s and %s", tag, prev, path)
		}
		tags[tag] = path
		samples = append(samples, sampleEntry{tag: tag, path: path})
	}
	return samples, nil
}

// RegionTag extracts the single region tag from a sample file. A tag
// counts only when both its [START x] and [END x] markers are present;
// tags containing "core" are ignored. Zero or multiple remaining tags
// is an error, because the tag becomes the sample's identity.
func RegionTag(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read sample: %w", err)
	}
	text := string(data)

	ends := make(map[string]bool)
	for _, m := range endTagRe.FindAllStringSubmatch(text, -1) {
		ends[m[1]] = true
	}

	var found []string
	for _, m := range startTagRe.FindAllStringSubmatch(text, -1) {
		tag := m[1]
		if strings.Contains(tag, "core") {
			continue
		}
		if ends[tag] {
			found = append(found, tag)
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("no region tags in %s", path)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("multiple region tags in %s: %s", path, strings.Join(found, ", "))
	}
}

// escapeYAML escapes a value for inclusion in a single-quoted YAML
// scalar.
func escapeYAML(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
