// Package schema defines the Go struct types for the polytest suite YAML
// schema and provides strict YAML parsing.
package schema

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Document type tags. Every polytest YAML document carries a top-level
// "type" field; documents without one are classified by filename
// convention (see loader.go).
const (
	TypeSuite        = "test/suite"
	TypeEnvironments = "manifest/environments"
)

// SchemaVersion is the current suite document schema version.
const SchemaVersion = 1

// SuiteDoc is the top-level envelope of a suite document.
type SuiteDoc struct {
	Type          string `yaml:"type"           json:"type"           jsonschema:"required,enum=test/suite"`
	SchemaVersion int    `yaml:"schema_version" json:"schema_version" jsonschema:"required"`
	Suite         Suite  `yaml:"suite"          json:"suite"          jsonschema:"required"`
}

// Suite is a named collection of scenarios plus the environments they run
// against. Environments may also be supplied by separate manifest
// documents; both sources are merged before scheduling.
type Suite struct {
	Name         string        `yaml:"name"                   json:"name" jsonschema:"required"`
	Defaults     *Defaults     `yaml:"defaults,omitempty"     json:"defaults,omitempty"`
	Environments []Environment `yaml:"environments,omitempty" json:"environments,omitempty"`
	Scenarios    []Scenario    `yaml:"scenarios"              json:"scenarios" jsonschema:"required,minItems=1"`
}

// Defaults specifies execution settings applied to all steps unless
// overridden per step.
type Defaults struct {
	Timeout           string `yaml:"timeout,omitempty"             json:"timeout,omitempty"             jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
	ContinueOnFailure bool   `yaml:"continue_on_failure,omitempty" json:"continue_on_failure,omitempty"`
	Target            string `yaml:"target,omitempty"              json:"target,omitempty"              jsonschema:"enum=stdout,enum=stderr,enum=combined"`
}

// Isolation values for Environment.Isolation.
const (
	IsolationPerRun = "per-run"
	IsolationShared = "shared"
)

// Environment is one concrete language/runtime binding a scenario can run
// against. Vars maps logical placeholder names (e.g. "invocation",
// "build") to concrete strings; the same scenario resolved against
// different environments yields entirely different command lines.
// Environments are owned by the suite and immutable once parsed.
type Environment struct {
	Name    string            `yaml:"name"              json:"name" jsonschema:"required"`
	Vars    map[string]string `yaml:"vars,omitempty"    json:"vars,omitempty"`
	Workdir string            `yaml:"workdir,omitempty" json:"workdir,omitempty"`

	// Isolation controls whether setup/teardown (and the session, if any)
	// run once per environment activation before fan-out ("shared") or
	// inside each concurrent run's private context ("per-run", default).
	Isolation string `yaml:"isolation,omitempty" json:"isolation,omitempty" jsonschema:"enum=per-run,enum=shared"`

	Setup    []Step         `yaml:"setup,omitempty"    json:"setup,omitempty"`
	Teardown []Step         `yaml:"teardown,omitempty" json:"teardown,omitempty"`
	Session  *SessionConfig `yaml:"session,omitempty"  json:"session,omitempty"`
}

// SessionConfig describes a long-lived interactive process started at
// environment activation and kept alive across steps that set
// session: true. Stdin/stdout are piped persistently.
type SessionConfig struct {
	Run  string   `yaml:"run,omitempty"  json:"run,omitempty"`
	Argv []string `yaml:"argv,omitempty" json:"argv,omitempty"`
}

// Scenario is an ordered sequence of steps expressing one test narrative,
// written once and reused read-only across environments.
type Scenario struct {
	Name              string `yaml:"name"                          json:"name" jsonschema:"required"`
	ContinueOnFailure bool   `yaml:"continue_on_failure,omitempty" json:"continue_on_failure,omitempty"`
	Steps             []Step `yaml:"steps"                         json:"steps" jsonschema:"required,minItems=1"`
}

// Step is one command execution plus its expected-output verification.
// Exactly one of Run, Argv, or Session must be set. Run is a command
// template split shell-style after resolution; Argv is an exact argument
// vector; Session sends Stdin to the environment's persistent session
// and reads until the expectation matches or the timeout elapses.
type Step struct {
	Name    string   `yaml:"name,omitempty"    json:"name,omitempty"`
	Run     string   `yaml:"run,omitempty"     json:"run,omitempty"`
	Argv    []string `yaml:"argv,omitempty"    json:"argv,omitempty"`
	Session bool     `yaml:"session,omitempty" json:"session,omitempty"`
	Stdin   string   `yaml:"stdin,omitempty"   json:"stdin,omitempty"`

	// When is an optional expr-lang guard evaluated against the run's
	// variables; a false result skips the step.
	When string `yaml:"when,omitempty" json:"when,omitempty"`

	// Target selects which stream the expectation is verified against.
	Target string `yaml:"target,omitempty" json:"target,omitempty" jsonschema:"enum=stdout,enum=stderr,enum=combined"`

	Timeout           string            `yaml:"timeout,omitempty"             json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m|h)$"`
	ContinueOnFailure *bool             `yaml:"continue_on_failure,omitempty" json:"continue_on_failure,omitempty"`
	Env               map[string]string `yaml:"env,omitempty"                 json:"env,omitempty"`

	// ExitCode, when set, is verified against the process exit status.
	ExitCode *int `yaml:"exit_code,omitempty" json:"exit_code,omitempty"`

	Expect []PatternEntry `yaml:"expect,omitempty" json:"expect,omitempty"`
}

// PatternEntry is one expected-output matching rule. Exactly one of
// Literal, Regex, Wildcard, or Unordered must be set. Named groups in a
// Regex entry bind variables; a variable bound earlier in the same run
// must match the same value on every later capture.
type PatternEntry struct {
	Literal   string         `yaml:"literal,omitempty"   json:"literal,omitempty"`
	Regex     string         `yaml:"regex,omitempty"     json:"regex,omitempty"`
	Wildcard  bool           `yaml:"wildcard,omitempty"  json:"wildcard,omitempty"`
	Unordered []PatternEntry `yaml:"unordered,omitempty" json:"unordered,omitempty"`

	// Optional entries that fail to match do not fail the step, and
	// their captures are not bound.
	Optional bool `yaml:"optional,omitempty" json:"optional,omitempty"`

	// Adjacent forbids skipped lines between this entry and the previous
	// match in an ordered list.
	Adjacent bool `yaml:"adjacent,omitempty" json:"adjacent,omitempty"`

	// Line requires full-line equality for Literal entries instead of
	// substring containment.
	Line bool `yaml:"line,omitempty" json:"line,omitempty"`
}

// LoadFile reads and parses a suite YAML file with strict unknown-field
// rejection. Only the first document in the file is decoded; use the
// loader for multi-document sources.
func LoadFile(path string) (*SuiteDoc, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open suite: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a suite document from an io.Reader with strict
// unknown-field rejection.
func Load(r io.Reader) (*SuiteDoc, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc SuiteDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode suite: %w", err)
	}
	return &doc, nil
}

// DecodeStrict re-decodes a parsed YAML node into out with unknown-field
// rejection. yaml.Node.Decode does not honor KnownFields, so the node is
// round-tripped through the encoder.
func DecodeStrict(node *yaml.Node, out any) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return fmt.Errorf("re-encode document: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
