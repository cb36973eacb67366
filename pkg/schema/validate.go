package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location
// context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g. "scenarios[0].steps[2]")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether errs contains at least one error-severity
// entry (warnings alone do not fail validation).
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}

// ValidateFile runs the full 3-phase validation pipeline on a suite file.
// Phase 1: structural (strict YAML decode)
// Phase 2: semantic (JSON Schema validation)
// Phase 3: domain (custom Go rules)
func ValidateFile(path string) (*SuiteDoc, []*ValidationError) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return doc, Validate(doc)
}

// Validate runs the semantic and domain phases on an already-decoded
// suite document.
func Validate(doc *SuiteDoc) []*ValidationError {
	var allErrors []*ValidationError
	allErrors = append(allErrors, validateSemantic(doc)...)
	allErrors = append(allErrors, ValidateDomain(doc)...)
	return allErrors
}

// validateSemantic validates the suite against the generated JSON Schema.
func validateSemantic(doc *SuiteDoc) []*ValidationError {
	fail := func(msg string) []*ValidationError {
		return []*ValidationError{{Phase: "semantic", Message: msg, Severity: "error"}}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fail(fmt.Sprintf("marshal for schema validation: %v", err))
	}

	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return fail(fmt.Sprintf("generate schema: %v", err))
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return fail(fmt.Sprintf("unmarshal schema: %v", err))
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("suite-v1.json", schemaDoc); err != nil {
		return fail(fmt.Sprintf("add schema resource: %v", err))
	}
	sch, err := c.Compile("suite-v1.json")
	if err != nil {
		return fail(fmt.Sprintf("compile schema: %v", err))
	}

	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fail(fmt.Sprintf("unmarshal document: %v", err))
	}

	if err := sch.Validate(instance); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation: the rules that
// JSON Schema cannot express. Malformed regexes and durations are caught
// here, at load time, so execution never sees them.
func ValidateDomain(doc *SuiteDoc) []*ValidationError {
	var errs []*ValidationError
	addErr := func(path, msg string) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: msg, Severity: "error"})
	}

	if doc.Type != "" && doc.Type != TypeSuite {
		addErr("type", fmt.Sprintf("unrecognized document type %q, expected %q", doc.Type, TypeSuite))
	}
	if doc.SchemaVersion != 0 && doc.SchemaVersion != SchemaVersion {
		addErr("schema_version", fmt.Sprintf("unsupported schema_version %d, expected %d", doc.SchemaVersion, SchemaVersion))
	}

	suite := &doc.Suite
	if suite.Name == "" {
		addErr("suite.name", "suite name must not be empty")
	}
	if suite.Defaults != nil {
		checkDuration(suite.Defaults.Timeout, "suite.defaults.timeout", addErr)
	}

	envNames := make(map[string]bool)
	for i, env := range suite.Environments {
		path := fmt.Sprintf("suite.environments[%d]", i)
		if env.Name == "" {
			addErr(path+".name", "environment name must not be empty")
		}
		if envNames[env.Name] {
			addErr(path+".name", fmt.Sprintf("duplicate environment name %q", env.Name))
		}
		envNames[env.Name] = true
		if env.Isolation != "" && env.Isolation != IsolationPerRun && env.Isolation != IsolationShared {
			addErr(path+".isolation", fmt.Sprintf("isolation must be %q or %q, got %q", IsolationPerRun, IsolationShared, env.Isolation))
		}
		if env.Session != nil && env.Session.Run == "" && len(env.Session.Argv) == 0 {
			addErr(path+".session", "session requires run or argv")
		}
		validateSteps(env.Setup, path+".setup", false, addErr)
		validateSteps(env.Teardown, path+".teardown", false, addErr)
	}

	scnNames := make(map[string]bool)
	for i, scn := range suite.Scenarios {
		path := fmt.Sprintf("suite.scenarios[%d]", i)
		if scn.Name == "" {
			addErr(path+".name", "scenario name must not be empty")
		}
		if scnNames[scn.Name] {
			addErr(path+".name", fmt.Sprintf("duplicate scenario name %q", scn.Name))
		}
		scnNames[scn.Name] = true
		validateSteps(scn.Steps, path+".steps", true, addErr)
	}

	return errs
}

// validateSteps checks per-step domain rules. Session steps are only
// allowed inside scenarios (allowSession), since setup/teardown run
// before the session exists or after it is gone.
func validateSteps(steps []Step, path string, allowSession bool, addErr func(path, msg string)) {
	for i, step := range steps {
		p := fmt.Sprintf("%s[%d]", path, i)

		forms := 0
		if step.Run != "" {
			forms++
		}
		if len(step.Argv) > 0 {
			forms++
		}
		if step.Session {
			forms++
		}
		if forms != 1 {
			addErr(p, "exactly one of run, argv, or session must be set")
		}
		if step.Session && !allowSession {
			addErr(p, "session steps are not allowed in setup/teardown")
		}
		if step.Target != "" && step.Target != "stdout" && step.Target != "stderr" && step.Target != "combined" {
			addErr(p+".target", fmt.Sprintf("target must be stdout, stderr, or combined, got %q", step.Target))
		}
		checkDuration(step.Timeout, p+".timeout", addErr)
		validatePatterns(step.Expect, p+".expect", addErr)
	}
}

// validatePatterns checks that each entry declares exactly one pattern
// kind and that regexes compile. A malformed regex is a load-time error,
// never a run-time one.
func validatePatterns(entries []PatternEntry, path string, addErr func(path, msg string)) {
	for i, entry := range entries {
		p := fmt.Sprintf("%s[%d]", path, i)

		kinds := 0
		if entry.Literal != "" {
			kinds++
		}
		if entry.Regex != "" {
			kinds++
		}
		if entry.Wildcard {
			kinds++
		}
		if len(entry.Unordered) > 0 {
			kinds++
		}
		if kinds != 1 {
			addErr(p, "exactly one of literal, regex, wildcard, or unordered must be set")
			continue
		}

		if entry.Regex != "" {
			if _, err := regexp.Compile(entry.Regex); err != nil {
				addErr(p+".regex", fmt.Sprintf("invalid regex: %v", err))
			}
		}
		if entry.Line && entry.Literal == "" {
			addErr(p+".line", "line applies only to literal entries")
		}
		if len(entry.Unordered) > 0 {
			if entry.Adjacent {
				addErr(p+".adjacent", "adjacent does not apply to unordered blocks")
			}
			for j, member := range entry.Unordered {
				if len(member.Unordered) > 0 {
					addErr(fmt.Sprintf("%s.unordered[%d]", p, j), "unordered blocks cannot nest")
				}
			}
			validatePatterns(entry.Unordered, p+".unordered", addErr)
		}
	}
}

func checkDuration(s, path string, addErr func(path, msg string)) {
	if s == "" {
		return
	}
	if _, err := time.ParseDuration(s); err != nil {
		addErr(path, fmt.Sprintf("invalid duration %q", s))
	}
}
