package schema

import (
	"strings"
	"testing"
)

func minimalSuite() *SuiteDoc {
	return &SuiteDoc{
		Type:          TypeSuite,
		SchemaVersion: SchemaVersion,
		Suite: Suite{
			Name: "minimal",
			Environments: []Environment{
				{Name: "local", Vars: map[string]string{"invoke": "true"}},
			},
			Scenarios: []Scenario{
				{Name: "noop", Steps: []Step{{Run: "{{.invoke}}"}}},
			},
		},
	}
}

func errorsContain(errs []*ValidationError, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e.Error(), substr) {
			return true
		}
	}
	return false
}

func TestValidateMinimalSuite(t *testing.T) {
	errs := Validate(minimalSuite())
	if HasErrors(errs) {
		t.Fatalf("expected no errors, got: %v", errs)
	}
}

func TestValidateQuickstartFile(t *testing.T) {
	doc, errs := ValidateFile("../../testdata/quickstart/suite.yaml")
	if HasErrors(errs) {
		t.Fatalf("expected no errors, got: %v", errs)
	}
	if doc == nil || doc.Suite.Name != "quickstart" {
		t.Fatalf("unexpected doc: %+v", doc)
	}
}

func TestValidateDuplicateNames(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Scenarios = append(doc.Suite.Scenarios, doc.Suite.Scenarios[0])
	doc.Suite.Environments = append(doc.Suite.Environments, doc.Suite.Environments[0])

	errs := ValidateDomain(doc)
	if !errorsContain(errs, `duplicate scenario name "noop"`) {
		t.Errorf("expected duplicate scenario error, got: %v", errs)
	}
	if !errorsContain(errs, `duplicate environment name "local"`) {
		t.Errorf("expected duplicate environment error, got: %v", errs)
	}
}

func TestValidateEmptyNames(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Name = ""
	doc.Suite.Environments[0].Name = ""
	doc.Suite.Scenarios[0].Name = ""

	errs := ValidateDomain(doc)
	if !errorsContain(errs, "suite name must not be empty") {
		t.Errorf("expected suite name error, got: %v", errs)
	}
	if !errorsContain(errs, "environment name must not be empty") {
		t.Errorf("expected environment name error, got: %v", errs)
	}
	if !errorsContain(errs, "scenario name must not be empty") {
		t.Errorf("expected scenario name error, got: %v", errs)
	}
}

func TestValidateStepForms(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Scenarios[0].Steps = []Step{
		{},
		{Run: "true", Argv: []string{"true"}},
	}
	errs := ValidateDomain(doc)
	if !errorsContain(errs, "exactly one of run, argv, or session") {
		t.Errorf("expected step form errors, got: %v", errs)
	}
	if len(errs) < 2 {
		t.Errorf("both steps should fail, got: %v", errs)
	}
}

func TestValidateSessionRequiresConfig(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Environments[0].Session = &SessionConfig{}
	errs := ValidateDomain(doc)
	if !errorsContain(errs, "session requires run or argv") {
		t.Errorf("expected session config error, got: %v", errs)
	}
}

func TestValidateSessionStepOutsideScenario(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Environments[0].Setup = []Step{{Session: true, Stdin: "hi"}}
	errs := ValidateDomain(doc)
	if !errorsContain(errs, "not allowed in setup/teardown") {
		t.Errorf("expected session placement error, got: %v", errs)
	}
}

func TestValidateBadRegex(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Scenarios[0].Steps[0].Expect = []PatternEntry{{Regex: "[unclosed"}}
	errs := ValidateDomain(doc)
	if !errorsContain(errs, "invalid regex") {
		t.Errorf("expected regex error, got: %v", errs)
	}
}

func TestValidateBadDuration(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Scenarios[0].Steps[0].Timeout = "five minutes"
	errs := ValidateDomain(doc)
	if !errorsContain(errs, "invalid duration") {
		t.Errorf("expected duration error, got: %v", errs)
	}
}

func TestValidatePatternEntryRules(t *testing.T) {
	cases := []struct {
		name  string
		entry PatternEntry
		want  string
	}{
		{"no kind", PatternEntry{Optional: true}, "exactly one of literal, regex, wildcard, or unordered"},
		{"two kinds", PatternEntry{Literal: "x", Wildcard: true}, "exactly one of"},
		{"line on regex", PatternEntry{Regex: "x", Line: true}, "line applies only to literal"},
		{"adjacent unordered", PatternEntry{Unordered: []PatternEntry{{Literal: "x"}}, Adjacent: true}, "adjacent does not apply"},
		{"nested unordered", PatternEntry{Unordered: []PatternEntry{{Unordered: []PatternEntry{{Literal: "x"}}}}}, "cannot nest"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := minimalSuite()
			doc.Suite.Scenarios[0].Steps[0].Expect = []PatternEntry{tc.entry}
			errs := ValidateDomain(doc)
			if !errorsContain(errs, tc.want) {
				t.Errorf("expected error containing %q, got: %v", tc.want, errs)
			}
		})
	}
}

func TestValidateVersionAndType(t *testing.T) {
	doc := minimalSuite()
	doc.Type = "test/other"
	doc.SchemaVersion = 99
	errs := ValidateDomain(doc)
	if !errorsContain(errs, "unrecognized document type") {
		t.Errorf("expected type error, got: %v", errs)
	}
	if !errorsContain(errs, "unsupported schema_version") {
		t.Errorf("expected version error, got: %v", errs)
	}
}

func TestValidateBadTarget(t *testing.T) {
	doc := minimalSuite()
	doc.Suite.Scenarios[0].Steps[0].Target = "output"
	errs := ValidateDomain(doc)
	if !errorsContain(errs, "target must be stdout, stderr, or combined") {
		t.Errorf("expected target error, got: %v", errs)
	}
}
