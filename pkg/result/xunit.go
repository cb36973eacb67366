package result

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

// xUnit XML document types. One testsuite per environment, one testcase
// per run, so CI systems group results the way humans read them.

type xunitTestsuites struct {
	XMLName  xml.Name         `xml:"testsuites"`
	Name     string           `xml:"name,attr"`
	Tests    int              `xml:"tests,attr"`
	Failures int              `xml:"failures,attr"`
	Errors   int              `xml:"errors,attr"`
	Skipped  int              `xml:"skipped,attr"`
	Time     string           `xml:"time,attr"`
	Suites   []xunitTestsuite `xml:"testsuite"`
}

type xunitTestsuite struct {
	Name     string          `xml:"name,attr"`
	Tests    int             `xml:"tests,attr"`
	Failures int             `xml:"failures,attr"`
	Errors   int             `xml:"errors,attr"`
	Skipped  int             `xml:"skipped,attr"`
	Time     string          `xml:"time,attr"`
	Cases    []xunitTestcase `xml:"testcase"`
}

type xunitTestcase struct {
	Name      string        `xml:"name,attr"`
	Classname string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *xunitFailure `xml:"failure,omitempty"`
	Error     *xunitFailure `xml:"error,omitempty"`
	Skipped   *xunitSkipped `xml:"skipped,omitempty"`
}

type xunitFailure struct {
	Message string `xml:"message,attr"`
	Body    string `xml:",chardata"`
}

type xunitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// WriteXUnit renders the suite result as xUnit XML for CI ingestion.
func WriteXUnit(w io.Writer, sr *SuiteResult) error {
	byEnv := make(map[string]*xunitTestsuite)
	var order []string
	for _, run := range sr.Runs {
		ts, ok := byEnv[run.Environment]
		if !ok {
			ts = &xunitTestsuite{Name: run.Environment}
			byEnv[run.Environment] = ts
			order = append(order, run.Environment)
		}

		tc := xunitTestcase{
			Name:      run.Scenario,
			Classname: sr.Suite + "." + run.Environment,
			Time:      seconds(run.Elapsed),
		}
		switch run.Status {
		case StatusFailed:
			ts.Failures++
			tc.Failure = &xunitFailure{
				Message: "expectation not met",
				Body:    runDetail(&run),
			}
		case StatusErrored:
			ts.Errors++
			tc.Error = &xunitFailure{
				Message: "execution error",
				Body:    runDetail(&run),
			}
		case StatusCancelled:
			ts.Errors++
			tc.Error = &xunitFailure{Message: "cancelled"}
		case StatusSkipped:
			ts.Skipped++
			tc.Skipped = &xunitSkipped{}
		}
		ts.Tests++
		ts.Cases = append(ts.Cases, tc)
	}

	doc := xunitTestsuites{
		Name: sr.Suite,
		Time: seconds(sr.Elapsed),
	}
	for _, env := range order {
		ts := byEnv[env]
		doc.Tests += ts.Tests
		doc.Failures += ts.Failures
		doc.Errors += ts.Errors
		doc.Skipped += ts.Skipped
		doc.Suites = append(doc.Suites, *ts)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode xunit: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// runDetail renders the failing steps of a run for the xUnit body.
func runDetail(run *RunResult) string {
	var b strings.Builder
	describe := func(steps []StepResult) {
		for _, st := range steps {
			if st.Status == StatusPassed || st.Status == StatusSkipped {
				continue
			}
			fmt.Fprintf(&b, "step %q: %s\n", st.Name, st.Status)
			if st.Error != "" {
				fmt.Fprintf(&b, "  error: %s\n", st.Error)
			}
			for _, f := range st.Failures {
				fmt.Fprintf(&b, "  %s\n", f.String())
			}
		}
	}
	describe(run.Setup)
	describe(run.Steps)
	describe(run.Teardown)
	return b.String()
}

func seconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}
