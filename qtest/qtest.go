// Package qtest runs formulaic end-to-end query tests ("qtests") defined
// in YAML files.  A qtest compiles a query against an element type, runs
// the plan over inline input rows, and compares the result with an
// expected output or error.
//
// A qtest is one YAML document:
//
//	query: "{ $filter: {nickname: 'jacques'}, $select: {nickname: nickname} }"
//	input:
//	  - {nickname: jacques, email: jacques@example.com, balance: 10}
//	output:
//	  - {nickname: jacques}
//
// Setting suspendable runs the case twice, once per operator family, and
// both runs must agree with the expected output.  Instead of output, an
// error field asserts a substring of the compile or run error:
//
//	query: "{ $filter: {salary: 1} }"
//	error: field "salary" not found
//
// Results and expectations are both reduced to canonical YAML before
// comparison, so key order and number spellings in the file do not
// matter.  Qtest YAML files for a package reside in testdata/qtest, and
// each file runs as a subtest named for it:
//
//	func TestQTest(t *testing.T) { qtest.Run(t, "testdata/qtest", elemType) }
//
// Tests can be skipped by setting the skip field to a non-empty string.
package qtest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"gopkg.in/yaml.v3"

	"github.com/jsqlang/jsq/compiler"
)

type Bundle struct {
	TestName string
	FileName string
	Test     *Test
	Error    error
}

func Load(dirname string) ([]Bundle, error) {
	var bundles []Bundle
	entries, err := os.ReadDir(dirname)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		filename := entry.Name()
		const dotyaml = ".yaml"
		if !strings.HasSuffix(filename, dotyaml) {
			continue
		}
		testname := strings.TrimSuffix(filename, dotyaml)
		filename = filepath.Join(dirname, filename)
		qt, err := FromYAMLFile(filename)
		bundles = append(bundles, Bundle{testname, filename, qt, err})
	}
	return bundles, nil
}

// Run runs the qtests in the directory named dirname against sequences of
// elem.  Each file f.yaml runs as a subtest named f.
func Run(t *testing.T, dirname string, elem reflect.Type) {
	bundles, err := Load(dirname)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range bundles {
		b := b
		t.Run(b.TestName, func(t *testing.T) {
			t.Parallel()
			if b.Error != nil {
				t.Fatalf("%s: %s", b.FileName, b.Error)
			}
			b.Test.Run(t, elem, b.FileName)
		})
	}
}

// Test defines a qtest.
type Test struct {
	Skip        string    `yaml:"skip,omitempty"`
	Query       string    `yaml:"query"`
	Input       yaml.Node `yaml:"input,omitempty"`
	Suspendable bool      `yaml:"suspendable"`
	Output      yaml.Node `yaml:"output,omitempty"`
	Error       string    `yaml:"error,omitempty"`
}

func (q *Test) check() error {
	if q.Query == "" {
		return errors.New("query field missing")
	}
	if q.Error == "" && q.Output.IsZero() {
		return errors.New("either an output or an error field must be present")
	}
	return nil
}

// FromYAMLFile loads a Test from the YAML file named filename.  Unknown
// fields are rejected so a typo cannot silently weaken a test.
func FromYAMLFile(filename string) (*Test, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var q Test
	if err := dec.Decode(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (q *Test) Run(t *testing.T, elem reflect.Type, filename string) {
	if q.Skip != "" {
		t.Skip("skipping test:", q.Skip)
	}
	if err := q.RunInternal(context.Background(), elem); err != nil {
		t.Fatalf("%s: %s", filename, err)
	}
}

// RunInternal runs the test against both operator families when the case
// asks for it.
func (q *Test) RunInternal(ctx context.Context, elem reflect.Type) error {
	if err := q.check(); err != nil {
		return fmt.Errorf("bad yaml format: %w", err)
	}
	serr := q.runOne(ctx, elem, false)
	if !q.Suspendable {
		return serr
	}
	if serr != nil {
		serr = fmt.Errorf("=== sync ===\n%w", serr)
	}
	verr := q.runOne(ctx, elem, true)
	if verr != nil {
		verr = fmt.Errorf("=== suspendable ===\n%w", verr)
	}
	return errors.Join(serr, verr)
}

func (q *Test) runOne(ctx context.Context, elem reflect.Type, suspendable bool) error {
	rows := reflect.New(reflect.SliceOf(elem))
	if !q.Input.IsZero() {
		if err := q.Input.Decode(rows.Interface()); err != nil {
			return fmt.Errorf("input: %w", err)
		}
	}
	plan, err := compiler.Compile(q.Query, elem,
		compiler.Settings{UseSuspendableProvider: suspendable})
	if err != nil {
		return q.checkError(err)
	}
	out, err := plan.Run(ctx, rows.Elem().Interface())
	if err != nil {
		return q.checkError(err)
	}
	if q.Error != "" {
		return fmt.Errorf("expected error containing %q, got none", q.Error)
	}
	actual, err := canonicalYAML(out)
	if err != nil {
		return fmt.Errorf("result: %w", err)
	}
	var want any
	if err := q.Output.Decode(&want); err != nil {
		return fmt.Errorf("output: %w", err)
	}
	expected, err := canonicalYAML(want)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	if expected != actual {
		return diffErr("output", expected, actual)
	}
	return nil
}

func (q *Test) checkError(err error) error {
	if q.Error == "" {
		return err
	}
	if strings.Contains(err.Error(), q.Error) {
		return nil
	}
	return fmt.Errorf("error %q does not contain %q", err, q.Error)
}

// canonicalYAML renders v through a decode-encode round trip so struct
// results and plain YAML expectations compare on equal footing: map keys
// sort, numbers renormalize, and an empty sequence is [] regardless of
// slice nilness.
func canonicalYAML(v any) (string, error) {
	if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.Slice && rv.IsNil() {
		v = []any{}
	}
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	var norm any
	if err := yaml.Unmarshal(b, &norm); err != nil {
		return "", err
	}
	out, err := yaml.Marshal(norm)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func diffErr(name, expected, actual string) error {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(expected),
		FromFile: "expected",
		B:        difflib.SplitLines(actual),
		ToFile:   "actual",
		Context:  5,
	})
	if err != nil {
		panic("qtest: " + err.Error())
	}
	return fmt.Errorf("expected and actual %s differ:\n%s", name, diff)
}
