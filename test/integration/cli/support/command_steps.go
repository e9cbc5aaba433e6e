package support

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/MeKo-Tech/polydraw/cmd/polydraw/cmd"
	"github.com/MeKo-Tech/polydraw/internal/capture"
	"github.com/MeKo-Tech/polydraw/internal/testutil"
	"github.com/cucumber/godog"
	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag of c and its children to its default so
// scenarios sharing the global command tree do not leak values.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// iRunCommand executes a polydraw command line in-process.
func (testCtx *TestContext) iRunCommand(command string) error {
	testCtx.LastCommand = testCtx.expand(command)

	args := strings.Fields(testCtx.LastCommand)
	if len(args) > 0 && args[0] == "polydraw" {
		args = args[1:]
	}

	root := cmd.GetRootCommand()
	resetFlags(root)
	defer resetFlags(root)

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	start := time.Now()
	testCtx.LastError = root.Execute()
	testCtx.LastDuration = time.Since(start)
	testCtx.LastOutput = stdout.String()
	if testCtx.LastError != nil {
		testCtx.LastOutput += stderr.String()
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("command %q failed: %w\nOutput: %s", testCtx.LastCommand, testCtx.LastError, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("command %q succeeded, expected failure\nOutput: %s", testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(expected string) error {
	if !strings.Contains(testCtx.LastOutput, expected) {
		return fmt.Errorf("output does not contain %q\nActual output: %s", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBe(expected string) error {
	if strings.TrimSpace(testCtx.LastOutput) != expected {
		return fmt.Errorf("expected output %q, got %q", expected, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	var v interface{}
	if err := json.Unmarshal([]byte(testCtx.LastOutput), &v); err != nil {
		return fmt.Errorf("output is not valid JSON: %w\nOutput: %s", err, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldMention(text string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an error mentioning %q", text)
	}
	if !strings.Contains(testCtx.LastError.Error(), text) {
		return fmt.Errorf("error %q does not mention %q", testCtx.LastError.Error(), text)
	}
	return nil
}

// theOutputJSONFieldShouldEqual compares a dotted path into the JSON output
// against a JSON literal.
func (testCtx *TestContext) theOutputJSONFieldShouldEqual(path, expected string) error {
	return jsonFieldEquals(testCtx.LastOutput, path, expected)
}

// aTestImage writes a plain white PNG into the temp directory.
func (testCtx *TestContext) aTestImage(w, h int, name string) error {
	path := testCtx.TempPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return imaging.Save(testutil.CreateTestImage(w, h, color.White), path)
}

// aFileWithContent writes a doc string into the temp directory.
func (testCtx *TestContext) aFileWithContent(name string, content *godog.DocString) error {
	path := testCtx.TempPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content.Content), 0o600)
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if _, err := os.Stat(testCtx.expand(name)); err != nil {
		return fmt.Errorf("expected file %s: %w", name, err)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContainPolygon(name, expected string) error {
	data, err := os.ReadFile(testCtx.expand(name)) //nolint:gosec // G304: scenario temp file
	if err != nil {
		return err
	}
	exp, err := capture.ParseExport(data)
	if err != nil {
		return err
	}
	got, err := json.Marshal(exp)
	if err != nil {
		return err
	}
	if string(got) != expected {
		return fmt.Errorf("expected polygon %s in %s, got %s", expected, name, got)
	}
	return nil
}

// jsonFieldEquals decodes doc, walks the dotted path and compares the value
// with the JSON literal expected.
func jsonFieldEquals(doc, path, expected string) error {
	var root interface{}
	if err := json.Unmarshal([]byte(doc), &root); err != nil {
		return fmt.Errorf("not valid JSON: %w\n%s", err, doc)
	}

	cur := root
	for _, key := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path %s: %v is not an object", path, cur)
		}
		if cur, ok = obj[key]; !ok {
			return fmt.Errorf("path %s: missing key %q", path, key)
		}
	}

	var want interface{}
	if err := json.Unmarshal([]byte(expected), &want); err != nil {
		return fmt.Errorf("expected value %q is not JSON: %w", expected, err)
	}
	if !reflect.DeepEqual(cur, want) {
		got, _ := json.Marshal(cur)
		return fmt.Errorf("path %s: expected %s, got %s", path, expected, got)
	}
	return nil
}

// RegisterCommandSteps registers the CLI step definitions.
func (testCtx *TestContext) RegisterCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^I run "([^"]*)"$`, testCtx.iRunCommand)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should be '([^']*)'$`, testCtx.theOutputShouldBe)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the output field "([^"]*)" should equal '([^']*)'$`, testCtx.theOutputJSONFieldShouldEqual)
	sc.Step(`^the error should mention "([^"]*)"$`, testCtx.theErrorShouldMention)

	sc.Step(`^a (\d+)x(\d+) test image "([^"]*)"$`, testCtx.aTestImage)
	sc.Step(`^a file "([^"]*)" with:$`, testCtx.aFileWithContent)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain the polygon '([^']*)'$`, testCtx.theFileShouldContainPolygon)
}
