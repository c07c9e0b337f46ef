package main

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMain(m *testing.M) {
	// Same wire format as main.
	decimal.MarshalJSONWithoutQuotes = true
	os.Exit(m.Run())
}

// runApp runs the CLI with args and returns what it wrote to stdout and stderr.
func runApp(t *testing.T, stdin io.Reader, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	if stdin == nil {
		stdin = strings.NewReader("")
	}
	app.Reader = stdin

	err := app.Run(append([]string{"wldsell"}, args...))
	return stdout.String(), stderr.String(), err
}
