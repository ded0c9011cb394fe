package logger

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestComponentRoutesByLevel(t *testing.T) {
	var info, errs bytes.Buffer
	SetOutput(&info, &errs)
	defer SetOutput(os.Stdout, os.Stderr)

	log := Named("AppraisalWorker")
	log.Info("processed %d events", 3)
	log.Warn("attempt %d failed", 2)
	log.Error("giving up on %s", "abc")

	if got := info.String(); !strings.Contains(got, "AppraisalWorker: processed 3 events") {
		t.Fatalf("info output missing line: %q", got)
	}
	if got := info.String(); !strings.Contains(got, "WARN AppraisalWorker: attempt 2 failed") {
		t.Fatalf("warn output missing line: %q", got)
	}
	if strings.Contains(info.String(), "giving up") {
		t.Fatalf("error line leaked to stdout: %q", info.String())
	}
	if got := errs.String(); !strings.Contains(got, "AppraisalWorker: giving up on abc") {
		t.Fatalf("error output missing line: %q", got)
	}
}
