package main

import (
	"strings"
	"testing"
)

func TestRenderTableIncludesHeadersAndRows(t *testing.T) {
	out := renderTable(
		[]string{"Plugin", "Status"},
		[][]string{{"compressarr-dummy", "enabled"}},
		[]columnAlignment{alignLeft, alignLeft},
	)
	if !strings.Contains(out, "Plugin") || !strings.Contains(out, "compressarr-dummy") {
		t.Fatalf("rendered table missing expected content:\n%s", out)
	}
}

func TestRenderTableEmptyHeadersReturnsEmptyString(t *testing.T) {
	if out := renderTable(nil, nil, nil); out != "" {
		t.Fatalf("got %q, want empty string", out)
	}
}
