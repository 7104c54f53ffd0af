package testutil

import (
	"bufio"
	"strings"
	"testing"
)

// ParseSSEData parses a data-only SSE stream into its ordered data payloads.
//
// The chat stream never uses "event:" fields; every frame is a single
// "data: <payload>" line followed by a blank line. Payloads are returned
// verbatim, including the terminal "[DONE]" sentinel.
//
// Example:
//
//	payloads := testutil.ParseSSEData(t, rec.Body.String())
//	if payloads[len(payloads)-1] != "[DONE]" { ... }
func ParseSSEData(t *testing.T, body string) []string {
	t.Helper()

	var payloads []string
	scanner := bufio.NewScanner(strings.NewReader(body))
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data: "):
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))

		case strings.HasPrefix(line, "data:"):
			payloads = append(payloads, strings.TrimPrefix(line, "data:"))

		case line == "":
			// Frame separator.

		case strings.HasPrefix(line, ":"):
			// SSE comment, ignored.

		default:
			t.Fatalf("SSE parse error at line %d: unexpected line %q", lineNum, line)
		}
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("SSE scan error: %v", err)
	}

	return payloads
}
