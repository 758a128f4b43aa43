package store

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreeformSQL(t *testing.T) {
	s := openTestStore(t)

	if got := query(t, s, "SELECT 1+1;"); got != "2\n" {
		t.Errorf("SELECT 1+1 = %q, want %q", got, "2\n")
	}
}

func TestFreeformSQLError(t *testing.T) {
	s := openTestStore(t)

	var buf bytes.Buffer
	err := s.ExecQueryTo(&buf, "SELECT foo FROM bar;")
	if err == nil {
		t.Error("bad SQL should return an error")
	}
	if !strings.HasPrefix(buf.String(), "error: ") {
		t.Errorf("bad SQL output = %q, want error: prefix", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\n") {
		t.Errorf("error line should end with newline, got %q", buf.String())
	}
}

func TestFreeformNullSerialization(t *testing.T) {
	s := openTestStore(t)

	if got := query(t, s, "SELECT NULL, 7"); got != "NULL 7\n" {
		t.Errorf("null cell = %q, want %q", got, "NULL 7\n")
	}
}

func TestFreeformMultiRow(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AddTripData(1, -122.27, 37.45, EventBegin, 0))
	require.NoError(t, s.AddTripData(2, -122.26, 37.46, EventBegin, 0))

	got := query(t, s, "SELECT id FROM tripsummary ORDER BY id")
	if got != "1\n2\n" {
		t.Errorf("multi-row output = %q, want %q", got, "1\n2\n")
	}
}

func TestReportTokenCaseInsensitive(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.AddTripData(1, -122.27, 37.45, EventBegin, 0))

	for _, q := range []string{
		"report1 37.0 38.0 -123.0 -122.0",
		"Report1 37.0 38.0 -123.0 -122.0",
		"REPORT1 37.0 38.0 -123.0 -122.0",
	} {
		if got := query(t, s, q); got != "1\n" {
			t.Errorf("%q = %q, want 1", q, got)
		}
	}
}

func TestReportArityErrors(t *testing.T) {
	s := openTestStore(t)

	tests := []struct {
		q    string
		want string
	}{
		{"REPORT1 1 2 3", "error: REPORT1 takes lat1, lat2, long1, long2\n"},
		{"REPORT1", "error: REPORT1 takes lat1, lat2, long1, long2\n"},
		{"REPORT2 1 2 junk junk", "error: REPORT2 takes lat1, lat2, long1, long2\n"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		err := s.ExecQueryTo(&buf, tt.q)
		if err == nil {
			t.Errorf("%q should return a parse error", tt.q)
		}
		if buf.String() != tt.want {
			t.Errorf("%q output = %q, want %q", tt.q, buf.String(), tt.want)
		}
	}
}

func TestReport3BadTimestamp(t *testing.T) {
	s := openTestStore(t)

	var buf bytes.Buffer
	err := s.ExecQueryTo(&buf, "REPORT3 yesterday-ish")
	if err == nil {
		t.Error("unparseable timestamp should return an error")
	}
	if !strings.HasPrefix(buf.String(), "error: REPORT3") {
		t.Errorf("output = %q, want error: REPORT3 prefix", buf.String())
	}
}

func TestReportPrefixDoesNotShadowSQL(t *testing.T) {
	s := openTestStore(t)

	// A query merely starting with "REPORT" but not naming a report
	// falls through to the SQL evaluator.
	var buf bytes.Buffer
	err := s.ExecQueryTo(&buf, "REPORTS FROM nowhere")
	if err == nil {
		t.Error("expected an engine error for the fallthrough query")
	}
	if !strings.HasPrefix(buf.String(), "error: ") {
		t.Errorf("output = %q, want engine error", buf.String())
	}
}

func TestEnsureOrder(t *testing.T) {
	a, b := 5.0, 3.0
	ensureOrder(&a, &b)
	if a != 3.0 || b != 5.0 {
		t.Errorf("ensureOrder(5, 3) = (%v, %v), want (3, 5)", a, b)
	}

	a, b = 1.0, 2.0
	ensureOrder(&a, &b)
	if a != 1.0 || b != 2.0 {
		t.Errorf("ensureOrder(1, 2) = (%v, %v), want (1, 2)", a, b)
	}
}
