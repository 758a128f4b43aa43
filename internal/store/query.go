package store

import (
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"
)

// reportPrefixLen covers the literal "REPORTn" tokens
const reportPrefixLen = len("REPORTX")

// timeFormat is the accepted REPORT3 timestamp layout. Timestamps are
// interpreted in the server's local time zone and converted to UTC.
const timeFormat = "2006-01-02 15:04:05"

const reportArgsErr = "takes lat1, lat2, long1, long2"

// ExecQueryTo is the main handler for the query interface. A leading
// REPORT1/REPORT2/REPORT3 token (case-insensitive) runs the matching
// prepared report; anything else is evaluated as freeform SQL. Result
// rows go to w as space-separated column text with NULL written
// literally, one row per line. Failures are written to w as a single
// "error: ..." line and also returned.
func (s *Store) ExecQueryTo(w io.Writer, q string) error {
	if len(q) >= reportPrefixLen {
		head := q[:reportPrefixLen]
		rest := q[reportPrefixLen:]
		switch {
		case strings.EqualFold(head, "REPORT1"):
			return s.runRectReport(w, 0, "REPORT1", rest)
		case strings.EqualFold(head, "REPORT2"):
			return s.runRectReport(w, 1, "REPORT2", rest)
		case strings.EqualFold(head, "REPORT3"):
			return s.runActiveReport(w, rest)
		}
	}

	rows, err := s.db.Query(q)
	if err != nil {
		sendErr(w, err.Error())
		return err
	}
	return streamRows(w, rows)
}

// runRectReport parses the four rectangle bounds, normalizes them so
// the lower bound binds first, and streams the report rows.
func (s *Store) runRectReport(w io.Writer, report int, name, args string) error {
	var lat1, lat2, lng1, lng2 float64
	if n, _ := fmt.Sscanf(args, "%f %f %f %f", &lat1, &lat2, &lng1, &lng2); n != 4 {
		msg := name + " " + reportArgsErr
		sendErr(w, msg)
		return fmt.Errorf("%s", msg)
	}
	ensureOrder(&lat1, &lat2)
	ensureOrder(&lng1, &lng2)

	rows, err := s.reports[report].Query(lat1, lat2, lng1, lng2)
	if err != nil {
		sendErr(w, err.Error())
		return err
	}
	return streamRows(w, rows)
}

// runActiveReport answers how many trips were active at an instant.
// With no argument the comparison time is now.
func (s *Store) runActiveReport(w io.Writer, args string) error {
	var t int64
	arg := strings.TrimSpace(args)
	if arg == "" {
		t = s.now().Unix()
	} else {
		var err error
		if t, err = parseLocalTime(arg); err != nil {
			msg := "REPORT3 takes an optional '" + timeFormat + "' timestamp"
			sendErr(w, msg)
			return fmt.Errorf("%s", msg)
		}
	}

	rows, err := s.reports[2].Query(t, t)
	if err != nil {
		sendErr(w, err.Error())
		return err
	}
	return streamRows(w, rows)
}

// ensureOrder swaps the pair so the one that should be lower is lower
func ensureOrder(d1, d2 *float64) {
	if *d1 > *d2 {
		*d1, *d2 = *d2, *d1
	}
}

// parseLocalTime converts a local time string to its UTC unixtime.
// Surrounding single or double quotes are stripped.
func parseLocalTime(s string) (int64, error) {
	s = strings.Trim(s, `'"`)
	t, err := time.ParseInLocation(timeFormat, s, time.Local)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// streamRows writes every row as space-separated column text with a
// trailing newline, NULL cells as the literal NULL. The rows handle is
// always closed and the statement behind it reset for reuse.
func streamRows(w io.Writer, rows *sql.Rows) error {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		sendErr(w, err.Error())
		return err
	}

	vals := make([]sql.RawBytes, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			sendErr(w, err.Error())
			return err
		}
		for i, v := range vals {
			if i != 0 {
				io.WriteString(w, " ")
			}
			if v == nil {
				io.WriteString(w, "NULL")
			} else {
				w.Write(v)
			}
		}
		io.WriteString(w, "\n")
	}
	if err := rows.Err(); err != nil {
		sendErr(w, err.Error())
		return err
	}
	return nil
}

func sendErr(w io.Writer, msg string) {
	fmt.Fprintf(w, "error: %s\n", msg)
}
