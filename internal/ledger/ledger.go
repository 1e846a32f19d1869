// Package ledger keeps the append-only attendance log.
//
// The file ledger writes every event to two views: a plain text log in the
// historical "name,timestamp,direction" format and a CSV log with separate
// date and time columns. Both are only ever appended to.
package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const (
	// TimestampLayout is the text view timestamp, local time with microseconds.
	TimestampLayout = "2006-01-02 15:04:05.000000"
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.000000"
)

var csvHeader = []string{"Name", "Date", "Timestamp", "Action"}

var (
	// ErrInvalidEvent is returned for events that cannot be represented in the log.
	ErrInvalidEvent = errors.New("invalid attendance event")
	// ErrMalformedLog is returned when a view contains a line that cannot be parsed.
	ErrMalformedLog = errors.New("malformed attendance log")
	// ErrViewsDiverge is returned by Verify when the views disagree.
	ErrViewsDiverge = errors.New("attendance log views diverge")
)

// FileLedger appends events to the text and CSV views. Appends are
// serialised within the process by a mutex and across processes by an
// exclusive lock on the text view. An event is either in both views or in
// neither; each view receives one write per event followed by fsync.
type FileLedger struct {
	textPath string
	csvPath  string
	loc      *time.Location

	mu sync.Mutex
}

// NewFileLedger creates a ledger writing to textPath and csvPath. Files and
// parent directories are created on first append.
func NewFileLedger(textPath, csvPath string) *FileLedger {
	return &FileLedger{
		textPath: textPath,
		csvPath:  csvPath,
		loc:      time.Local,
	}
}

// WithLocation sets the zone timestamps are written and read in.
func (l *FileLedger) WithLocation(loc *time.Location) *FileLedger {
	l.loc = loc
	return l
}

// Record appends one event.
func (l *FileLedger) Record(ctx context.Context, name string, dir database.Direction, ts time.Time) error {
	return l.Append(ctx, database.AttendanceEvent{Name: name, Timestamp: ts, Direction: dir})
}

// Append writes the event to the text view, then the CSV view. If the CSV
// write fails the text view is truncated back, so a returned error means the
// event is in neither view.
func (l *FileLedger) Append(ctx context.Context, e database.AttendanceEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateEvent(e); err != nil {
		return err
	}

	ts := e.Timestamp.In(l.loc)
	textLine := fmt.Sprintf("%s,%s,%s\n", e.Name, ts.Format(TimestampLayout), e.Direction)

	var row bytes.Buffer
	w := csv.NewWriter(&row)
	_ = w.Write([]string{e.Name, ts.Format(dateLayout), ts.Format(timeLayout), string(e.Direction)})
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encode csv row: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	text, err := openView(l.textPath)
	if err != nil {
		return fmt.Errorf("open text log: %w", err)
	}
	defer text.Close()
	unlock, err := lockFile(text, true)
	if err != nil {
		return fmt.Errorf("lock text log: %w", err)
	}
	defer unlock()

	csvFile, err := openView(l.csvPath)
	if err != nil {
		return fmt.Errorf("open csv log: %w", err)
	}
	defer csvFile.Close()

	textSize, err := repairTail(text)
	if err != nil {
		return fmt.Errorf("repair text log: %w", err)
	}
	csvSize, err := repairTail(csvFile)
	if err != nil {
		return fmt.Errorf("repair csv log: %w", err)
	}

	if err := writeView(text, []byte(textLine)); err != nil {
		_ = text.Truncate(textSize)
		return fmt.Errorf("append text log: %w", err)
	}

	data := row.Bytes()
	if csvSize == 0 {
		data = append(csvHeaderLine(), data...)
	}
	if err := writeView(csvFile, data); err != nil {
		_ = csvFile.Truncate(csvSize)
		if terr := text.Truncate(textSize); terr != nil {
			return fmt.Errorf("append csv log: %w (text log rollback: %w)", err, terr)
		}
		_ = text.Sync()
		return fmt.Errorf("append csv log: %w", err)
	}
	return nil
}

func csvHeaderLine() []byte {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	_ = w.Write(csvHeader)
	w.Flush()
	return b.Bytes()
}

func openView(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	return os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o640) //nolint:gosec // log path from config
}

// writeView writes data with a single write on an O_APPEND descriptor and
// syncs it.
var writeView = func(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// repairTail drops a trailing partial line left by a crash mid-write and
// returns the resulting size. Such a line was never acknowledged to a caller.
func repairTail(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := info.Size()
	if size == 0 {
		return 0, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return 0, err
	}
	if last[0] == '\n' {
		return size, nil
	}

	data := make([]byte, size)
	if _, err := f.ReadAt(data, 0); err != nil {
		return 0, err
	}
	keep := int64(bytes.LastIndexByte(data, '\n') + 1)
	if err := f.Truncate(keep); err != nil {
		return 0, err
	}
	return keep, nil
}

func validateEvent(e database.AttendanceEvent) error {
	if e.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEvent)
	}
	if strings.ContainsAny(e.Name, "\r\n") {
		return fmt.Errorf("%w: name contains a line break", ErrInvalidEvent)
	}
	if _, err := database.ParseDirection(string(e.Direction)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrInvalidEvent)
	}
	return nil
}

// Events reads back the text view in append order. A missing file is an
// empty log.
func (l *FileLedger) Events(ctx context.Context) ([]database.AttendanceEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readView(l.textPath)
	if err != nil {
		return nil, err
	}
	return parseText(data, l.loc)
}

// CSVEvents reads back the CSV view in append order.
func (l *FileLedger) CSVEvents(ctx context.Context) ([]database.AttendanceEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := readView(l.csvPath)
	if err != nil {
		return nil, err
	}
	return parseCSV(data, l.loc)
}

// Verify checks that both views hold the same event sequence. It holds a
// shared lock on the text view so appends from other processes wait.
func (l *FileLedger) Verify(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if f, err := os.Open(l.textPath); err == nil {
		defer f.Close()
		unlock, err := lockFile(f, false)
		if err != nil {
			return fmt.Errorf("lock text log: %w", err)
		}
		defer unlock()
	}

	text, err := l.Events(ctx)
	if err != nil {
		return fmt.Errorf("text log: %w", err)
	}
	rows, err := l.CSVEvents(ctx)
	if err != nil {
		return fmt.Errorf("csv log: %w", err)
	}

	n := min(len(text), len(rows))
	for i := range n {
		if !sameEvent(text[i], rows[i]) {
			return fmt.Errorf("%w: event %d differs: text=%s csv=%s", ErrViewsDiverge, i+1, describe(text[i]), describe(rows[i]))
		}
	}
	if len(text) != len(rows) {
		return fmt.Errorf("%w: text log has %d events, csv log has %d", ErrViewsDiverge, len(text), len(rows))
	}
	return nil
}

func sameEvent(a, b database.AttendanceEvent) bool {
	return a.Name == b.Name && a.Direction == b.Direction && a.Timestamp.Equal(b.Timestamp)
}

func describe(e database.AttendanceEvent) string {
	return fmt.Sprintf("%q %s %s", e.Name, e.Timestamp.Format(TimestampLayout), e.Direction)
}

func readView(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	// Ignore an unterminated final line; it is a write that never completed.
	if i := bytes.LastIndexByte(data, '\n'); i+1 < len(data) {
		data = data[:i+1]
	}
	return data, nil
}

// parseText splits each line from the right so names may contain commas.
func parseText(data []byte, loc *time.Location) ([]database.AttendanceEvent, error) {
	var events []database.AttendanceEvent
	for n, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		dirSep := strings.LastIndexByte(line, ',')
		if dirSep < 0 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLog, n+1, line)
		}
		tsSep := strings.LastIndexByte(line[:dirSep], ',')
		if tsSep <= 0 {
			return nil, fmt.Errorf("%w: line %d: %q", ErrMalformedLog, n+1, line)
		}
		e, err := parseEvent(line[:tsSep], line[tsSep+1:dirSep], line[dirSep+1:], loc)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedLog, n+1, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func parseCSV(data []byte, loc *time.Location) ([]database.AttendanceEvent, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(csvHeader)

	var events []database.AttendanceEvent
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLog, err)
		}
		if line == 1 && rec[0] == csvHeader[0] && rec[3] == csvHeader[3] {
			continue
		}
		e, err := parseEvent(rec[0], rec[1]+" "+rec[2], rec[3], loc)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrMalformedLog, line, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// parseEvent accepts timestamps with or without the fractional part; older
// logs omit it when the microseconds are zero.
func parseEvent(name, ts, dir string, loc *time.Location) (database.AttendanceEvent, error) {
	if name == "" {
		return database.AttendanceEvent{}, errors.New("empty name")
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05.999999", ts, loc)
	if err != nil {
		return database.AttendanceEvent{}, fmt.Errorf("timestamp: %w", err)
	}
	d, err := database.ParseDirection(dir)
	if err != nil {
		return database.AttendanceEvent{}, err
	}
	return database.AttendanceEvent{Name: name, Timestamp: t, Direction: d}, nil
}
