package ledger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

var base = time.Date(2024, 3, 1, 8, 30, 0, 123456789, time.UTC)

func newTestLedger(t *testing.T) (*FileLedger, string, string) {
	t.Helper()
	dir := t.TempDir()
	text := filepath.Join(dir, "log.txt")
	csvPath := filepath.Join(dir, "log.csv")
	return NewFileLedger(text, csvPath).WithLocation(time.UTC), text, csvPath
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestFileLedger_Formats(t *testing.T) {
	ctx := context.Background()
	l, text, csvPath := newTestLedger(t)

	if err := l.Record(ctx, "alice", database.DirectionIn, base); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := l.Record(ctx, "Novák, Jan", database.DirectionOut, base.Add(time.Hour)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	wantText := "alice,2024-03-01 08:30:00.123456,in\n" +
		"Novák, Jan,2024-03-01 09:30:00.123456,out\n"
	if got := readFile(t, text); got != wantText {
		t.Errorf("text log =\n%s\nwant\n%s", got, wantText)
	}

	wantCSV := "Name,Date,Timestamp,Action\n" +
		"alice,2024-03-01,08:30:00.123456,in\n" +
		"\"Novák, Jan\",2024-03-01,09:30:00.123456,out\n"
	if got := readFile(t, csvPath); got != wantCSV {
		t.Errorf("csv log =\n%s\nwant\n%s", got, wantCSV)
	}
}

func TestFileLedger_EventsRoundTrip(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	events, err := l.Events(ctx)
	if err != nil || len(events) != 0 {
		t.Fatalf("expected empty log, got %v, %v", events, err)
	}

	names := []string{"alice", "bob", "Novák, Jan", "alice"}
	for i, n := range names {
		dir := database.DirectionIn
		if i%2 == 1 {
			dir = database.DirectionOut
		}
		if err := l.Record(ctx, n, dir, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err = l.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != len(names) {
		t.Fatalf("expected %d events, got %d", len(names), len(events))
	}
	for i, e := range events {
		if e.Name != names[i] {
			t.Errorf("event %d name = %q, want %q", i, e.Name, names[i])
		}
		want := base.Add(time.Duration(i) * time.Minute).Truncate(time.Microsecond)
		if !e.Timestamp.Equal(want) {
			t.Errorf("event %d timestamp = %v, want %v", i, e.Timestamp, want)
		}
	}

	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestFileLedger_AppendOnlyPrefix(t *testing.T) {
	ctx := context.Background()
	l, text, csvPath := newTestLedger(t)

	prevText, prevCSV := "", ""
	for i := range 20 {
		if err := l.Record(ctx, fmt.Sprintf("user%d", i%3), database.DirectionIn, base.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("Record: %v", err)
		}
		curText, curCSV := readFile(t, text), readFile(t, csvPath)
		if !strings.HasPrefix(curText, prevText) || !strings.HasPrefix(curCSV, prevCSV) {
			t.Fatalf("append %d rewrote earlier content", i)
		}
		prevText, prevCSV = curText, curCSV
	}
}

func TestFileLedger_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger(t)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range perWorker {
				if err := l.Record(ctx, fmt.Sprintf("worker%d", w), database.DirectionIn, base.Add(time.Duration(i)*time.Millisecond)); err != nil {
					t.Errorf("Record: %v", err)
				}
			}
		}(w)
	}
	wg.Wait()

	events, err := l.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != workers*perWorker {
		t.Errorf("expected %d events, got %d", workers*perWorker, len(events))
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify after concurrent appends: %v", err)
	}
}

func TestFileLedger_RejectsInvalidEvents(t *testing.T) {
	ctx := context.Background()
	l, text, _ := newTestLedger(t)

	tests := []struct {
		name  string
		event database.AttendanceEvent
	}{
		{"empty name", database.AttendanceEvent{Timestamp: base, Direction: database.DirectionIn}},
		{"newline", database.AttendanceEvent{Name: "a\nb", Timestamp: base, Direction: database.DirectionIn}},
		{"bad direction", database.AttendanceEvent{Name: "a", Timestamp: base, Direction: "sideways"}},
		{"zero time", database.AttendanceEvent{Name: "a", Direction: database.DirectionOut}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := l.Append(ctx, tt.event); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}

	if _, err := os.Stat(text); !os.IsNotExist(err) {
		t.Error("rejected events must not create the log")
	}
}

func TestFileLedger_WriteFailureIsReturned(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	// The CSV path sits under a regular file, so only the CSV view fails.
	l := NewFileLedger(filepath.Join(dir, "log.txt"), filepath.Join(blocker, "log.csv")).WithLocation(time.UTC)

	if err := l.Record(ctx, "alice", database.DirectionIn, base); err == nil {
		t.Fatal("expected error when csv view cannot be written")
	}
	events, err := l.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("failed append left %d events in the text view", len(events))
	}
}

func TestFileLedger_CSVDirectoryLeavesNoEvent(t *testing.T) {
	ctx := context.Background()
	l, text, csvPath := newTestLedger(t)
	if err := os.Mkdir(csvPath, 0o750); err != nil {
		t.Fatal(err)
	}

	if err := l.Record(ctx, "alice", database.DirectionIn, base); err == nil {
		t.Fatal("expected error when the csv view is a directory")
	}
	events, err := l.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("Events = %+v, want none", events)
	}
	if data, err := os.ReadFile(text); err == nil && len(data) != 0 {
		t.Errorf("text view = %q, want empty", data)
	}
}

func TestFileLedger_CSVWriteFailureRollsBackText(t *testing.T) {
	ctx := context.Background()
	l, text, csvPath := newTestLedger(t)
	if err := l.Record(ctx, "alice", database.DirectionIn, base); err != nil {
		t.Fatalf("Record: %v", err)
	}
	before := readFile(t, text)

	orig := writeView
	t.Cleanup(func() { writeView = orig })
	writeView = func(f *os.File, data []byte) error {
		if f.Name() == csvPath {
			// Leave half a row behind, as a crash between write and sync would.
			_, _ = f.Write(data[:len(data)/2])
			return errors.New("no space left on device")
		}
		return orig(f, data)
	}

	if err := l.Record(ctx, "bob", database.DirectionIn, base.Add(time.Minute)); err == nil {
		t.Fatal("expected csv failure to be returned")
	}
	if got := readFile(t, text); got != before {
		t.Errorf("text view after failed append =\n%s\nwant\n%s", got, before)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify after rollback: %v", err)
	}

	writeView = orig
	if err := l.Record(ctx, "carol", database.DirectionOut, base.Add(2*time.Minute)); err != nil {
		t.Fatalf("Record after rollback: %v", err)
	}
	rows, err := l.CSVEvents(ctx)
	if err != nil {
		t.Fatalf("CSVEvents: %v", err)
	}
	if len(rows) != 2 || rows[0].Name != "alice" || rows[1].Name != "carol" {
		t.Errorf("csv events = %+v", rows)
	}
	if err := l.Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestFileLedger_TwoWritersShareOneHeader(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	text := filepath.Join(dir, "log.txt")
	csvPath := filepath.Join(dir, "log.csv")
	// Separate instances have separate mutexes, like separate processes.
	writers := []*FileLedger{
		NewFileLedger(text, csvPath).WithLocation(time.UTC),
		NewFileLedger(text, csvPath).WithLocation(time.UTC),
	}

	const perWriter = 50
	var wg sync.WaitGroup
	for w, l := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				if err := l.Record(ctx, fmt.Sprintf("writer%d", w), database.DirectionIn, base.Add(time.Duration(i)*time.Millisecond)); err != nil {
					t.Errorf("Record: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	if n := strings.Count(readFile(t, csvPath), "Name,Date,Timestamp,Action"); n != 1 {
		t.Errorf("csv view has %d headers, want 1", n)
	}
	rows, err := writers[0].CSVEvents(ctx)
	if err != nil {
		t.Fatalf("CSVEvents: %v", err)
	}
	if len(rows) != 2*perWriter {
		t.Errorf("expected %d csv events, got %d", 2*perWriter, len(rows))
	}
	if err := writers[1].Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestFileLedger_VerifyDetectsDivergence(t *testing.T) {
	ctx := context.Background()
	l, text, _ := newTestLedger(t)
	_ = l.Record(ctx, "alice", database.DirectionIn, base)

	f, err := os.OpenFile(text, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("mallory,2024-03-01 08:31:00.000000,in\n")
	f.Close()

	if err := l.Verify(ctx); !errors.Is(err, ErrViewsDiverge) {
		t.Errorf("expected ErrViewsDiverge, got %v", err)
	}
}

func TestFileLedger_TornTail(t *testing.T) {
	ctx := context.Background()
	l, text, _ := newTestLedger(t)
	_ = l.Record(ctx, "alice", database.DirectionIn, base)

	f, _ := os.OpenFile(text, os.O_APPEND|os.O_WRONLY, 0o600)
	_, _ = f.WriteString("bob,2024-03-0")
	f.Close()

	events, err := l.Events(ctx)
	if err != nil {
		t.Fatalf("Events with torn tail: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected torn line to be ignored, got %d events", len(events))
	}

	// A fresh ledger repairs the tail before its first append.
	l2 := NewFileLedger(text, l.csvPath).WithLocation(time.UTC)
	if err := l2.Record(ctx, "carol", database.DirectionOut, base.Add(time.Minute)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	events, err = l2.Events(ctx)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 || events[1].Name != "carol" {
		t.Errorf("unexpected events after repair: %+v", events)
	}
}

func TestParseText_LegacyTimestamps(t *testing.T) {
	data := []byte("alice,2024-03-01 08:30:00,in\nbob,2024-03-01 08:30:00.5,out\n")
	events, err := parseText(data, time.UTC)
	if err != nil {
		t.Fatalf("parseText: %v", err)
	}
	if len(events) != 2 || events[1].Timestamp.Nanosecond() != 500000000 {
		t.Errorf("unexpected events: %+v", events)
	}

	if _, err := parseText([]byte("garbage\n"), time.UTC); !errors.Is(err, ErrMalformedLog) {
		t.Errorf("expected ErrMalformedLog, got %v", err)
	}
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	primary, _, _ := newTestLedger(t)
	mirror := mock.NewMockLedger()
	m := NewMulti(primary, mirror)

	if err := m.Record(ctx, "alice", database.DirectionIn, base); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if mirror.Len() != 1 {
		t.Errorf("mirror has %d events, want 1", mirror.Len())
	}
	events, err := m.Events(ctx)
	if err != nil || len(events) != 1 {
		t.Errorf("Events = %v, %v", events, err)
	}
	if err := m.Verify(ctx); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestMulti_MirrorFailureIsReported(t *testing.T) {
	ctx := context.Background()
	primary, _, _ := newTestLedger(t)
	down := mock.NewMockLedger()
	down.AppendError = errors.New("mirror down")
	up := mock.NewMockLedger()

	var reported []string
	m := NewMulti(primary, down, up).OnMirrorError(func(i int, e database.AttendanceEvent, err error) {
		reported = append(reported, fmt.Sprintf("%d:%s:%v", i, e.Name, err))
	})

	// The event is recorded once it is in the primary.
	if err := m.Record(ctx, "bob", database.DirectionIn, base); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(reported) != 1 || reported[0] != "0:bob:mirror down" {
		t.Errorf("reported = %v", reported)
	}
	if up.Len() != 1 {
		t.Error("healthy mirror skipped after a failing one")
	}
	events, _ := primary.Events(ctx)
	if len(events) != 1 {
		t.Errorf("primary has %d events, want 1", len(events))
	}
}

func TestMulti_PrimaryFailureSkipsMirrors(t *testing.T) {
	primary := mock.NewMockLedger()
	primary.AppendError = errors.New("disk full")
	mirror := mock.NewMockLedger()

	err := NewMulti(primary, mirror).Record(context.Background(), "alice", database.DirectionIn, base)
	if err == nil {
		t.Fatal("expected error")
	}
	if mirror.Len() != 0 {
		t.Error("mirror written despite primary failure")
	}
}
