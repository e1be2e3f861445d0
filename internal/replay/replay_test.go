package replay

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"rtmonitor/internal/bus"
	"rtmonitor/internal/capture"
	"rtmonitor/internal/feed"
	"rtmonitor/internal/feed/feedtest"
	"rtmonitor/internal/metrics"
)

// 2016-03-07 00:00:00 UTC and the following days.
const (
	day1 int64 = 1457308800
	day2       = day1 + 86400
	day3       = day2 + 86400
)

// writeArchive stores one capture per epoch under root, laid out the way
// capture.Writer does.
func writeArchive(t *testing.T, root string, loc *time.Location, epochs ...int64) {
	t.Helper()
	for _, e := range epochs {
		writeRaw(t, root, loc, e, feedtest.Capture(t, uint64(e), "v1", "v2"))
	}
}

func writeRaw(t *testing.T, root string, loc *time.Location, epoch int64, raw []byte) {
	t.Helper()
	id := capture.NewIdentity(time.Unix(epoch, 0), loc)
	p := filepath.Join(root, filepath.FromSlash(id.File(".bin")))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, raw, 0644); err != nil {
		t.Fatal(err)
	}
}

// drain collects epochs from c until it halts.
func drain(t *testing.T, c *Cursor) ([]int64, error) {
	t.Helper()
	var got []int64
	for i := 0; i < 1000; i++ {
		cp, err := c.Next()
		if err != nil {
			return got, err
		}
		got = append(got, cp.Epoch)
	}
	t.Fatal("cursor did not halt")
	return nil, nil
}

func equalEpochs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func standardArchive(t *testing.T) string {
	root := t.TempDir()
	writeArchive(t, root, time.UTC,
		day1+3600, day1+7200,
		day2+10800, day2+3600, day2+7200,
		day3+3600,
	)
	return root
}

func TestNewWindow(t *testing.T) {
	tests := []struct {
		name          string
		start, finish int64
		rate          time.Duration
		wantErr       bool
	}{
		{"ok", day1, day2, time.Second, false},
		{"single instant", day1, day1, 0, false},
		{"reversed", day2, day1, time.Second, true},
		{"zero start", 0, day1, time.Second, true},
		{"negative rate", day1, day2, -time.Second, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewWindow(tc.start, tc.finish, tc.rate)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewWindow(%d, %d, %v) err = %v", tc.start, tc.finish, tc.rate, err)
			}
		})
	}
}

func TestCursorSpansDaysInOrder(t *testing.T) {
	root := standardArchive(t)
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day1 + 3600, Finish: day3 + 3600})

	got, err := drain(t, c)
	if !errors.Is(err, ErrFinished) {
		t.Fatalf("halt err = %v, expected ErrFinished", err)
	}
	want := []int64{day1 + 3600, day1 + 7200, day2 + 3600, day2 + 7200, day2 + 10800, day3 + 3600}
	if !equalEpochs(got, want) {
		t.Errorf("epochs = %v, expected %v", got, want)
	}
}

func TestCursorResumesOnNextDay(t *testing.T) {
	root := standardArchive(t)
	// start after every day-1 capture, before the last day-2 capture
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day1 + 10000, Finish: day2 + 8000})

	got, err := drain(t, c)
	if !errors.Is(err, ErrFinished) {
		t.Fatalf("halt err = %v, expected ErrFinished", err)
	}
	want := []int64{day2 + 3600, day2 + 7200}
	if !equalEpochs(got, want) {
		t.Errorf("epochs = %v, expected %v", got, want)
	}
}

func TestCursorFinishBeforeFirstCapture(t *testing.T) {
	root := standardArchive(t)
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day1 + 60, Finish: day1 + 120})

	got, err := drain(t, c)
	if !errors.Is(err, ErrFinished) {
		t.Fatalf("halt err = %v, expected ErrFinished", err)
	}
	if len(got) != 0 {
		t.Errorf("yielded %v, expected nothing", got)
	}
}

func TestCursorMissingDayIsError(t *testing.T) {
	root := standardArchive(t)
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day1, Finish: day3 + 2*86400})

	got, err := drain(t, c)
	if err == nil || errors.Is(err, ErrFinished) {
		t.Fatalf("halt err = %v, expected listing error", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, expected to wrap os.ErrNotExist", err)
	}
	if len(got) != 6 {
		t.Errorf("yielded %d captures before halting, expected 6", len(got))
	}
	// halted cursors stay halted
	if _, again := c.Next(); again != err {
		t.Errorf("second Next err = %v, expected %v", again, err)
	}
}

func TestCursorIgnoresNonCaptures(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, time.UTC, day1+100, day1+200)
	dir := filepath.Join(root, "2016", "03", "07")
	for _, name := range []string{"README", "1457308850_partial.tmp", "notanepoch_2016.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "1457308860_dir.bin"), 0755); err != nil {
		t.Fatal(err)
	}

	c := NewCursor(root, ".bin", time.UTC, Window{Start: day1, Finish: day1 + 1000})
	got, err := drain(t, c)
	if !errors.Is(err, ErrFinished) {
		t.Fatalf("halt err = %v", err)
	}
	if !equalEpochs(got, []int64{day1 + 100, day1 + 200}) {
		t.Errorf("epochs = %v", got)
	}
}

func TestCursorFollowsLocalCalendar(t *testing.T) {
	loc := time.FixedZone("AEST", 10*3600)
	root := t.TempDir()
	// 23:00 local on the 7th and 01:00 local on the 8th
	before, after := day1+13*3600, day1+15*3600
	writeArchive(t, root, loc, before, after)

	c := NewCursor(root, ".bin", loc, Window{Start: day1 + 12*3600, Finish: day1 + 16*3600})
	first, err := c.Next()
	if err != nil {
		t.Fatal(err)
	}
	if first.Epoch != before || first.Filepath != "2016/03/07" {
		t.Errorf("first = %+v", first)
	}
	second, err := c.Next()
	if err != nil {
		t.Fatal(err)
	}
	if second.Epoch != after || second.Filepath != "2016/03/08" {
		t.Errorf("second = %+v", second)
	}
	if _, err := c.Next(); !errors.Is(err, ErrFinished) {
		t.Errorf("third Next err = %v, expected ErrFinished", err)
	}
}

type recorder struct {
	msgs []feed.Message
	on   func(feed.Message)
}

func (r *recorder) Handle(b []byte, _ string) {
	var m feed.Message
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	r.msgs = append(r.msgs, m)
	if r.on != nil {
		r.on(m)
	}
}

func TestEngineReplaysWindow(t *testing.T) {
	root := standardArchive(t)
	// a corrupt capture in the middle of day 2 is skipped
	writeRaw(t, root, time.UTC, day2+5400, feedtest.Truncated)

	b := bus.NewMemory()
	rec := &recorder{}
	if _, err := b.Subscribe("feedplayer.test", rec); err != nil {
		t.Fatal(err)
	}
	m := metrics.NewCollector("feedplayer")
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day1 + 5000, Finish: day2 + 9000})
	e := NewEngine(c, b, "feedplayer.test", "feedplayer", "test", time.Millisecond, m)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int64{day1 + 7200, day2 + 3600, day2 + 7200}
	if len(rec.msgs) != len(want) {
		t.Fatalf("published %d messages, expected %d", len(rec.msgs), len(want))
	}
	for i, msg := range rec.msgs {
		epoch, err := capture.ParseEpoch(msg.Filename)
		if err != nil {
			t.Fatal(err)
		}
		if epoch != want[i] {
			t.Errorf("message %d filename %s, expected epoch %d", i, msg.Filename, want[i])
		}
		if msg.Source != feed.SourceReplay || msg.MsgType != feed.MsgTypePosition {
			t.Errorf("message %d tagged %s/%s", i, msg.MsgType, msg.Source)
		}
		if msg.Timestamp == nil || *msg.Timestamp != want[i] {
			t.Errorf("message %d timestamp = %v", i, msg.Timestamp)
		}
		if len(msg.Entities) != 2 {
			t.Errorf("message %d has %d entities", i, len(msg.Entities))
		}
	}
	if rec.msgs[0].Filepath != "2016/03/07" || rec.msgs[1].Filepath != "2016/03/08" {
		t.Errorf("filepaths = %s, %s", rec.msgs[0].Filepath, rec.msgs[1].Filepath)
	}

	if s := e.Stats(); s.Published != 3 || s.Skipped != 1 {
		t.Errorf("Stats = %+v", s)
	}
	if v := testutil.ToFloat64(m.ReplayHalts.WithLabelValues(HaltFinished)); v != 1 {
		t.Errorf("finished halts = %v", v)
	}
	if v := testutil.ToFloat64(m.ReplaySkipped); v != 1 {
		t.Errorf("skipped = %v", v)
	}
}

type failingBus struct{ *bus.Memory }

func (failingBus) Publish(string, any) error { return errors.New("nats: connection closed") }

func TestEngineCountsOnlySuccessfulPublishes(t *testing.T) {
	root := standardArchive(t)
	m := metrics.NewCollector("feedplayer")
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day2, Finish: day2 + 86399})
	e := NewEngine(c, failingBus{bus.NewMemory()}, "feedplayer.test", "feedplayer", "test", 0, m)

	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s := e.Stats(); s.Published != 0 || s.Skipped != 3 {
		t.Errorf("Stats = %+v, expected 0 published and 3 skipped", s)
	}
	if v := testutil.ToFloat64(m.ReplayPublished); v != 0 {
		t.Errorf("published metric = %v", v)
	}
	if v := testutil.ToFloat64(m.ReplaySkipped); v != 3 {
		t.Errorf("skipped metric = %v", v)
	}
}

func TestEngineWaitsBetweenPublishes(t *testing.T) {
	root := standardArchive(t)
	b := bus.NewMemory()
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day2, Finish: day2 + 86399})
	rate := 20 * time.Millisecond
	e := NewEngine(c, b, "feedplayer.test", "feedplayer", "test", rate, nil)

	start := time.Now()
	if err := e.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 3*rate {
		t.Errorf("three publishes took %v, expected at least %v", elapsed, 3*rate)
	}
}

func TestEngineHaltsOnMissingDay(t *testing.T) {
	root := standardArchive(t)
	b := bus.NewMemory()
	m := metrics.NewCollector("feedplayer")
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day3, Finish: day3 + 2*86400})
	e := NewEngine(c, b, "feedplayer.test", "feedplayer", "test", 0, m)

	err := e.Run(context.Background())
	if err == nil || errors.Is(err, ErrFinished) {
		t.Fatalf("Run err = %v, expected listing error", err)
	}
	if e.Stats().Published != 1 {
		t.Errorf("published %d, expected 1", e.Stats().Published)
	}
	if v := testutil.ToFloat64(m.ReplayHalts.WithLabelValues(HaltError)); v != 1 {
		t.Errorf("error halts = %v", v)
	}
}

func TestEngineCancel(t *testing.T) {
	root := standardArchive(t)
	b := bus.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{on: func(feed.Message) { cancel() }}
	if _, err := b.Subscribe(">", rec); err != nil {
		t.Fatal(err)
	}
	c := NewCursor(root, ".bin", time.UTC, Window{Start: day1, Finish: day3 + 86399})
	e := NewEngine(c, b, "feedplayer.test", "feedplayer", "test", time.Hour, nil)

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run err = %v, expected context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if len(rec.msgs) != 1 {
		t.Errorf("published %d messages after cancel, expected 1", len(rec.msgs))
	}
}
