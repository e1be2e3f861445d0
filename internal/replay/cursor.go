// Package replay walks an archive tree in capture order and republishes
// each capture on the bus at a controlled rate.
package replay

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rtmonitor/internal/capture"
)

// ErrFinished is returned by Cursor.Next once the window has been exhausted.
var ErrFinished = errors.New("replay window finished")

// Window bounds a replay. Start and Finish are inclusive UTC epoch seconds;
// Rate is the minimum delay between successive publishes.
type Window struct {
	Start  int64
	Finish int64
	Rate   time.Duration
}

func NewWindow(start, finish int64, rate time.Duration) (Window, error) {
	if start <= 0 || finish <= 0 {
		return Window{}, fmt.Errorf("replay window bounds must be positive epoch seconds, got %d..%d", start, finish)
	}
	if finish < start {
		return Window{}, fmt.Errorf("replay window finish %d before start %d", finish, start)
	}
	if rate < 0 {
		return Window{}, fmt.Errorf("negative replay rate %v", rate)
	}
	return Window{Start: start, Finish: finish, Rate: rate}, nil
}

// Capture is one archived file yielded by a Cursor.
type Capture struct {
	// Path is the file's location on disk.
	Path string
	// Name is the filename without suffix, Filepath the YYYY/MM/DD subpath.
	Name     string
	Filepath string
	Epoch    int64
}

type state int

const (
	scanningDay state = iota
	streaming
	advancingDay
	halted
)

type entry struct {
	name  string
	epoch int64
}

// Cursor yields the captures of an archive tree that fall inside a window,
// in filename order, one calendar day directory at a time. Days follow the
// local calendar of loc, matching the layout written by capture.Writer.
// Once Next returns an error the cursor is halted and keeps returning it.
type Cursor struct {
	root   string
	suffix string
	loc    *time.Location
	win    Window

	state state
	day   time.Time
	files []entry
	pos   int
	err   error
}

func NewCursor(root, suffix string, loc *time.Location, win Window) *Cursor {
	return &Cursor{
		root:   root,
		suffix: suffix,
		loc:    loc,
		win:    win,
		state:  scanningDay,
		day:    midnight(time.Unix(win.Start, 0).In(loc)),
	}
}

// Next returns the next capture in the window, ErrFinished when the window
// is exhausted, or a listing error.
func (c *Cursor) Next() (Capture, error) {
	for {
		switch c.state {
		case halted:
			return Capture{}, c.err

		case scanningDay:
			if c.day.Unix() > c.win.Finish {
				c.halt(ErrFinished)
				continue
			}
			files, err := c.list()
			if err != nil {
				c.halt(err)
				continue
			}
			c.files, c.pos = files, 0
			for c.pos < len(c.files) && c.files[c.pos].epoch < c.win.Start {
				c.pos++
			}
			c.state = streaming

		case streaming:
			if c.pos >= len(c.files) {
				c.state = advancingDay
				continue
			}
			f := c.files[c.pos]
			if f.epoch > c.win.Finish {
				c.halt(ErrFinished)
				continue
			}
			c.pos++
			dayPath := capture.DayPath(c.day)
			return Capture{
				Path:     filepath.Join(c.root, filepath.FromSlash(dayPath), f.name),
				Name:     strings.TrimSuffix(f.name, c.suffix),
				Filepath: dayPath,
				Epoch:    f.epoch,
			}, nil

		case advancingDay:
			y, m, d := c.day.Date()
			c.day = time.Date(y, m, d+1, 0, 0, 0, 0, c.loc)
			c.state = scanningDay
		}
	}
}

func (c *Cursor) halt(err error) {
	c.state = halted
	c.err = err
	c.files = nil
}

// list returns the day's capture files sorted by name. Entries that are not
// captures (wrong suffix, no epoch prefix) are ignored.
func (c *Cursor) list() ([]entry, error) {
	dir := filepath.Join(c.root, filepath.FromSlash(capture.DayPath(c.day)))
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	files := make([]entry, 0, len(des))
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, c.suffix) {
			continue
		}
		epoch, err := capture.ParseEpoch(name)
		if err != nil {
			log.Printf("replay: ignoring %s: %v", filepath.Join(dir, name), err)
			continue
		}
		files = append(files, entry{name: name, epoch: epoch})
	}
	// lexical order equals capture order within one epoch width
	sort.Slice(files, func(i, j int) bool { return files[i].name < files[j].name })
	return files, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
