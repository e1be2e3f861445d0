package capture

import (
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rtmonitor/internal/metrics"
)

// Target names used in logs and metric labels.
const (
	TargetArchive   = "archive"
	TargetSecondary = "secondary"
	TargetMonitor   = "monitor"
)

// Writer persists each raw capture to up to three directory trees. The
// archive and secondary trees keep every capture under its calendar path;
// the monitor directory is flat and holds only the latest capture.
type Writer struct {
	archiveRoot   string
	secondaryRoot string
	monitorRoot   string
	suffix        string
	metrics       *metrics.Collector

	wg sync.WaitGroup

	// monitor writes are serialised; seq orders them by arrival
	monMu      sync.Mutex
	monSeq     uint64
	monWritten uint64
}

// errSuperseded marks a monitor write skipped because a later capture has
// already been written.
var errSuperseded = errors.New("superseded by a later capture")

// NewWriter returns a Writer. An empty root disables that target.
func NewWriter(archiveRoot, secondaryRoot, monitorRoot, suffix string, m *metrics.Collector) *Writer {
	for name, root := range map[string]string{
		TargetArchive:   archiveRoot,
		TargetSecondary: secondaryRoot,
		TargetMonitor:   monitorRoot,
	} {
		if root == "" {
			log.Printf("capture: %s target disabled", name)
		}
	}
	return &Writer{
		archiveRoot:   archiveRoot,
		secondaryRoot: secondaryRoot,
		monitorRoot:   monitorRoot,
		suffix:        suffix,
		metrics:       m,
	}
}

// Write starts the archive, secondary and monitor writes for raw and returns
// without waiting. Each target runs independently; failures are logged and
// counted and never affect the other targets. Monitor writes are applied in
// call order, and one overtaken by a later call is skipped. raw must not be
// modified afterwards.
func (w *Writer) Write(raw []byte, id Identity) {
	if w.archiveRoot != "" {
		w.spawn(TargetArchive, func() error { return w.writeDated(w.archiveRoot, raw, id) })
	}
	if w.secondaryRoot != "" {
		w.spawn(TargetSecondary, func() error { return w.writeDated(w.secondaryRoot, raw, id) })
	}
	if w.monitorRoot != "" {
		w.monMu.Lock()
		w.monSeq++
		seq := w.monSeq
		w.monMu.Unlock()
		w.spawn(TargetMonitor, func() error { return w.writeMonitor(raw, id, seq) })
	}
}

// Wait blocks until every write started so far has finished.
func (w *Writer) Wait() { w.wg.Wait() }

func (w *Writer) spawn(target string, fn func() error) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		err := fn()
		if errors.Is(err, errSuperseded) {
			return
		}
		if err != nil {
			log.Printf("capture: %s write error: %v", target, err)
			if w.metrics != nil {
				w.metrics.WriteErrors.WithLabelValues(target).Inc()
			}
			return
		}
		if w.metrics != nil {
			w.metrics.FilesWritten.WithLabelValues(target).Inc()
		}
	}()
}

func (w *Writer) writeDated(root string, raw []byte, id Identity) error {
	dir := filepath.Join(root, filepath.FromSlash(id.Path))
	// MkdirAll tolerates a concurrent creator
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, id.Name+w.suffix), raw, 0644)
}

func (w *Writer) writeMonitor(raw []byte, id Identity, seq uint64) error {
	w.monMu.Lock()
	defer w.monMu.Unlock()
	if seq < w.monWritten {
		return errSuperseded
	}

	entries, err := os.ReadDir(w.monitorRoot)
	if err != nil && !os.IsNotExist(err) {
		log.Printf("capture: monitor list error: %v", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), w.suffix) {
			continue
		}
		if err := os.Remove(filepath.Join(w.monitorRoot, e.Name())); err != nil && !os.IsNotExist(err) {
			log.Printf("capture: monitor delete %s: %v", e.Name(), err)
			if w.metrics != nil {
				w.metrics.WriteErrors.WithLabelValues(TargetMonitor).Inc()
			}
		}
	}
	if os.IsNotExist(err) {
		if err := os.MkdirAll(w.monitorRoot, 0755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(w.monitorRoot, id.Name+w.suffix), raw, 0644); err != nil {
		return err
	}
	w.monWritten = seq
	return nil
}
