package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/qepting91/reddit-promo-scout/internal/domain"
)

// WriterService is the single goroutine that owns an NDJSON output file;
// producers only ever send on the input channel.
type WriterService struct {
	FilePath string
	Logger   logrus.FieldLogger

	written int
	err     error
}

func (w *WriterService) Start(wg *sync.WaitGroup, input <-chan domain.ClassifiedPost) {
	defer wg.Done()

	if dir := filepath.Dir(w.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			w.fail(err, input)
			return
		}
	}
	f, err := os.OpenFile(w.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		w.fail(err, input)
		return
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for post := range input {
		if w.err != nil {
			continue
		}
		if err := enc.Encode(post); err != nil {
			w.err = err
			w.Logger.WithError(err).WithField("path", w.FilePath).Error("ndjson write failed")
			continue
		}
		w.written++
	}
}

// fail records err and drains input so producers never block.
func (w *WriterService) fail(err error, input <-chan domain.ClassifiedPost) {
	w.err = err
	w.Logger.WithError(err).WithField("path", w.FilePath).Error("cannot open ndjson output")
	for range input {
	}
}

// Written and Err are valid once the WaitGroup passed to Start is done.
func (w *WriterService) Written() int { return w.written }

func (w *WriterService) Err() error { return w.err }
