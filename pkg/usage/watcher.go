package usage

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// CatalogWatcher reloads a limits file into a Meter whenever it changes.
// A file that fails to parse is logged and the previous catalog stays.
type CatalogWatcher struct {
	path    string
	meter   *Meter
	watcher *fsnotify.Watcher
	log     *logrus.Entry

	// OnReload, if set, is called after every reload attempt.
	OnReload func(err error)
}

// NewCatalogWatcher loads path into meter and prepares to watch it.
func NewCatalogWatcher(path string, meter *Meter) (*CatalogWatcher, error) {
	w := &CatalogWatcher{
		path:  filepath.Clean(path),
		meter: meter,
		log:   logrus.WithField("component", "usage-catalog-watcher").WithField("path", path),
	}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so editors that replace the file via rename are
	// still seen.
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return nil, err
	}
	w.watcher = fw
	return w, nil
}

// Run processes file events until ctx is done.
func (w *CatalogWatcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			err := w.reload()
			if w.OnReload != nil {
				w.OnReload(err)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("Watcher error")
		}
	}
}

func (w *CatalogWatcher) reload() error {
	c, err := LoadCatalogFile(w.path)
	if err != nil {
		w.log.WithError(err).Error("Failed to load usage limits, keeping previous catalog")
		return err
	}
	w.meter.SetCatalog(c)
	w.log.Info("Usage limits loaded")
	return nil
}
