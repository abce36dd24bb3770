package registry

import (
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/weiqilab/katacore/internal/apperr"
)

// Watch watches dir for newly created .onnx or .onnx.gz files and emits
// their base names on the returned channel, so a caller can push each one
// through the rewriter and into the registry without polling. The
// returned channel is closed, and the watcher released, when stop is
// closed.
func Watch(dir string, stop <-chan struct{}) (<-chan string, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperr.Wrap(apperr.LoadError, "registry: watcher creation failed", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, apperr.Wrap(apperr.LoadError, "registry: watch directory failed", err)
	}

	out := make(chan string)
	go func() {
		defer close(out)
		defer w.Close()
		for {
			select {
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Create) {
					continue
				}
				if !isModelFile(event.Name) {
					continue
				}
				select {
				case out <- filepath.Base(event.Name):
				case <-stop:
					return
				}
			case <-w.Errors:
				continue
			case <-stop:
				return
			}
		}
	}()
	return out, nil
}

func isModelFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".onnx") || strings.HasSuffix(lower, ".onnx.gz")
}
