package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// File keeps one directory per namespace and one file per key. Processes
// sharing the directory see each other's writes through fsnotify.
type File struct {
	root string
}

type fileEnvelope struct {
	Origin string `json:"origin,omitempty"`
	Value  []byte `json:"value"`
}

func NewFile(root string) (*File, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &File{root: root}, nil
}

func (f *File) dir(ns string) string {
	return filepath.Join(f.root, filepath.Base(ns))
}

func (f *File) path(ns, key string) string {
	return filepath.Join(f.dir(ns), filepath.Base(key))
}

func (f *File) read(path string) (fileEnvelope, error) {
	var env fileEnvelope
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return env, ErrNotFound
	}
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode %s: %w", path, err)
	}
	return env, nil
}

func (f *File) Get(_ context.Context, ns, key string) ([]byte, error) {
	env, err := f.read(f.path(ns, key))
	if err != nil {
		return nil, err
	}
	return env.Value, nil
}

func (f *File) Set(ctx context.Context, ns, key string, value []byte) error {
	if err := os.MkdirAll(f.dir(ns), 0o700); err != nil {
		return err
	}
	raw, err := json.Marshal(fileEnvelope{Origin: OriginFrom(ctx), Value: value})
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir(ns), "."+key+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path(ns, key))
}

func (f *File) Delete(_ context.Context, ns, key string) error {
	err := os.Remove(f.path(ns, key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (f *File) Watch(ctx context.Context, ns string) (*Watcher, error) {
	dir := f.dir(ns)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	origin := OriginFrom(ctx)
	w := newWatcher(watchBuffer)
	w.stop = func() { fw.Close() }

	go func() {
		defer close(w.events)
		for {
			select {
			case <-w.done:
				return
			case fe, ok := <-fw.Events:
				if !ok {
					return
				}
				key := filepath.Base(fe.Name)
				if strings.HasPrefix(key, ".") {
					continue
				}
				out := Event{Namespace: ns, Key: key}
				switch {
				case fe.Has(fsnotify.Remove):
				case fe.Has(fsnotify.Create), fe.Has(fsnotify.Write):
					env, err := f.read(fe.Name)
					if err != nil {
						continue
					}
					if origin != "" && env.Origin == origin {
						continue
					}
					out.NewValue = env.Value
					out.Origin = env.Origin
				default:
					continue
				}
				select {
				case w.events <- out:
				case <-w.done:
					return
				}
			case <-fw.Errors:
			}
		}
	}()
	w.closeOnDone(ctx)
	return w, nil
}

func (f *File) Close() error {
	return nil
}
