package main

import (
	"context"
	"fmt"
	"hash/crc32"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/chunkcanvas/chunkcanvas-mcp/chunker"
	"github.com/fsnotify/fsnotify"
)

type docSession interface {
	SetDocuments(docs []chunker.SourceDocument)
	PutDocument(doc chunker.SourceDocument)
	RemoveDocument(filename string)
	Rechunk() error
}

type FileReader interface {
	CanRead(path string) bool
	ReadText(path string) (string, error)
}

// DocRegistry keeps the session's document list in sync with a directory on
// disk. Files are fed in sorted path order so the aggregation order is
// stable across scans; crc32 checksums keep unchanged files from triggering
// re-chunks.
type DocRegistry struct {
	log              *slog.Logger
	root             string
	session          docSession
	readers          []FileReader
	mergeEventsDelay time.Duration

	crcs map[string]uint32
}

func NewDocRegistry(log *slog.Logger, root string, s docSession, mergeEventsDelay time.Duration, readers ...FileReader) *DocRegistry {
	return &DocRegistry{
		log:              log,
		root:             root,
		session:          s,
		readers:          readers,
		mergeEventsDelay: mergeEventsDelay,
		crcs:             make(map[string]uint32),
	}
}

// Sync scans the document root and replaces the session's document list,
// re-chunking once at the end.
func (dr *DocRegistry) Sync(ctx context.Context) error {
	docs, err := dr.collectDocs()
	if err != nil {
		return err
	}

	dr.crcs = make(map[string]uint32, len(docs))
	for _, d := range docs {
		dr.crcs[d.Filename] = crc32.Checksum([]byte(d.RawText), crc32.IEEETable)
	}

	dr.session.SetDocuments(docs)
	return dr.session.Rechunk()
}

func (dr *DocRegistry) collectDocs() (docs []chunker.SourceDocument, err error) {
	err = filepath.Walk(dr.root, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		reader, e := dr.findReader(path)
		if e != nil {
			dr.log.Warn(fmt.Sprintf("unsupported file: %s", path))
			return nil
		}

		text, e := reader.ReadText(path)
		if e != nil {
			return e
		}

		docs = append(docs, chunker.SourceDocument{
			Filename: path,
			RawText:  text,
		})

		return nil
	})
	if err != nil {
		return
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Filename < docs[j].Filename })
	return
}

// Watch follows the document root and applies file changes to the session,
// merging event bursts before re-chunking. Re-chunks run in the background
// with latest-wins semantics so a burst of edits never queues up stale
// results.
func (dr *DocRegistry) Watch(ctx context.Context, rechunk func(context.Context)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	err = watcher.Add(dr.root)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dr.root, err)
	}

	go func() {
		defer watcher.Close()

		pending := make(map[string]fsnotify.Op)
		var timer *time.Timer
		var fire <-chan time.Time

		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}

				pending[ev.Name] |= ev.Op
				if timer == nil {
					timer = time.NewTimer(dr.mergeEventsDelay)
				} else {
					timer.Reset(dr.mergeEventsDelay)
				}
				fire = timer.C

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				dr.log.Error("watcher error", slog.String("error", err.Error()))

			case <-fire:
				changed := false
				for path, op := range pending {
					if dr.applyEvent(path, op) {
						changed = true
					}
				}
				pending = make(map[string]fsnotify.Op)
				fire = nil

				if changed {
					rechunk(ctx)
				}
			}
		}
	}()

	return nil
}

// applyEvent reports whether the session's document list actually changed.
func (dr *DocRegistry) applyEvent(path string, op fsnotify.Op) bool {
	if op.Has(fsnotify.Remove) || op.Has(fsnotify.Rename) {
		if _, ok := dr.crcs[path]; !ok {
			return false
		}

		delete(dr.crcs, path)
		dr.session.RemoveDocument(path)
		dr.log.Info("document removed", slog.String("file", path))
		return true
	}

	if !op.Has(fsnotify.Create) && !op.Has(fsnotify.Write) {
		return false
	}

	reader, err := dr.findReader(path)
	if err != nil {
		return false
	}

	text, err := reader.ReadText(path)
	if err != nil {
		dr.log.Warn("failed to read changed document",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return false
	}

	crc := crc32.Checksum([]byte(text), crc32.IEEETable)
	if prev, ok := dr.crcs[path]; ok && prev == crc {
		return false
	}

	dr.crcs[path] = crc
	dr.session.PutDocument(chunker.SourceDocument{Filename: path, RawText: text})
	dr.log.Info("document updated", slog.String("file", path))
	return true
}

func (dr *DocRegistry) findReader(file string) (FileReader, error) {
	for _, r := range dr.readers {
		if r.CanRead(file) {
			return r, nil
		}
	}

	return nil, fmt.Errorf("unable to find reader for file: %s", file)
}
