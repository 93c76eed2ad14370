package api

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/aouyang1/portfoliogallery/gallery"
	"github.com/aouyang1/portfoliogallery/store"
	"github.com/aouyang1/portfoliogallery/util"
	mapset "github.com/deckarep/golang-set/v2"
)

const defaultImportInterval = 10 * time.Minute

type importStore interface {
	GetImports() ([]store.Import, error)
	InsertImport(fileName, ref string) error
}

type importer interface {
	Import(ctx context.Context, file *gallery.UploadFile) (string, error)
}

// ImportManager uploads images dropped into a local directory. Each file is
// uploaded once; the imports table remembers what has been sent.
type ImportManager struct {
	path     string
	interval time.Duration

	db       importStore
	importer importer
}

func NewImportManager(path string, interval time.Duration, db importStore, importer importer) *ImportManager {
	if interval <= 0 {
		interval = defaultImportInterval
	}
	return &ImportManager{
		path:     path,
		interval: interval,
		db:       db,
		importer: importer,
	}
}

type fileInfo struct {
	name    string
	modTime time.Time
	path    string
	size    int64
}

func (m *ImportManager) getCurrentFiles() (mapset.Set[string], map[string]fileInfo, error) {
	dirs, err := os.ReadDir(m.path)
	if err != nil {
		return nil, nil, err
	}

	currentFiles := mapset.NewSet[string]()
	fileInfos := make(map[string]fileInfo)

	for _, dir := range dirs {
		if dir.IsDir() {
			continue
		}
		name := dir.Name()
		if !util.IsImage(name) {
			continue
		}

		info, err := dir.Info()
		if err != nil {
			continue
		}

		currentFiles.Add(name)
		fileInfos[name] = fileInfo{
			name:    name,
			modTime: info.ModTime(),
			path:    filepath.Join(m.path, name),
			size:    info.Size(),
		}
	}

	return currentFiles, fileInfos, nil
}

func (m *ImportManager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// Initial scan
	m.scanAndImport(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.scanAndImport(ctx)
		}
	}
}

// scanAndImport uploads every supported file not yet imported, oldest first.
// It returns the number of files imported.
func (m *ImportManager) scanAndImport(ctx context.Context) int {
	currentFiles, fileInfos, err := m.getCurrentFiles()
	if err != nil {
		slog.Warn("error reading import directory", "path", m.path, "error", err)
		return 0
	}

	imports, err := m.db.GetImports()
	if err != nil {
		slog.Warn("error reading imported files", "error", err)
		return 0
	}
	importedNames := mapset.NewSet[string]()
	for _, im := range imports {
		importedNames.Add(im.FileName)
	}

	newFiles := currentFiles.Difference(importedNames).ToSlice()
	if len(newFiles) == 0 {
		return 0
	}

	sort.Slice(newFiles, func(i, j int) bool {
		return fileInfos[newFiles[i]].modTime.Before(fileInfos[newFiles[j]].modTime)
	})
	slog.Info("found new files to import", "path", m.path, "count", len(newFiles))

	imported := 0
	for _, name := range newFiles {
		if ctx.Err() != nil {
			break
		}
		if err := m.importFile(ctx, fileInfos[name]); err != nil {
			slog.Warn("unable to import file", "name", name, "error", err)
			continue
		}
		imported++
	}
	return imported
}

func (m *ImportManager) importFile(ctx context.Context, info fileInfo) error {
	f, err := os.Open(info.path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", info.path, err)
	}
	defer f.Close()

	ref, err := m.importer.Import(ctx, &gallery.UploadFile{
		Name:        info.name,
		ContentType: mime.TypeByExtension(filepath.Ext(info.name)),
		Size:        info.size,
		Body:        f,
	})
	if err != nil {
		return err
	}

	if err := m.db.InsertImport(info.name, ref); err != nil {
		return fmt.Errorf("failed to record import of %s: %w", info.name, err)
	}
	slog.Info("imported file", "name", info.name, "ref", ref)
	return nil
}
