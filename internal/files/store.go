// Package files manages the exam file areas on disk and keeps the truth
// store's upload records in sync with them.
package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

// recorder is the slice of the truth store the file store needs.
type recorder interface {
	UpsertFileRecord(ctx context.Context, subdirectory, filename string) error
	ListFileRecords(ctx context.Context) ([]types.FileRecord, error)
	DeleteFileRecord(ctx context.Context, subdirectory, filename string) error
}

// Store implements interfaces.FileStore over a root directory holding the
// uploads, questions and results areas.
type Store struct {
	root string
	db   recorder
	log  zerolog.Logger
}

// NewStore creates the managed subdirectories under root if needed.
func NewStore(root string, db recorder, log zerolog.Logger) (*Store, error) {
	if root == "" {
		return nil, errors.New("storage root cannot be empty")
	}
	for _, sub := range []string{types.DirUploads, types.DirQuestions, types.DirResults} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return &Store{
		root: root,
		db:   db,
		log:  log.With().Str("component", "files").Logger(),
	}, nil
}

func (s *Store) path(subdirectory, filename string) (string, error) {
	if !types.IsValidSubdirectory(subdirectory) {
		return "", fmt.Errorf("unknown subdirectory %q", subdirectory)
	}
	if !types.IsValidFilename(filename) {
		return "", types.ErrInvalidFilename
	}
	return filepath.Join(s.root, subdirectory, filename), nil
}

// List merges the truth store's records with what is actually on disk. A
// file present in both appears once with the database source; files found
// only on disk are tagged filesystem so an operator can spot records that
// bypassed the upload paths.
func (s *Store) List(ctx context.Context) (map[string][]types.FileRecord, error) {
	records, err := s.db.ListFileRecords(ctx)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]map[string]types.FileRecord)
	for _, sub := range []string{types.DirUploads, types.DirQuestions, types.DirResults} {
		merged[sub] = make(map[string]types.FileRecord)
	}
	for _, rec := range records {
		if _, ok := merged[rec.Subdirectory]; !ok {
			continue
		}
		merged[rec.Subdirectory][rec.Filename] = rec
	}

	for sub, byName := range merged {
		entries, err := os.ReadDir(filepath.Join(s.root, sub))
		if err != nil {
			return nil, fmt.Errorf("read %s directory: %w", sub, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			name := entry.Name()
			if _, ok := byName[name]; ok {
				continue
			}
			rec := types.FileRecord{
				Filename:     name,
				Subdirectory: sub,
				Source:       types.SourceFilesystem,
			}
			if info, err := entry.Info(); err == nil {
				rec.UploadedAt = info.ModTime()
			}
			byName[name] = rec
		}
	}

	result := make(map[string][]types.FileRecord, len(merged))
	for sub, byName := range merged {
		list := make([]types.FileRecord, 0, len(byName))
		for _, rec := range byName {
			list = append(list, rec)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Filename < list[j].Filename })
		result[sub] = list
	}
	return result, nil
}

// Save writes contents into the subdirectory and records the upload. The
// disk write happens first so a crash between the two steps leaves a
// filesystem-tagged file rather than a dangling record.
func (s *Store) Save(ctx context.Context, subdirectory, filename string, contents []byte) error {
	path, err := s.path(subdirectory, filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, contents, 0o644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	if err := s.db.UpsertFileRecord(ctx, subdirectory, filename); err != nil {
		return fmt.Errorf("record upload: %w", err)
	}
	s.log.Info().Str("subdirectory", subdirectory).Str("filename", filename).
		Int("bytes", len(contents)).Msg("file saved")
	return nil
}

// Read returns the contents of one stored file.
func (s *Store) Read(ctx context.Context, subdirectory, filename string) ([]byte, error) {
	path, err := s.path(subdirectory, filename)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, interfaces.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return contents, nil
}

// Delete removes a file from disk and drops its record. A record whose file
// already vanished is still dropped.
func (s *Store) Delete(ctx context.Context, subdirectory, filename string) error {
	path, err := s.path(subdirectory, filename)
	if err != nil {
		return err
	}

	rmErr := os.Remove(path)
	if rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", rmErr)
	}
	if err := s.db.DeleteFileRecord(ctx, subdirectory, filename); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if errors.Is(rmErr, os.ErrNotExist) {
		return interfaces.ErrFileNotFound
	}
	s.log.Info().Str("subdirectory", subdirectory).Str("filename", filename).Msg("file deleted")
	return nil
}
