package entity

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/safezone/internal/config"
	"github.com/oshokin/safezone/internal/domain/tracking"
	pb "github.com/oshokin/safezone/internal/pb/v1"
)

// FileRepository persists all entities to a single JSON file on disk.
// The file is read once and rewritten atomically on every Save.
type FileRepository struct {
	// path is the filesystem location of the JSON state file.
	path string
	// mu protects entities and concurrent access to the state file.
	mu sync.Mutex
	// entities is the cached file contents; nil until first access.
	entities map[string]*tracking.Entity
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load returns the entity from the state file.
func (r *FileRepository) Load(_ context.Context, id string) (*tracking.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}

	e, ok := r.entities[id]
	if !ok {
		return nil, ErrNotFound
	}

	return e.Clone(), nil
}

// Save writes the entity and rewrites the state file.
// The cache only changes when the write succeeds.
func (r *FileRepository) Save(_ context.Context, e *tracking.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(); err != nil {
		return err
	}

	next := make(map[string]*tracking.Entity, len(r.entities)+1)
	for id, stored := range r.entities {
		next[id] = stored
	}

	next[e.ID] = e.Clone()

	if err := r.write(next); err != nil {
		return err
	}

	r.entities = next

	return nil
}

// List returns every entity in the state file ordered by id.
func (r *FileRepository) List(_ context.Context) ([]*tracking.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}

	result := make([]*tracking.Entity, 0, len(r.entities))
	for _, e := range r.entities {
		result = append(result, e.Clone())
	}

	sortByID(result)

	return result, nil
}

// ensureLoaded reads the state file into the cache once. A missing file is an empty store.
func (r *FileRepository) ensureLoaded() error {
	if r.entities != nil {
		return nil
	}

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.entities = make(map[string]*tracking.Entity)

			return nil
		}

		return fmt.Errorf("read state file: %w", err)
	}

	document, err := pb.UnmarshalJSON(contents)
	if err != nil {
		return fmt.Errorf("decode state file: %w", err)
	}

	entities := make(map[string]*tracking.Entity)

	for _, v := range pb.GetList(document, pb.KeyEntities) {
		e, err := pb.DecodeEntity(v.GetStructValue())
		if err != nil {
			return fmt.Errorf("decode state file: %w", err)
		}

		entities[e.ID] = e
	}

	r.entities = entities

	return nil
}

// write replaces the state file with the given entities via a temporary file and rename.
func (r *FileRepository) write(entities map[string]*tracking.Entity) error {
	ordered := make([]*tracking.Entity, 0, len(entities))
	for _, e := range entities {
		ordered = append(ordered, e)
	}

	sortByID(ordered)

	values := make([]*structpb.Value, 0, len(ordered))

	for _, e := range ordered {
		s, err := pb.EncodeEntity(e)
		if err != nil {
			return err
		}

		values = append(values, structpb.NewStructValue(s))
	}

	document := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			pb.KeyEntities: structpb.NewListValue(&structpb.ListValue{Values: values}),
		},
	}

	data, err := pb.MarshalJSON(document)
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}

	return nil
}
