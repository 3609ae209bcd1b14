package dbctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/dbctx/dbctx/internal/objcache"
)

// entityStore enumerates and describes entities in the backing store.
// EntityDetail reports found == false when the entity no longer exists.
type entityStore interface {
	EntityNames(ctx context.Context) ([]string, error)
	EntityDetail(ctx context.Context, name string) (detail *EntityDetail, found bool, err error)
}

// indexState is one immutable-ish generation of the index. Universe holds
// normalized names in enumeration order; Entities maps each universe member
// to its detail, unloaded until first described.
type indexState struct {
	Universe  []string                 `json:"universe"`
	Entities  map[string]*EntityDetail `json:"entities"`
	LastBuilt time.Time                `json:"last_built"`
}

// persistedIndex is the on-disk shape. The object cache rides along so both
// tiers survive restarts together.
type persistedIndex struct {
	Index       indexState         `json:"index"`
	ObjectCache *objcache.Snapshot `json:"object_cache,omitempty"`
}

// schemaIndex is the lazy, persistent first tier of the metadata cache. It
// answers existence without a store round trip, serves substring searches
// over names and attributes, and loads entity details on demand.
type schemaIndex struct {
	store      entityStore
	obj        *objcache.Cache
	fs         afero.Fs
	path       string
	sampleSize int
	logger     zerolog.Logger

	mu    sync.Mutex
	state *indexState
}

func newSchemaIndex(store entityStore, obj *objcache.Cache, fs afero.Fs, path string, sampleSize int, logger zerolog.Logger) *schemaIndex {
	return &schemaIndex{
		store:      store,
		obj:        obj,
		fs:         fs,
		path:       path,
		sampleSize: sampleSize,
		logger:     logger.With().Str("component", "schemaindex").Logger(),
	}
}

// normalizeName folds an entity name to the index's canonical (lower-case,
// trimmed) form.
func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ensure makes the index available, loading the persisted file or building
// from the store on first use. Concurrent callers may build redundantly;
// the first finished result wins and the rest are discarded.
func (s *schemaIndex) ensure(ctx context.Context) error {
	s.mu.Lock()
	if s.state != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	state, fromDisk, err := s.loadOrBuild(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		s.state = state
		if !fromDisk {
			s.persistLocked()
		}
	}
	return nil
}

// loadOrBuild tries the persisted file first and falls back to a full build.
// A corrupt or unreadable file is logged and rebuilt, never fatal.
func (s *schemaIndex) loadOrBuild(ctx context.Context) (*indexState, bool, error) {
	if state, ok := s.loadPersisted(); ok {
		return state, true, nil
	}
	state, err := s.build(ctx)
	if err != nil {
		return nil, false, err
	}
	return state, false, nil
}

func (s *schemaIndex) loadPersisted() (*indexState, bool) {
	if s.path == "" {
		return nil, false
	}
	raw, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		return nil, false
	}
	var p persistedIndex
	if err := json.Unmarshal(raw, &p); err != nil || p.Index.Entities == nil {
		s.logger.Warn().Str("path", s.path).
			Err(errors.Join(ErrCacheCorrupt, err)).
			Msg("discarding persisted schema cache, rebuilding")
		return nil, false
	}
	for _, name := range p.Index.Universe {
		if p.Index.Entities[name] == nil {
			p.Index.Entities[name] = &EntityDetail{Name: name}
		}
	}
	if p.ObjectCache != nil {
		s.obj.Restore(p.ObjectCache)
	}
	s.logger.Info().Int("entities", len(p.Index.Universe)).
		Time("last_built", p.Index.LastBuilt).
		Msg("loaded persisted schema cache")
	return &p.Index, true
}

// build enumerates the store's entity universe into a fresh state with every
// entity unloaded.
func (s *schemaIndex) build(ctx context.Context) (*indexState, error) {
	names, err := s.store.EntityNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate entities: %w", err)
	}
	state := &indexState{
		Universe:  make([]string, 0, len(names)),
		Entities:  make(map[string]*EntityDetail, len(names)),
		LastBuilt: time.Now().UTC(),
	}
	for _, name := range names {
		n := normalizeName(name)
		if _, dup := state.Entities[n]; dup {
			continue
		}
		state.Universe = append(state.Universe, n)
		state.Entities[n] = &EntityDetail{Name: n}
	}
	s.logger.Info().Int("entities", len(state.Universe)).Msg("built schema index")
	return state, nil
}

// rebuild discards the in-memory index and re-enumerates the store. On
// failure the previous index stays in place.
func (s *schemaIndex) rebuild(ctx context.Context) error {
	state, err := s.build(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.persistLocked()
	return nil
}

// persistLocked writes the index and object cache to disk. Persistence is an
// accelerator, not a system of record: failures are logged and ignored.
// Caller holds mu.
func (s *schemaIndex) persistLocked() {
	if s.path == "" || s.state == nil {
		return
	}
	p := persistedIndex{Index: *s.state, ObjectCache: s.obj.Snapshot()}
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		s.logger.Warn().Err(err).Msg("marshal schema cache")
		return
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("persist schema cache")
			return
		}
	}
	if err := afero.WriteFile(s.fs, s.path, raw, 0o644); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("persist schema cache")
	}
}

// Detail returns the full description of one entity, describing it via the
// store on first access. Entities outside the universe return ErrNotFound
// without touching the store. An entity that disappeared between enumeration
// and description is evicted and reported as ErrNotFound.
func (s *schemaIndex) Detail(ctx context.Context, name string) (*EntityDetail, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	n := normalizeName(name)

	s.mu.Lock()
	detail, known := s.state.Entities[n]
	if known && detail.Loaded {
		s.mu.Unlock()
		return detail, nil
	}
	s.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, n)
	}

	loaded, found, err := s.store.EntityDetail(ctx, n)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !found {
		s.evictLocked(n)
		s.persistLocked()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, n)
	}
	loaded.Name = n
	loaded.Loaded = true
	s.state.Entities[n] = loaded
	s.persistLocked()
	return loaded, nil
}

// evictLocked drops an entity that no longer exists in the store.
// Caller holds mu.
func (s *schemaIndex) evictLocked(name string) {
	delete(s.state.Entities, name)
	for i, n := range s.state.Universe {
		if n == name {
			s.state.Universe = append(s.state.Universe[:i], s.state.Universe[i+1:]...)
			break
		}
	}
	s.logger.Debug().Str("entity", name).Msg("evicted vanished entity")
}

// SearchNames returns universe members containing term, case-insensitively,
// in enumeration order, capped at limit.
func (s *schemaIndex) SearchNames(ctx context.Context, term string, limit int) ([]string, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	t := normalizeName(term)

	s.mu.Lock()
	defer s.mu.Unlock()
	matches := make([]string, 0)
	for _, name := range s.state.Universe {
		if limit > 0 && len(matches) >= limit {
			break
		}
		if strings.Contains(name, t) {
			matches = append(matches, name)
		}
	}
	return matches, nil
}

// SearchAttributes finds entities with an attribute containing term. Loaded
// entities are scanned in full; unloaded ones are described on demand from a
// random sample bounded by the configured sample size, so results over a
// cold index are representative rather than exhaustive. Limit caps the
// number of matched entities.
func (s *schemaIndex) SearchAttributes(ctx context.Context, term string, limit int) (map[string][]Attribute, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	t := normalizeName(term)

	s.mu.Lock()
	loaded := make([]*EntityDetail, 0, len(s.state.Universe))
	unloaded := make([]string, 0)
	for _, name := range s.state.Universe {
		if d := s.state.Entities[name]; d.Loaded {
			loaded = append(loaded, d)
		} else {
			unloaded = append(unloaded, name)
		}
	}
	s.mu.Unlock()

	matches := make(map[string][]Attribute)
	for _, d := range loaded {
		if limit > 0 && len(matches) >= limit {
			return matches, nil
		}
		if attrs := matchAttributes(d, t); len(attrs) > 0 {
			matches[d.Name] = attrs
		}
	}

	rand.Shuffle(len(unloaded), func(i, j int) {
		unloaded[i], unloaded[j] = unloaded[j], unloaded[i]
	})
	if s.sampleSize > 0 && len(unloaded) > s.sampleSize {
		unloaded = unloaded[:s.sampleSize]
	}
	for _, name := range unloaded {
		if limit > 0 && len(matches) >= limit {
			break
		}
		d, err := s.Detail(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if attrs := matchAttributes(d, t); len(attrs) > 0 {
			matches[d.Name] = attrs
		}
	}
	return matches, nil
}

func matchAttributes(d *EntityDetail, term string) []Attribute {
	var attrs []Attribute
	for _, a := range d.Attributes {
		if strings.Contains(strings.ToLower(a.Name), term) {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

// Universe returns all indexed entity names, sorted.
func (s *schemaIndex) Universe(ctx context.Context) ([]string, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.state.Universe))
	copy(names, s.state.Universe)
	sort.Strings(names)
	return names, nil
}
