package models

import (
	"sort"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilesight/geometry"
	"github.com/aukilabs/tilesight/visibility"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
)

const (
	ErrTypeTilingNotFound = "tiling_not_found"
)

// Tiling is a registered tiling layout with the estimator that answers its
// visibility queries.
type Tiling struct {
	ID        string
	Layout    visibility.Layout
	CreatedAt time.Time

	estimator *visibility.Estimator
	cache     *lru.Cache
}

// NewTiling creates a tiling for the given layout. Visibility results of the
// last cacheSize distinct rotations are cached when cacheSize is positive.
func NewTiling(l visibility.Layout, o visibility.Options, cacheSize int) (*Tiling, error) {
	e, err := visibility.NewEstimator(l, o)
	if err != nil {
		return nil, err
	}

	t := &Tiling{
		ID:        uuid.NewString(),
		Layout:    l,
		CreatedAt: time.Now(),
		estimator: e,
	}

	if cacheSize > 0 {
		cache, err := lru.New(cacheSize)
		if err != nil {
			return nil, errors.New("creating visibility cache failed").
				WithTag("cache_size", cacheSize).
				Wrap(err)
		}
		t.cache = cache
	}
	return t, nil
}

func (t *Tiling) Estimator() *visibility.Estimator {
	return t.estimator
}

// Visibility returns the tile visibility of the given head rotation. The
// returned map is owned by the caller.
func (t *Tiling) Visibility(head geometry.Quaternion) (visibility.Visibility, error) {
	start := time.Now()

	if t.cache != nil {
		if v, ok := t.cache.Get(head); ok {
			instrumentCacheLookup(true)
			instrumentVisibilityQuery(start, true, nil)
			return v.(visibility.Visibility).Clone(), nil
		}
		instrumentCacheLookup(false)
	}

	v, err := t.estimator.ComputeTileVisibility(head)
	instrumentVisibilityQuery(start, false, err)
	if err != nil {
		return nil, err
	}

	if t.cache != nil {
		t.cache.Add(head, v.Clone())
	}
	return v, nil
}

// ComputeUnitTileVisibility is the cached equivalent of the estimator method
// with the same name.
func (t *Tiling) ComputeUnitTileVisibility(head geometry.UnitQuaternion) (visibility.Visibility, error) {
	return t.Visibility(head.Quaternion())
}

// TilingStore holds the registered tilings.
type TilingStore struct {
	// The options of the tiling estimators. Default options are used when
	// left empty.
	Options visibility.Options

	// The number of cached visibility results per tiling. Caching is disabled
	// when not positive.
	CacheSize int

	initOnce sync.Once
	mutex    sync.RWMutex
	tilings  map[string]*Tiling
}

func (s *TilingStore) init() {
	s.tilings = make(map[string]*Tiling)

	if s.Options == (visibility.Options{}) {
		s.Options = visibility.DefaultOptions()
	}
}

// Add registers a tiling for the given layout.
func (s *TilingStore) Add(l visibility.Layout) (*Tiling, error) {
	s.initOnce.Do(s.init)

	t, err := NewTiling(l, s.Options, s.CacheSize)
	if err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.tilings[t.ID] = t
	instrumentAddTiling()
	return t, nil
}

func (s *TilingStore) Get(id string) (*Tiling, bool) {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	t, ok := s.tilings[id]
	return t, ok
}

// Remove unregisters the tiling with the given id. It returns an
// ErrTypeTilingNotFound error when there is no such tiling.
func (s *TilingStore) Remove(id string) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.tilings[id]; !ok {
		return errors.New("tiling not found").
			WithType(ErrTypeTilingNotFound).
			WithTag("tiling_id", id)
	}

	delete(s.tilings, id)
	instrumentRemoveTiling()
	return nil
}

// List returns the registered tilings from the oldest to the newest.
func (s *TilingStore) List() []*Tiling {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tilings := make([]*Tiling, 0, len(s.tilings))
	for _, t := range s.tilings {
		tilings = append(tilings, t)
	}

	sort.Slice(tilings, func(i, j int) bool {
		if tilings[i].CreatedAt.Equal(tilings[j].CreatedAt) {
			return tilings[i].ID < tilings[j].ID
		}
		return tilings[i].CreatedAt.Before(tilings[j].CreatedAt)
	})
	return tilings
}

func (s *TilingStore) Count() int {
	s.initOnce.Do(s.init)
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.tilings)
}
