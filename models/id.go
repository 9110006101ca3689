package models

import "sync"

// ViewerIDGenerator attributes small sequential ids to the viewers streaming
// orientations. Released ids are attributed again before new ones.
type ViewerIDGenerator struct {
	mutex     sync.Mutex
	currentID uint32
	released  map[uint32]struct{}
	active    int
}

// New returns a viewer id.
func (g *ViewerIDGenerator) New() uint32 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.active++
	for id := range g.released {
		delete(g.released, id)
		return id
	}

	g.currentID++
	return g.currentID
}

// Release marks the given id as reusable.
func (g *ViewerIDGenerator) Release(id uint32) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if id == 0 || id > g.currentID {
		return
	}
	if g.released == nil {
		g.released = make(map[uint32]struct{})
	}
	if _, ok := g.released[id]; ok {
		return
	}

	g.released[id] = struct{}{}
	g.active--
}

// Active returns the number of attributed ids that are not released.
func (g *ViewerIDGenerator) Active() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return g.active
}
