package remote

import (
	"sync"
	"time"

	"worklog/internal/model"
)

// refCache holds reference data (projects, categories) for a short
// window. Low churn, read often; each entity type is invalidated by
// writes of that same type, and the whole cache by auth transitions.
type refCache struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	projects     []model.Project
	projectsAt   time.Time
	categories   []model.Category
	categoriesAt time.Time
}

func newRefCache(ttl time.Duration) *refCache {
	return &refCache{ttl: ttl, now: time.Now}
}

func (c *refCache) getProjects() ([]model.Project, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.projects == nil || c.now().Sub(c.projectsAt) >= c.ttl {
		return nil, false
	}
	return append([]model.Project{}, c.projects...), true
}

func (c *refCache) setProjects(projects []model.Project) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = append([]model.Project{}, projects...)
	c.projectsAt = c.now()
}

func (c *refCache) invalidateProjects() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = nil
}

func (c *refCache) getCategories() ([]model.Category, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.categories == nil || c.now().Sub(c.categoriesAt) >= c.ttl {
		return nil, false
	}
	return append([]model.Category{}, c.categories...), true
}

func (c *refCache) setCategories(categories []model.Category) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = append([]model.Category{}, categories...)
	c.categoriesAt = c.now()
}

func (c *refCache) invalidateCategories() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.categories = nil
}

func (c *refCache) invalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = nil
	c.categories = nil
}
