package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDefaultProjectsIsIdempotent(t *testing.T) {
	merged := MergeDefaultProjects(nil)
	assert.Len(t, merged, len(SeedProjects()))

	// re-seeding must not duplicate
	again := MergeDefaultProjects(merged)
	assert.Equal(t, merged, again)

	for _, p := range merged {
		assert.True(t, IsDefaultProject(p))
	}
}

func TestMergeDefaultProjectsKeepsUserEntries(t *testing.T) {
	user := Project{ID: "p_custom", Name: "Side Gig", Client: "Friend"}
	merged := MergeDefaultProjects([]Project{user})

	assert.Len(t, merged, len(SeedProjects())+1)
	assert.Equal(t, user, merged[0])
	assert.False(t, IsDefaultProject(user))
}

func TestMergeDefaultCategories(t *testing.T) {
	merged := MergeDefaultCategories(nil)
	assert.Len(t, merged, len(SeedCategories()))
	assert.Equal(t, merged, MergeDefaultCategories(merged))
}
