package ingestion

import (
	"context"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRemote(t *testing.T) {
	tests := []struct {
		location string
		want     bool
	}{
		{"https://github.com/apache/bookkeeper.git", true},
		{"git@github.com:apache/bookkeeper.git", true},
		{"ssh://git@example.com/repo", true},
		{"/srv/repos/bookkeeper", false},
		{"./bookkeeper", false},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRemote(tt.location))
		})
	}
}

func TestGenerateRepoHashNormalizes(t *testing.T) {
	a := generateRepoHash("https://github.com/apache/bookkeeper")
	assert.Len(t, a, 16)
	assert.Equal(t, a, generateRepoHash("https://github.com/apache/bookkeeper.git"))
	assert.Equal(t, a, generateRepoHash("https://github.com/apache/bookkeeper/"))
	assert.NotEqual(t, a, generateRepoHash("https://github.com/apache/avro"))
}

func TestResolveRepositoryLocal(t *testing.T) {
	dir := t.TempDir()
	_, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	got, err := ResolveRepository(context.Background(), dir, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = ResolveRepository(context.Background(), t.TempDir(), t.TempDir())
	assert.Error(t, err)
}

func TestCloneRepositoryReusesExistingClone(t *testing.T) {
	reposDir := t.TempDir()
	url := "https://example.invalid/project.git"
	existing := filepath.Join(reposDir, generateRepoHash(url))
	_, err := gogit.PlainInit(existing, false)
	require.NoError(t, err)

	got, err := CloneRepository(context.Background(), url, reposDir)
	require.NoError(t, err)
	assert.Equal(t, existing, got)
}
