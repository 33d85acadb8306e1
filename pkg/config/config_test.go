package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name"`
	Limit int    `yaml:"limit"`
}

func (s *sample) Validate() error {
	if s.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	s := sample{Limit: 8}
	require.NoError(t, Load(writeYAML(t, "name: ${SAMPLE_NAME}\n"), &s))
	assert.Equal(t, sample{Name: "from-env", Limit: 8}, s)
}

func TestLoad_Validates(t *testing.T) {
	assert.Error(t, Load(writeYAML(t, "limit: -1\n"), &sample{}))
}

func TestLoad_MissingFile(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "none.yaml"), &sample{}))
}

func TestLoadOptional(t *testing.T) {
	s := sample{Limit: 3}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "none.yaml"), &s)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 3, s.Limit, "defaults changed")

	s = sample{Limit: -5}
	_, err = LoadOptional(filepath.Join(t.TempDir(), "none.yaml"), &s)
	assert.Error(t, err, "defaults should still be validated")

	found, err = LoadOptional(writeYAML(t, "name: x\n"), &s)
	assert.True(t, found)
	assert.Error(t, err)
}
