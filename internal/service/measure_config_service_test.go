package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

type failingMeasureRepo struct{}

func (failingMeasureRepo) All(context.Context) ([]models.MeasureSetting, error) {
	return nil, errors.New("relation does not exist")
}

func TestMeasureConfigServiceDefaults(t *testing.T) {
	svc := NewMeasureConfigService(nil, nil, nil)
	assert.Equal(t, DefaultMeasureConfig(), svc.Values(context.Background()))
}

func TestMeasureConfigServiceLayers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "measures.toml")
	require.NoError(t, os.WriteFile(path, []byte("[measures]\nadvertencia_oral = -0.2\nelogio_coletivo = 0.4\nunknown_key = 1.0\n"), 0o600))

	overrides, err := LoadMeasureFile(path)
	require.NoError(t, err)

	store := newMemoryStore()
	store.settings = []models.MeasureSetting{{Key: "elogio_coletivo", Value: 0.35}, {Key: "school_name", Value: 0}}

	cfg := NewMeasureConfigService(store, overrides, nil).Values(context.Background())
	assert.Equal(t, -0.2, cfg.OralWarning)
	assert.Equal(t, 0.35, cfg.CommendationCollective)
	assert.Equal(t, -0.3, cfg.WrittenWarning)
}

func TestMeasureConfigServiceStorageFailureKeepsLowerLayers(t *testing.T) {
	cfg := NewMeasureConfigService(failingMeasureRepo{}, map[string]float64{"suspension_per_day": -0.6}, nil).Values(context.Background())
	assert.Equal(t, -0.6, cfg.SuspensionPerDay)
	assert.Equal(t, -0.1, cfg.OralWarning)
}

func TestLoadMeasureFile(t *testing.T) {
	overrides, err := LoadMeasureFile("")
	require.NoError(t, err)
	assert.Nil(t, overrides)

	_, err = LoadMeasureFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[measures\n"), 0o600))
	_, err = LoadMeasureFile(bad)
	assert.Error(t, err)
}
