package service

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-conduct-api/internal/models"
)

// MeasureConfig maps measure categories to signed point deltas.
type MeasureConfig struct {
	OralWarning            float64 `json:"oral_warning"`
	WrittenWarning         float64 `json:"written_warning"`
	SuspensionPerDay       float64 `json:"suspension_per_day"`
	EducationalActionDay   float64 `json:"educational_action_per_day"`
	CommendationIndividual float64 `json:"commendation_individual"`
	CommendationCollective float64 `json:"commendation_collective"`
}

// DefaultMeasureConfig returns the built-in deltas used when nothing is configured.
func DefaultMeasureConfig() MeasureConfig {
	return MeasureConfig{
		OralWarning:            -0.1,
		WrittenWarning:         -0.3,
		SuspensionPerDay:       -0.5,
		EducationalActionDay:   -1.0,
		CommendationIndividual: 0.5,
		CommendationCollective: 0.3,
	}
}

// set applies one named override. Both the school's Portuguese keys and English names are accepted.
func (c *MeasureConfig) set(key string, value float64) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "advertencia_oral", "oral_warning":
		c.OralWarning = value
	case "advertencia_escrita", "written_warning":
		c.WrittenWarning = value
	case "suspensao_dia", "suspension_per_day":
		c.SuspensionPerDay = value
	case "acao_educativa_dia", "educational_action_per_day":
		c.EducationalActionDay = value
	case "elogio_individual", "commendation_individual":
		c.CommendationIndividual = value
	case "elogio_coletivo", "commendation_collective":
		c.CommendationCollective = value
	default:
		return false
	}
	return true
}

type measureFile struct {
	Measures map[string]float64 `toml:"measures"`
}

// LoadMeasureFile reads the [measures] table of a TOML override file. An empty path yields no overrides.
func LoadMeasureFile(path string) (map[string]float64, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read measures file: %w", err)
	}
	var file measureFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse measures file %s: %w", path, err)
	}
	return file.Measures, nil
}

type measureConfigRepository interface {
	All(ctx context.Context) ([]models.MeasureSetting, error)
}

// MeasureConfigService resolves measure deltas from defaults, the override file and the database, in that order.
type MeasureConfigService struct {
	repo      measureConfigRepository
	overrides map[string]float64
	logger    *zap.Logger
}

// NewMeasureConfigService constructs the config store. repo may be nil.
func NewMeasureConfigService(repo measureConfigRepository, fileOverrides map[string]float64, logger *zap.Logger) *MeasureConfigService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MeasureConfigService{repo: repo, overrides: fileOverrides, logger: logger}
}

// Values returns the effective configuration. Storage failures degrade to the lower layers.
func (s *MeasureConfigService) Values(ctx context.Context) MeasureConfig {
	cfg := DefaultMeasureConfig()
	for key, value := range s.overrides {
		if !cfg.set(key, value) {
			s.logger.Warn("ignoring unknown measure key in file", zap.String("key", key))
		}
	}
	if s.repo == nil {
		return cfg
	}

	settings, err := s.repo.All(ctx)
	if err != nil {
		s.logger.Warn("measure config unavailable, using defaults", zap.Error(err))
		return cfg
	}
	for _, setting := range settings {
		if !cfg.set(setting.Key, setting.Value) {
			s.logger.Debug("ignoring unrelated config row", zap.String("key", setting.Key))
		}
	}
	return cfg
}
