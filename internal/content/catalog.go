// Package content loads course material and the achievement catalog into the database.
package content

import (
	"bytes"
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/pkg/logger"
)

//go:embed achievements.yaml
var achievementsYAML []byte

type catalogEntry struct {
	Code             string `yaml:"code"`
	Title            string `yaml:"title"`
	Description      string `yaml:"description"`
	Icon             string `yaml:"icon"`
	Category         string `yaml:"category"`
	Rarity           string `yaml:"rarity"`
	XPReward         int    `yaml:"xp_reward"`
	RequirementType  string `yaml:"requirement_type"`
	RequirementValue int    `yaml:"requirement_value"`
}

type catalogFile struct {
	Achievements []catalogEntry `yaml:"achievements"`
}

// CatalogStore inserts achievement catalog entries.
type CatalogStore interface {
	SeedCatalog(catalog []models.Achievement) (int, error)
}

// AchievementCatalog returns the embedded achievement catalog.
func AchievementCatalog() ([]models.Achievement, error) {
	return ParseCatalog(achievementsYAML)
}

// ParseCatalog decodes and validates a catalog document. Unknown keys are rejected.
func ParseCatalog(data []byte) ([]models.Achievement, error) {
	var file catalogFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse achievement catalog: %w", err)
	}

	seen := make(map[string]bool, len(file.Achievements))
	out := make([]models.Achievement, 0, len(file.Achievements))
	for i, e := range file.Achievements {
		if e.Code == "" || e.Title == "" {
			return nil, fmt.Errorf("achievement %d: code and title are required", i)
		}
		if seen[e.Code] {
			return nil, fmt.Errorf("achievement %s: duplicate code", e.Code)
		}
		seen[e.Code] = true

		req := models.RequirementType(e.RequirementType)
		if _, ok := (models.UserStats{}).Metric(req); !ok {
			return nil, fmt.Errorf("achievement %s: unknown requirement type %q", e.Code, e.RequirementType)
		}
		if e.RequirementValue <= 0 {
			return nil, fmt.Errorf("achievement %s: requirement value must be positive", e.Code)
		}

		rarity := e.Rarity
		if rarity == "" {
			rarity = "common"
		}
		out = append(out, models.Achievement{
			Code:             e.Code,
			Title:            e.Title,
			Description:      e.Description,
			Icon:             e.Icon,
			Category:         e.Category,
			Rarity:           rarity,
			XPReward:         e.XPReward,
			RequirementType:  req,
			RequirementValue: e.RequirementValue,
		})
	}
	return out, nil
}

// SeedAchievements inserts the embedded catalog entries that are missing from the store.
func SeedAchievements(store CatalogStore, log *logger.Logger) (int, error) {
	catalog, err := AchievementCatalog()
	if err != nil {
		return 0, err
	}
	inserted, err := store.SeedCatalog(catalog)
	if err != nil {
		return inserted, err
	}
	log.Info().
		Int("catalog_size", len(catalog)).
		Int("inserted", inserted).
		Msg("Achievement catalog seeded")
	return inserted, nil
}
