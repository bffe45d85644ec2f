package database

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"rewards-backend/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type catalogFile struct {
	Rewards []catalogEntry `yaml:"rewards"`
}

type catalogEntry struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	PointsCost   int      `yaml:"points_cost"`
	MaxCogsValue string   `yaml:"max_cogs_value"`
	Tiers        []string `yaml:"tiers"`
	Active       *bool    `yaml:"active"`
}

// ParseCatalog decodes a YAML reward catalog.
func ParseCatalog(r io.Reader) ([]models.RewardCatalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	rewards := make([]models.RewardCatalog, 0, len(file.Rewards))
	seen := make(map[string]bool, len(file.Rewards))
	for i, e := range file.Rewards {
		if e.ID == "" || e.Name == "" {
			return nil, fmt.Errorf("reward %d: id and name are required", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("reward %q: duplicate id", e.ID)
		}
		seen[e.ID] = true
		if e.PointsCost < 0 {
			return nil, fmt.Errorf("reward %q: points_cost must not be negative", e.ID)
		}

		cogs := decimal.Zero
		if e.MaxCogsValue != "" {
			v, err := decimal.NewFromString(e.MaxCogsValue)
			if err != nil {
				return nil, fmt.Errorf("reward %q: invalid max_cogs_value: %w", e.ID, err)
			}
			cogs = v
		}
		if cogs.IsNegative() {
			return nil, fmt.Errorf("reward %q: max_cogs_value must not be negative", e.ID)
		}

		for _, t := range e.Tiers {
			if models.Tier(t).Rank() < 0 {
				return nil, fmt.Errorf("reward %q: unknown tier %q", e.ID, t)
			}
		}

		active := true
		if e.Active != nil {
			active = *e.Active
		}

		rewards = append(rewards, models.RewardCatalog{
			ID:               e.ID,
			Name:             e.Name,
			Description:      e.Description,
			PointsCost:       e.PointsCost,
			MaxCogsValue:     cogs.Round(2),
			TierRestrictions: strings.Join(e.Tiers, ","),
			IsActive:         active,
		})
	}
	return rewards, nil
}

// SeedRewardCatalog upserts the rewards from a YAML catalog.
func SeedRewardCatalog(db *gorm.DB, r io.Reader) (int, error) {
	rewards, err := ParseCatalog(r)
	if err != nil {
		return 0, err
	}
	if len(rewards) == 0 {
		return 0, nil
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "points_cost", "max_cogs_value", "tier_restrictions", "is_active", "updated_at"}),
	}).Create(&rewards).Error
	if err != nil {
		return 0, err
	}
	return len(rewards), nil
}

// SeedRewardCatalogFile seeds from path. A missing file is skipped.
func SeedRewardCatalogFile(db *gorm.DB, path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		slog.Warn("reward catalog file not found, skipping seed", "path", path)
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := SeedRewardCatalog(db, f)
	if err != nil {
		return fmt.Errorf("seed %s: %w", path, err)
	}
	slog.Info("reward catalog seeded", "path", path, "rewards", n)
	return nil
}
