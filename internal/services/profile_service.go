/**
 * @description
 * Profile Service for marketplace identities.
 * Upserts the signed-in user's collector/consumer profile and serves it back,
 * with a short Redis cache in front of reads.
 *
 * @dependencies
 * - gorm.io/gorm
 * - gorm.io/datatypes
 * - github.com/redis/go-redis/v9
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/curio-market/backend/internal/logger"
	"github.com/curio-market/backend/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileCacheTTL bounds how stale a cached profile read can be
const ProfileCacheTTL = 5 * time.Minute

// ProfileService handles profile operations
type ProfileService struct {
	db    *gorm.DB
	redis *redis.Client
}

// NewProfileService creates a new ProfileService
func NewProfileService(db *gorm.DB, rdb *redis.Client) *ProfileService {
	return &ProfileService{
		db:    db,
		redis: rdb,
	}
}

// ProfileInput is the editable part of a profile
type ProfileInput struct {
	Role         models.ProfileRole   `json:"role"`
	DisplayName  string               `json:"display_name"`
	Description  string               `json:"description"`
	ContactLinks []models.ContactLink `json:"contact_links"`

	LookingFor      string `json:"looking_for"`
	HomeAddress     string `json:"home_address"`
	ShippingAddress string `json:"shipping_address"`
}

// Validate checks the role, the role-specific fields and the contact links
func (in ProfileInput) Validate() error {
	if !in.Role.Valid() {
		return invalid("role", "must be collector or consumer")
	}
	switch in.Role {
	case models.ProfileRoleCollector:
		if strings.TrimSpace(in.HomeAddress) != "" {
			return invalid("home_address", "only consumer profiles have a home address")
		}
		if strings.TrimSpace(in.ShippingAddress) != "" {
			return invalid("shipping_address", "only consumer profiles have a shipping address")
		}
	case models.ProfileRoleConsumer:
		if strings.TrimSpace(in.LookingFor) != "" {
			return invalid("looking_for", "only collector profiles have looking_for")
		}
	}
	for i, link := range in.ContactLinks {
		if strings.TrimSpace(link.Type) == "" || strings.TrimSpace(link.Value) == "" {
			return invalid(fmt.Sprintf("contact_links[%d]", i), "type and value are required")
		}
	}
	return nil
}

func profileCacheKey(userID string) string {
	return fmt.Sprintf("profile:%s", userID)
}

// UpsertProfile creates or updates the caller's profile
func (s *ProfileService) UpsertProfile(ctx context.Context, userID string, in ProfileInput) (*models.Profile, error) {
	if userID == "" {
		return nil, invalid("user_id", "is required")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	profile := models.Profile{
		ID:           userID,
		Role:         in.Role,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Description:  strings.TrimSpace(in.Description),
		ContactLinks: datatypes.NewJSONSlice(in.ContactLinks),

		// Switching role clears the other role's fields
		LookingFor:      strings.TrimSpace(in.LookingFor),
		HomeAddress:     strings.TrimSpace(in.HomeAddress),
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
	}
	if profile.ContactLinks == nil {
		profile.ContactLinks = datatypes.NewJSONSlice([]models.ContactLink{})
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"role", "display_name", "description", "contact_links",
			"looking_for", "home_address", "shipping_address", "updated_at",
		}),
	}).Create(&profile).Error
	if err != nil {
		logger.Error("ProfileService: Failed to upsert profile %s: %v", userID, err)
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	if s.redis != nil {
		if err := s.redis.Del(ctx, profileCacheKey(userID)).Err(); err != nil {
			logger.Error("ProfileService: Failed to invalidate cache: %v", err)
		}
	}

	return s.GetProfile(ctx, userID)
}

// GetProfile returns a profile or ErrNotFound
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	key := profileCacheKey(userID)
	cached, err := getFromCache[models.Profile](ctx, s.redis, key)
	if err != nil {
		logger.Error("ProfileService: Cache error: %v", err)
	}
	if cached != nil {
		return cached, nil
	}

	var profile models.Profile
	err = s.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := setInCache(ctx, s.redis, key, &profile, ProfileCacheTTL); err != nil {
		logger.Error("ProfileService: Failed to cache profile: %v", err)
	}
	return &profile, nil
}

// RequireRole returns the caller's profile when it has the given role.
// A missing profile or a different role is ErrForbidden.
func (s *ProfileService) RequireRole(ctx context.Context, userID string, role models.ProfileRole) (*models.Profile, error) {
	profile, err := s.GetProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: a %s profile is required", ErrForbidden, role)
	}
	if err != nil {
		return nil, err
	}
	if profile.Role != role {
		return nil, fmt.Errorf("%w: only %s profiles may do this", ErrForbidden, role)
	}
	return profile, nil
}

// GetProfiles returns the profiles for the given ids, keyed by id
func (s *ProfileService) GetProfiles(ctx context.Context, userIDs []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var profiles []models.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}
