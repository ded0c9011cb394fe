/**
 * @description
 * Profile database model.
 * Maps to the 'profiles' table in PostgreSQL. The primary key is the auth subject.
 *
 * @dependencies
 * - gorm.io/gorm
 * - gorm.io/datatypes
 */

package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProfileRole distinguishes sellers of appraised items from buyers
type ProfileRole string

const (
	ProfileRoleCollector ProfileRole = "collector"
	ProfileRoleConsumer  ProfileRole = "consumer"
)

// Valid reports whether r is a known role
func (r ProfileRole) Valid() bool {
	return r == ProfileRoleCollector || r == ProfileRoleConsumer
}

// ContactLink is one way to reach a user, e.g. {"type": "instagram", "value": "@curio"}
type ContactLink struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Profile represents a registered user's public marketplace profile
type Profile struct {
	ID           string                          `gorm:"primaryKey;column:id" json:"id"`
	Role         ProfileRole                     `gorm:"column:role;type:varchar(16);not null" json:"role"`
	DisplayName  string                          `gorm:"column:display_name" json:"display_name"`
	Description  string                          `gorm:"column:description" json:"description"`
	ContactLinks datatypes.JSONSlice[ContactLink] `gorm:"column:contact_links" json:"contact_links"`

	// Collector only
	LookingFor string `gorm:"column:looking_for" json:"looking_for,omitempty"`
	// Consumer only
	HomeAddress     string `gorm:"column:home_address" json:"home_address,omitempty"`
	ShippingAddress string `gorm:"column:shipping_address" json:"shipping_address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName overrides the table name used by Profile to `profiles`
func (Profile) TableName() string {
	return "profiles"
}
