package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PersonRecord holds the profile fields shared by every worker level and by citizens
type PersonRecord struct {
	Name         string    `gorm:"not null" json:"name"`
	ElectoralKey string    `gorm:"column:electoral_key" json:"electoral_key"`
	NationalID   string    `gorm:"column:national_id" json:"national_id"`
	Address      string    `json:"address"`
	Locality     string    `json:"locality"`
	PostalCode   string    `gorm:"column:postal_code" json:"postal_code"`
	Sector       string    `json:"sector"`
	Region       string    `gorm:"index" json:"region"`
	SubRegion    string    `gorm:"column:sub_region" json:"sub_region"`
	Phone        string    `json:"phone"`
	Verified     bool      `gorm:"default:false" json:"verified"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

// Leader is the top (level 1) organizer
type Leader struct {
	ID string `gorm:"primaryKey" json:"id"`
	PersonRecord
	BrigadeMembers []BrigadeMember `gorm:"foreignKey:LeaderID" json:"brigadistas"`
}

// BrigadeMember is the mid-tier (level 2) supervisor
type BrigadeMember struct {
	ID       string `gorm:"primaryKey" json:"id"`
	LeaderID string `gorm:"index;not null;column:leader_id" json:"leader_id"`
	PersonRecord
	Mobilizers []Mobilizer `gorm:"foreignKey:BrigadeMemberID" json:"movilizadores"`
}

// Mobilizer is the field agent (level 3) who registers citizens
type Mobilizer struct {
	ID              string `gorm:"primaryKey" json:"id"`
	BrigadeMemberID string `gorm:"index;not null;column:brigade_member_id" json:"brigade_member_id"`
	PersonRecord
	Citizens []Citizen `gorm:"foreignKey:MobilizerID" json:"ciudadanos"`
}

// Citizen is a registrant; counted under its mobilizer but never analysed on its own
type Citizen struct {
	ID          string `gorm:"primaryKey" json:"id"`
	MobilizerID string `gorm:"index;not null;column:mobilizer_id" json:"mobilizer_id"`
	PersonRecord
}

// BeforeCreate hooks generate UUIDs before creating records

func (l *Leader) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

func (b *BrigadeMember) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

func (m *Mobilizer) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

func (c *Citizen) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (Leader) TableName() string        { return "leaders" }
func (BrigadeMember) TableName() string { return "brigade_members" }
func (Mobilizer) TableName() string     { return "mobilizers" }
func (Citizen) TableName() string       { return "citizens" }
