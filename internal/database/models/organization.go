package models

type Organization struct {
	Base
	Name string `gorm:"not null" json:"name"`
	Slug string `gorm:"not null;index" json:"slug"`

	// Relationships
	Users         []User         `gorm:"foreignKey:OrganizationID" json:"-"`
	CloudAccounts []CloudAccount `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}
