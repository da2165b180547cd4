package domain

import "time"

// CodeLibrary is a named, reusable set of code labels. Fixed-mode column
// configs may reference one instead of listing codes inline; open-coding
// runs create one automatically to record the discovered code set.
type CodeLibrary struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	Name        string   `gorm:"type:varchar(255);index:idx_code_libraries_name" json:"name"`
	Description string   `gorm:"type:text" json:"description,omitempty"`
	Codes       []string `gorm:"serializer:json;type:jsonb" json:"codes"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (CodeLibrary) TableName() string {
	return "code_libraries"
}

// Definitions expands the bare label list to code definitions
func (l *CodeLibrary) Definitions() []CodeDefinition {
	defs := make([]CodeDefinition, 0, len(l.Codes))
	for _, c := range l.Codes {
		defs = append(defs, CodeDefinition{Code: c})
	}
	return defs
}
