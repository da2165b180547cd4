package domain

import "time"

// ClusterTestRun is one ad-hoc discovery comparison over a single column.
// Immutable once produced; independent of any AnalysisTask. The large
// classified-data overview lives in the result cache, not here.
type ClusterTestRun struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	FileID     string     `gorm:"type:varchar(64);index:idx_cluster_tests_file" json:"file_id"`
	FileName   string     `gorm:"type:varchar(500)" json:"file_name,omitempty"`
	ColumnName string     `gorm:"type:varchar(255);not null" json:"column_name"`
	Engine     EngineName `gorm:"type:varchar(20);not null" json:"engine"`

	// SampleSize is -1 (SampleSizeFullCorpus) when the engine consumed
	// the whole column
	SampleSize int `gorm:"not null" json:"sample_size"`
	MaxCodes   int `gorm:"default:10" json:"max_codes"`

	Results []CodeDefinition `gorm:"serializer:json;type:jsonb" json:"results"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName specifies the table name for GORM
func (ClusterTestRun) TableName() string {
	return "cluster_test_runs"
}

// ClassifiedData maps a code label to the texts assigned to it. It is the
// detail payload behind a run or a cached view.
type ClassifiedData map[string][]string

// Total returns the number of classified texts across all codes
func (d ClassifiedData) Total() int {
	n := 0
	for _, texts := range d {
		n += len(texts)
	}
	return n
}
