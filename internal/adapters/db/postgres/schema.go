package postgres

import "time"

// Schema models consumed by cmd/migrate's AutoMigrate run. The stores
// themselves speak raw SQL against these tables.

type sessionRow struct {
	Network           string    `gorm:"primaryKey;size:16"`
	OwnerID           string    `gorm:"primaryKey;column:owner_id;size:64"`
	OwnerRole         string    `gorm:"primaryKey;size:16"`
	PhoneNumber       string  `gorm:"size:32"`
	Credential        []byte
	VerificationToken *string `gorm:"size:128"`
	CodeRequestedAt   time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (sessionRow) TableName() string { return "sessions" }

type destinationRow struct {
	ID           string    `gorm:"primaryKey;type:uuid"`
	Network      string    `gorm:"size:16;index:idx_destinations_owner,priority:1"`
	NativeID     string    `gorm:"column:native_id;size:128"`
	NativeSecret *string   `gorm:"size:128"`
	DisplayName  string    `gorm:"size:255"`
	CountryRef   string    `gorm:"size:64"`
	OwnerID      string  `gorm:"column:owner_id;size:64;index:idx_destinations_owner,priority:2"`
	OwnerRole    string  `gorm:"size:16;index:idx_destinations_owner,priority:3"`
	CreatedAt    time.Time
}

func (destinationRow) TableName() string { return "destinations" }

type deliveryReportRow struct {
	ID         string    `gorm:"primaryKey;type:uuid"`
	Network    string    `gorm:"size:16"`
	OwnerID    string    `gorm:"column:owner_id;size:64;index"`
	OwnerRole  string    `gorm:"size:16"`
	Kind       string `gorm:"size:16"`
	StartedAt  time.Time
	FinishedAt time.Time
}

func (deliveryReportRow) TableName() string { return "delivery_reports" }

type deliveryReportResultRow struct {
	ReportID string  `gorm:"primaryKey;column:report_id;type:uuid"`
	Position int     `gorm:"primaryKey"`
	Target   string  `gorm:"size:128"`
	Status   string  `gorm:"size:32"`
	Error    *string `gorm:"size:1024"`
}

func (deliveryReportResultRow) TableName() string { return "delivery_report_results" }

// Models returns the schema set for migration.
func Models() []any {
	return []any{
		&sessionRow{},
		&destinationRow{},
		&deliveryReportRow{},
		&deliveryReportResultRow{},
	}
}
