package models

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Sequence hands out per tenant display numbers.
type Sequence struct {
	TenantID uint       `gorm:"primaryKey;autoIncrement:false"`
	Kind     EntityType `gorm:"primaryKey;size:16"`
	Value    int64      `gorm:"not null;default:0"`
}

// NextDisplayID increments the tenant's counter for kind and formats it.
// It must run inside the transaction that inserts the record.
func NextDisplayID(tx *gorm.DB, tenantID uint, kind EntityType) (string, error) {
	seq := Sequence{TenantID: tenantID, Kind: kind}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return "", fmt.Errorf("init sequence: %w", err)
	}
	res := tx.Model(&Sequence{}).
		Where("tenant_id = ? AND kind = ?", tenantID, kind).
		Update("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return "", fmt.Errorf("bump sequence: %w", res.Error)
	}
	if err := tx.Where("tenant_id = ? AND kind = ?", tenantID, kind).Take(&seq).Error; err != nil {
		return "", fmt.Errorf("read sequence: %w", err)
	}
	return FormatDisplayID(kind, seq.Value), nil
}

func FormatDisplayID(kind EntityType, n int64) string {
	return fmt.Sprintf("%s-%04d", kind.DisplayPrefix(), n)
}
