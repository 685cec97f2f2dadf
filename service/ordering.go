package service

import (
	"gorm.io/gorm"

	"tenantcrm/models"
)

// siblings addresses the live T rows that share one parent and keep a dense
// 0..n-1 position among themselves.
type siblings[T any] struct {
	tx       *gorm.DB
	tenantID uint
	column   string
	parentID uint
}

func (s siblings[T]) query() *gorm.DB {
	return s.tx.Model(new(T)).Scopes(models.InTenant(s.tenantID)).Where(s.column+" = ?", s.parentID)
}

func (s siblings[T]) count() (int, error) {
	var n int64
	err := s.query().Count(&n).Error
	return int(n), err
}

// positionOf reads the current position of one sibling.
func (s siblings[T]) positionOf(id uint) (int, error) {
	var pos []int
	if err := s.query().Where("id = ?", id).Pluck("position", &pos).Error; err != nil {
		return 0, err
	}
	if len(pos) == 0 {
		return 0, models.ErrNotFound
	}
	return pos[0], nil
}

// closeGap pulls every sibling after pos up by one.
func (s siblings[T]) closeGap(pos int) error {
	return s.query().Where("position > ?", pos).
		Update("position", gorm.Expr("position - 1")).Error
}

// move shifts the siblings between the row's position and to. It returns
// where the row was and the clamped position it must take.
func (s siblings[T]) move(id uint, to int) (from, pos int, err error) {
	if from, err = s.positionOf(id); err != nil {
		return 0, 0, err
	}
	n, err := s.count()
	if err != nil {
		return 0, 0, err
	}
	pos = min(max(to, 0), n-1)
	q := s.query().Where("id <> ?", id)
	switch {
	case pos > from:
		err = q.Where("position > ? AND position <= ?", from, pos).
			Update("position", gorm.Expr("position - 1")).Error
	case pos < from:
		err = q.Where("position >= ? AND position < ?", pos, from).
			Update("position", gorm.Expr("position + 1")).Error
	}
	return from, pos, err
}
