package repository

import (
	"marking_backend/internal/model"

	"gorm.io/gorm"
)

type AllocationRepository struct {
	DB *gorm.DB
}

func NewAllocationRepository(db *gorm.DB) *AllocationRepository {
	return &AllocationRepository{DB: db}
}

// ListMarkerIDs 按分配顺序返回评分人
func (r *AllocationRepository) ListMarkerIDs(assignmentID, userID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.Model(&model.AllocatedMarker{}).
		Where("assignment_id = ? AND user_id = ?", assignmentID, userID).
		Order("sequence asc, id asc").
		Pluck("marker_id", &ids).Error
	return ids, err
}

// IsAllocated 评分人当前是否分配给该学生
func (r *AllocationRepository) IsAllocated(assignmentID, userID, markerID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.AllocatedMarker{}).
		Where("assignment_id = ? AND user_id = ? AND marker_id = ?", assignmentID, userID, markerID).
		Count(&count).Error
	return count > 0, err
}

// ReplaceMarkers 用 markerIDs 覆盖分配关系，返回是否有变化。
// markerIDs 需已去重。
func (r *AllocationRepository) ReplaceMarkers(assignmentID, userID uint, markerIDs []uint) (bool, error) {
	changed := false
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var existing []model.AllocatedMarker
		if err := tx.Where("assignment_id = ? AND user_id = ?", assignmentID, userID).Find(&existing).Error; err != nil {
			return err
		}
		existingMap := make(map[uint]*model.AllocatedMarker, len(existing))
		for i := range existing {
			existingMap[existing[i].MarkerID] = &existing[i]
		}

		keep := make(map[uint]bool, len(markerIDs))
		for _, id := range markerIDs {
			keep[id] = true
		}

		// 移除的评分人只删分配关系，评分记录保留
		var removed []uint
		for id := range existingMap {
			if !keep[id] {
				removed = append(removed, id)
			}
		}
		if len(removed) > 0 {
			if err := tx.Where("assignment_id = ? AND user_id = ? AND marker_id IN ?", assignmentID, userID, removed).
				Delete(&model.AllocatedMarker{}).Error; err != nil {
				return err
			}
			changed = true
		}

		for seq, id := range markerIDs {
			if row, ok := existingMap[id]; ok {
				if row.Sequence != seq {
					if err := tx.Model(row).Update("sequence", seq).Error; err != nil {
						return err
					}
					changed = true
				}
				continue
			}
			row := &model.AllocatedMarker{
				AssignmentID: assignmentID,
				UserID:       userID,
				MarkerID:     id,
				Sequence:     seq,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
			changed = true
		}
		return nil
	})
	return changed, err
}
