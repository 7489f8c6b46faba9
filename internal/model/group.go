package model

// Group 团队提交时的小组，按作业划分
type Group struct {
	BaseModel
	AssignmentID uint          `gorm:"index;type:bigint unsigned;not null" json:"assignmentId"`
	Name         string        `gorm:"size:100;not null" json:"name"`
	Members      []GroupMember `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}

func (Group) TableName() string {
	return "submission_groups"
}

// GroupMember 同一作业下每名学生只能属于一个小组
type GroupMember struct {
	BaseModel
	GroupID      uint `gorm:"index;type:bigint unsigned;not null" json:"groupId"`
	AssignmentID uint `gorm:"uniqueIndex:idx_assignment_member;type:bigint unsigned;not null" json:"assignmentId"`
	UserID       uint `gorm:"uniqueIndex:idx_assignment_member;type:bigint unsigned;not null" json:"userId"`
}

func (GroupMember) TableName() string {
	return "submission_group_members"
}
