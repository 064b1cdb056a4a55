package models

import "time"

type Brand struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:Brand_name_key"`
	Type      string    `gorm:"column:type;not null"`
}

func (Brand) TableName() string { return "brands" }
