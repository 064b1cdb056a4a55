package models

import "time"

// Shop is a physical location listed in the directory.
type Shop struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	Name      string    `gorm:"column:name;not null;uniqueIndex:Shop_name_key"`
	Type      string    `gorm:"column:type;not null"`
	Latitude  float64   `gorm:"column:latitude;type:double precision;not null"`
	Longitude float64   `gorm:"column:longitude;type:double precision;not null"`
}

func (Shop) TableName() string { return "shops" }

// BrandShop links a brand to a shop carrying it.
type BrandShop struct {
	ID      int64 `gorm:"column:id;primaryKey;autoIncrement"`
	BrandID int64 `gorm:"column:brand_id;not null;uniqueIndex:BrandShop_brandId_shopId_key"`
	ShopID  int64 `gorm:"column:shop_id;not null;index:brand_shops_shop_id_idx;uniqueIndex:BrandShop_brandId_shopId_key"`
}

func (BrandShop) TableName() string { return "brand_shops" }
