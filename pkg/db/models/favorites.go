package models

import "time"

// UserBrand records a user liking a brand.
type UserBrand struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:UserBrand_userId_brandId_key"`
	BrandID   int64     `gorm:"column:brand_id;not null;index:user_brands_brand_id_idx;uniqueIndex:UserBrand_userId_brandId_key"`
}

func (UserBrand) TableName() string { return "user_brands" }

// UserShop records a user liking a shop.
type UserShop struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:UserShop_userId_shopId_key"`
	ShopID    int64     `gorm:"column:shop_id;not null;index:user_shops_shop_id_idx;uniqueIndex:UserShop_userId_shopId_key"`
}

func (UserShop) TableName() string { return "user_shops" }

type Review struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	Rating    int64     `gorm:"column:rating;not null"`
	Comment   *string   `gorm:"column:comment"`
	UserID    int64     `gorm:"column:user_id;not null;uniqueIndex:Review_userId_shopId_key"`
	ShopID    int64     `gorm:"column:shop_id;not null;index:reviews_shop_id_idx;uniqueIndex:Review_userId_shopId_key"`
}

func (Review) TableName() string { return "reviews" }
