// Package models holds the GORM mappings of the shop directory tables.
// Unique index names match the constraint names the engine reports.
package models

// All returns one value of every model, in dependency order.
func All() []any {
	return []any{
		&Shop{},
		&Brand{},
		&User{},
		&Session{},
		&Token{},
		&UserBrand{},
		&UserShop{},
		&Review{},
		&BrandShop{},
	}
}
