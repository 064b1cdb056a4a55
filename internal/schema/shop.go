package schema

import "github.com/angelmondragon/shopclient/pkg/enums"

// Entity names.
const (
	EntityShop      = "Shop"
	EntityBrand     = "Brand"
	EntityUser      = "User"
	EntitySession   = "Session"
	EntityToken     = "Token"
	EntityUserBrand = "UserBrand"
	EntityUserShop  = "UserShop"
	EntityReview    = "Review"
	EntityBrandShop = "BrandShop"
)

// Build returns the registry for the shop directory: shops, brands, users
// with their sessions and tokens, favorites and reviews.
func Build() (*Registry, error) {
	b := NewBuilder()

	b.Entity(EntityShop, "shops").
		ID().Timestamps().
		Scalar("name", String).Unique().
		Scalar("type", String).
		Scalar("latitude", Float).Validate("latitude").
		Scalar("longitude", Float).Validate("longitude").
		ManyToMany("brands", EntityBrand, EntityBrandShop, "shopId", "brandId").
		ManyToMany("likedBy", EntityUser, EntityUserShop, "shopId", "userId").
		HasMany("favorites", EntityUserShop, "shopId").
		HasMany("reviews", EntityReview, "shopId")

	b.Entity(EntityBrand, "brands").
		ID().Timestamps().
		Scalar("name", String).Unique().
		Scalar("type", String).
		ManyToMany("shops", EntityShop, EntityBrandShop, "brandId", "shopId").
		ManyToMany("likedBy", EntityUser, EntityUserBrand, "brandId", "userId").
		HasMany("favorites", EntityUserBrand, "brandId")

	b.Entity(EntityUser, "users").
		ID().Timestamps().
		Optional("name", String).
		Scalar("email", String).Unique().Validate("email").
		Optional("hashedPassword", String).
		Scalar("role", String).Default(string(enums.RoleUser)).OneOf(enums.RoleValues()...).
		Optional("avatar", String).
		Optional("bio", String).
		Optional("location", String).
		Optional("phone", String).
		Optional("preferences", JSON).
		HasMany("tokens", EntityToken, "userId").
		HasMany("sessions", EntitySession, "userId").
		HasMany("favoriteBrands", EntityUserBrand, "userId").
		HasMany("favoriteShops", EntityUserShop, "userId").
		HasMany("reviews", EntityReview, "userId").
		ManyToMany("likedBrands", EntityBrand, EntityUserBrand, "userId", "brandId").
		ManyToMany("likedShops", EntityShop, EntityUserShop, "userId", "shopId")

	b.Entity(EntitySession, "sessions").
		ID().Timestamps().
		Optional("expiresAt", DateTime).
		Scalar("handle", String).Unique().
		Optional("hashedSessionToken", String).
		Optional("antiCSRFToken", String).
		Optional("publicData", String).
		Optional("privateData", String).
		Optional("userId", Int).
		BelongsTo("user", EntityUser, "userId", SetNull)

	b.Entity(EntityToken, "tokens").
		ID().Timestamps().
		Scalar("hashedToken", String).
		Scalar("type", String).OneOf(enums.TokenTypeValues()...).
		Scalar("expiresAt", DateTime).
		Scalar("sentTo", String).
		Scalar("userId", Int).
		UniqueOn("hashedToken", "type").
		BelongsTo("user", EntityUser, "userId", Restrict)

	b.Entity(EntityUserBrand, "user_brands").
		ID().CreatedAt().
		Scalar("userId", Int).
		Scalar("brandId", Int).
		UniqueOn("userId", "brandId").
		BelongsTo("user", EntityUser, "userId", Cascade).
		BelongsTo("brand", EntityBrand, "brandId", Cascade)

	b.Entity(EntityUserShop, "user_shops").
		ID().CreatedAt().
		Scalar("userId", Int).
		Scalar("shopId", Int).
		UniqueOn("userId", "shopId").
		BelongsTo("user", EntityUser, "userId", Cascade).
		BelongsTo("shop", EntityShop, "shopId", Cascade)

	b.Entity(EntityReview, "reviews").
		ID().Timestamps().
		Scalar("rating", Int).Validate("min=1,max=5").
		Optional("comment", String).
		Scalar("userId", Int).
		Scalar("shopId", Int).
		UniqueOn("userId", "shopId").
		BelongsTo("user", EntityUser, "userId", Restrict).
		BelongsTo("shop", EntityShop, "shopId", Restrict)

	b.Entity(EntityBrandShop, "brand_shops").
		Internal().
		ID().
		Scalar("brandId", Int).
		Scalar("shopId", Int).
		UniqueOn("brandId", "shopId").
		BelongsTo("brand", EntityBrand, "brandId", Cascade).
		BelongsTo("shop", EntityShop, "shopId", Cascade)

	return b.Build()
}

// MustBuild is Build for process start-up, where an invalid schema is a
// programming error.
func MustBuild() *Registry {
	reg, err := Build()
	if err != nil {
		panic(err)
	}
	return reg
}
