package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopclient/internal/engine"
	"github.com/angelmondragon/shopclient/internal/query"
	"github.com/angelmondragon/shopclient/pkg/enums"
	"github.com/angelmondragon/shopclient/pkg/security"
)

const (
	sessionTTL     = 30 * 24 * time.Hour
	verifyEmailTTL = 24 * time.Hour
)

type seedSummary struct {
	Brands, Shops, Users, Reviews int
}

type seedShop struct {
	Name      string
	Type      string
	Latitude  float64
	Longitude float64
	Brands    []string
}

type seedUser struct {
	Email  string
	Name   string
	Role   enums.Role
	Likes  []string
	Rating map[string]int
}

var (
	seedBrands = []struct{ Name, Type string }{
		{"Acme Roasters", "roaster"},
		{"Northwind Bakery", "bakery"},
		{"Zenith Tea", "tea"},
	}

	seedShops = []seedShop{
		{Name: "Blue Door Cafe", Type: "cafe", Latitude: 45.5231, Longitude: -122.6765, Brands: []string{"Acme Roasters", "Northwind Bakery"}},
		{Name: "Harbor Tea House", Type: "tea_house", Latitude: 47.6062, Longitude: -122.3321, Brands: []string{"Zenith Tea"}},
		{Name: "Corner Bakery", Type: "bakery", Latitude: 37.7749, Longitude: -122.4194, Brands: []string{"Northwind Bakery", "Acme Roasters"}},
	}

	seedUsers = []seedUser{
		{
			Email: "ada@example.com", Name: "Ada", Role: enums.RoleAdmin,
			Likes:  []string{"Blue Door Cafe"},
			Rating: map[string]int{"Blue Door Cafe": 5, "Corner Bakery": 4},
		},
		{
			Email: "grace@example.com", Name: "Grace", Role: enums.RoleUser,
			Likes:  []string{"Blue Door Cafe", "Harbor Tea House"},
			Rating: map[string]int{"Blue Door Cafe": 4, "Harbor Tea House": 3},
		},
		{
			Email: "linus@example.com", Name: "Linus", Role: enums.RoleUser,
			Rating: map[string]int{"Corner Bakery": 2},
		},
	}
)

// seed upserts the sample directory in one transaction, so running it again
// leaves the data as it was apart from a fresh session and email token per
// user. New users get a random password they must reset.
func seed(ctx context.Context, client *engine.Client, passwords security.ArgonParams) (seedSummary, error) {
	var summary seedSummary
	err := client.InteractiveTransaction(ctx, func(ctx context.Context, tx *engine.Client) error {
		for _, b := range seedBrands {
			if _, err := tx.Brand().Upsert(ctx, query.UpsertArgs{
				Where:  query.UniqueWhere{"name": b.Name},
				Create: query.Data{"name": b.Name, "type": b.Type},
				Update: query.Data{"type": b.Type},
			}); err != nil {
				return err
			}
			summary.Brands++
		}

		shopIDs := make(map[string]int64, len(seedShops))
		for _, s := range seedShops {
			brands := make([]query.UniqueWhere, 0, len(s.Brands))
			for _, b := range s.Brands {
				brands = append(brands, query.UniqueWhere{"name": b})
			}
			data := query.Data{
				"name": s.Name, "type": s.Type, "latitude": s.Latitude, "longitude": s.Longitude,
				"brands": query.Connect(brands...),
			}
			rec, err := tx.Shop().Upsert(ctx, query.UpsertArgs{
				Where:  query.UniqueWhere{"name": s.Name},
				Create: data,
				Update: query.Data{"type": s.Type, "brands": query.SetRelation(brands...)},
			})
			if err != nil {
				return err
			}
			shopIDs[s.Name] = rec.Int("id")
			summary.Shops++
		}

		for _, u := range seedUsers {
			likes := make([]query.UniqueWhere, 0, len(u.Likes))
			for _, name := range u.Likes {
				likes = append(likes, query.UniqueWhere{"name": name})
			}
			temp, err := security.GenerateTempPassword(16)
			if err != nil {
				return err
			}
			hashed, err := security.HashPassword(temp, passwords)
			if err != nil {
				return err
			}
			user, err := tx.User().Upsert(ctx, query.UpsertArgs{
				Where: query.UniqueWhere{"email": u.Email},
				Create: query.Data{
					"email": u.Email, "name": u.Name, "role": string(u.Role),
					"hashedPassword": hashed,
					"likedShops":     query.Connect(likes...),
				},
				Update: query.Data{"name": u.Name, "likedShops": query.SetRelation(likes...)},
			})
			if err != nil {
				return err
			}
			summary.Users++

			if err := issueCredentials(ctx, tx, user); err != nil {
				return err
			}

			for shop, rating := range u.Rating {
				key := query.UniqueWhere{"userId": user.Int("id"), "shopId": shopIDs[shop]}
				if _, err := tx.Review().Upsert(ctx, query.UpsertArgs{
					Where:  key,
					Create: query.Data{"rating": rating, "userId": user.Int("id"), "shopId": shopIDs[shop]},
					Update: query.Data{"rating": rating},
				}); err != nil {
					return err
				}
				summary.Reviews++
			}
		}
		return nil
	}, engine.TxOptions{})
	return summary, err
}

// issueCredentials opens a session for user and sends a fresh email
// verification token. Only token hashes are stored.
func issueCredentials(ctx context.Context, tx *engine.Client, user query.Record) error {
	now := time.Now()
	owner := query.Connect(query.ByID(user.Int("id")))

	_, sessionHash, err := security.NewToken()
	if err != nil {
		return err
	}
	csrf, _, err := security.NewToken()
	if err != nil {
		return err
	}
	publicData, err := json.Marshal(map[string]any{"userId": user.Int("id"), "role": user.String("role")})
	if err != nil {
		return err
	}
	if _, err := tx.Session().Create(ctx, query.CreateArgs{Data: query.Data{
		"handle":             uuid.NewString(),
		"expiresAt":          now.Add(sessionTTL),
		"hashedSessionToken": sessionHash,
		"antiCSRFToken":      csrf,
		"publicData":         string(publicData),
		"user":               owner,
	}}); err != nil {
		return err
	}

	_, tokenHash, err := security.NewToken()
	if err != nil {
		return err
	}
	_, err = tx.Token().Create(ctx, query.CreateArgs{Data: query.Data{
		"hashedToken": tokenHash,
		"type":        string(enums.TokenTypeVerifyEmail),
		"expiresAt":   now.Add(verifyEmailTTL),
		"sentTo":      user.String("email"),
		"user":        owner,
	}})
	return err
}
