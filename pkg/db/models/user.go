package models

import "time"

// User represents a directory member. Preferences holds canonical JSON text.
type User struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt      time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt      time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	Name           *string   `gorm:"column:name"`
	Email          string    `gorm:"column:email;not null;uniqueIndex:User_email_key"`
	HashedPassword *string   `gorm:"column:hashed_password"`
	Role           string    `gorm:"column:role;not null"`
	Avatar         *string   `gorm:"column:avatar"`
	Bio            *string   `gorm:"column:bio"`
	Location       *string   `gorm:"column:location"`
	Phone          *string   `gorm:"column:phone"`
	Preferences    *string   `gorm:"column:preferences;type:text"`
}

func (User) TableName() string { return "users" }

// Session is a login session; UserID is cleared when the user goes away.
type Session struct {
	ID                 int64      `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	ExpiresAt          *time.Time `gorm:"column:expires_at"`
	Handle             string     `gorm:"column:handle;not null;uniqueIndex:Session_handle_key"`
	HashedSessionToken *string    `gorm:"column:hashed_session_token"`
	AntiCSRFToken      *string    `gorm:"column:anti_csrf_token"`
	PublicData         *string    `gorm:"column:public_data"`
	PrivateData        *string    `gorm:"column:private_data"`
	UserID             *int64     `gorm:"column:user_id;index:sessions_user_id_idx"`
}

func (Session) TableName() string { return "sessions" }

type Token struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;autoCreateTime:false"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null;autoUpdateTime:false"`
	HashedToken string    `gorm:"column:hashed_token;not null;uniqueIndex:Token_hashedToken_type_key"`
	Type        string    `gorm:"column:type;not null;uniqueIndex:Token_hashedToken_type_key"`
	ExpiresAt   time.Time `gorm:"column:expires_at;not null"`
	SentTo      string    `gorm:"column:sent_to;not null"`
	UserID      int64     `gorm:"column:user_id;not null;index:tokens_user_id_idx"`
}

func (Token) TableName() string { return "tokens" }
