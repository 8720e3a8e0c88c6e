package models

import "time"

// Channel is a named conversation container with explicit membership.
type Channel struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   int64     `db:"owner_id" json:"owner_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// DMThread is a private conversation between exactly two users.
type DMThread struct {
	ID        int64     `db:"id" json:"id"`
	User1ID   int64     `db:"user1_id" json:"user1_id"`
	User2ID   int64     `db:"user2_id" json:"user2_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User is the minimal user record this service keeps for display purposes.
// Account management lives in the user service.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
}
