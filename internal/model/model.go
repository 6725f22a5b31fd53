package model

import "time"

// PostDateLayout renders a post's display date, e.g. "07 Mar, 2024".
const PostDateLayout = "02 Jan, 2006"

type Identity struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
}

type Post struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Subtitle   string    `json:"subtitle"`
	Body       string    `json:"body"`
	ImgURL     string    `json:"img_url"`
	Date       string    `json:"date"`
	AuthorID   int64     `json:"author_id"`
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Comment struct {
	ID          int64     `json:"id"`
	PostID      int64     `json:"post_id"`
	Text        string    `json:"text"`
	AuthorID    int64     `json:"author_id"`
	AuthorName  string    `json:"author_name,omitempty"`
	AuthorEmail string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Session is a server-side login record. A signed token refers to it by ID.
type Session struct {
	ID         string
	IdentityID int64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
