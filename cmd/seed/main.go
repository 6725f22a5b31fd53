package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/alphabot-ai/inkpost/internal/client"
)

type account struct {
	name     string
	email    string
	password string
}

// The first account registered on an empty blog becomes the administrator.
var admin = account{"Angela", "admin@inkpost.local", "admin-password"}

var readers = []account{
	{"Jack", "jack@inkpost.local", "reader-jack"},
	{"Maya", "maya@inkpost.local", "reader-maya"},
	{"Theo", "theo@inkpost.local", "reader-theo"},
}

var posts = []client.PostInput{
	{
		Title:    "The Life of Cactus",
		Subtitle: "Who knew that cacti lived such interesting lives.",
		ImgURL:   "https://images.unsplash.com/photo-1530482054429-cc491f61333b",
		Body:     "<p>Nori grape silver beet broccoli kombu beet greens fava bean potato quandong celery.</p><p>Bunya nuts black-eyed pea prairie turnip leek lentil turnip greens parsnip.</p>",
	},
	{
		Title:    "Top 15 Things to Do When You Are Bored",
		Subtitle: "Are you bored? Don't know what to do? Try these top 15 activities.",
		ImgURL:   "https://images.unsplash.com/photo-1416339306562-f3d12fefd36f",
		Body:     "<p>Go for a walk. Call an old friend. Learn to juggle.</p>",
	},
	{
		Title:    "Introduction to Intermittent Fasting",
		Subtitle: "Learn about the newest health craze.",
		ImgURL:   "https://images.unsplash.com/photo-1505253716362-afaea1d3d1af",
		Body:     "<p>Intermittent fasting is an eating pattern that cycles between periods of fasting and eating.</p>",
	},
}

var comments = []string{
	"Great post, thanks for sharing!",
	"I never thought about it that way.",
	"Could you write a follow-up on this?",
	"Bookmarked. Reading this again tomorrow.",
	"Not sure I agree, but appreciate the perspective.",
	"The photo alone made my day.",
}

// login registers acct, or logs in when the e-mail is already taken so the
// seeder can be re-run against the same server.
func login(baseURL string, acct account) (*client.Client, error) {
	c := client.New(baseURL)
	_, err := c.Register(acct.name, acct.email, acct.password)
	if errors.Is(err, client.ErrAlreadyRegistered) {
		_, err = c.Login(acct.email, acct.password)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", acct.email, err)
	}
	return c, nil
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Inkpost server URL")
	flag.Parse()

	log.Printf("Seeding blog at %s...\n", *baseURL)

	adminClient, err := login(*baseURL, admin)
	if err != nil {
		log.Fatalf("admin: %v", err)
	}
	me, err := adminClient.Me()
	if err != nil {
		log.Fatalf("admin: %v", err)
	}
	if !me.IsAdmin {
		log.Fatalf("%s is not the administrator; seed an empty blog", admin.email)
	}
	log.Printf("✓ Administrator: %s", me.Name)

	var readerClients []*client.Client
	for _, r := range readers {
		c, err := login(*baseURL, r)
		if err != nil {
			log.Fatalf("reader: %v", err)
		}
		log.Printf("✓ Reader: %s", r.name)
		readerClients = append(readerClients, c)
	}

	var postIDs []int64
	for _, in := range posts {
		post, err := adminClient.CreatePost(in)
		if client.StatusOf(err) == 409 {
			log.Printf("- Post already exists: %s", in.Title)
			continue
		}
		if err != nil {
			log.Printf("✗ Failed to publish %q: %v", in.Title, err)
			continue
		}
		postIDs = append(postIDs, post.ID)
		log.Printf("✓ Published #%d: %s", post.ID, post.Title)

		// Spread out creation times.
		time.Sleep(50 * time.Millisecond)
	}

	for _, id := range postIDs {
		n := rand.Intn(3) + 1
		for i := 0; i < n; i++ {
			idx := rand.Intn(len(readerClients))
			c, err := readerClients[idx].CreateComment(id, comments[rand.Intn(len(comments))])
			if err != nil {
				log.Printf("✗ Failed to comment: %v", err)
				continue
			}
			log.Printf("✓ Comment #%d on post #%d (by %s)", c.ID, id, readers[idx].name)
		}
	}

	log.Printf("Done: %d posts, %d readers", len(postIDs), len(readerClients))
}
