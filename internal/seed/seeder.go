// Package seed fills a development database with fake profiles, posts,
// comments and likes. Everything goes through the repository so stored
// counts are derived the same way the relay derives them.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/whispers-app/whispers/internal/logger"
	"github.com/whispers-app/whispers/internal/models"
	"github.com/whispers-app/whispers/internal/repository"
)

// Counts sizes a seeding run
type Counts struct {
	Profiles int
	Posts    int
	Comments int
	// LikeRate is the chance, per profile and post, that the profile likes the post
	LikeRate float64
	// ReplyRate is the chance that a comment replies to an earlier one
	ReplyRate float64
}

// DevCounts is the default development data set
var DevCounts = Counts{Profiles: 40, Posts: 150, Comments: 400, LikeRate: 0.15, ReplyRate: 0.35}

// TestCounts is a minimal data set
var TestCounts = Counts{Profiles: 3, Posts: 5, Comments: 6, LikeRate: 0.5, ReplyRate: 0.5}

// Result reports what a run created
type Result struct {
	Profiles []*models.Profile
	Posts    []*models.Post
	Comments []*models.Comment
	Likes    int
}

// Seeder handles database seeding operations
type Seeder struct {
	db    *gorm.DB
	store repository.Store
	faker *gofakeit.Faker
}

// NewSeeder creates a seeder. seed 0 picks a random seed; any other value
// makes the run reproducible.
func NewSeeder(db *gorm.DB, seed uint64) *Seeder {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Seeder{
		db:    db,
		store: repository.NewStore(db),
		faker: gofakeit.New(seed),
	}
}

// Seed creates profiles, then posts, then comments and replies, then likes
func (s *Seeder) Seed(ctx context.Context, counts Counts) (*Result, error) {
	result := &Result{}

	logger.Log.Info("Creating profiles...", zap.Int("count", counts.Profiles))
	for i := 0; i < counts.Profiles; i++ {
		profile, err := s.store.UpsertProfile(ctx, &models.Profile{
			ID:         s.faker.UUID(),
			AvatarSeed: s.faker.LetterN(12),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to seed profiles: %w", err)
		}
		result.Profiles = append(result.Profiles, profile)
	}
	if len(result.Profiles) == 0 {
		return result, nil
	}

	logger.Log.Info("Creating posts...", zap.Int("count", counts.Posts))
	for i := 0; i < counts.Posts; i++ {
		author := s.pickProfile(result.Profiles)
		var image *string
		if s.faker.Float64() < 0.2 {
			url := s.faker.URL() + "/" + s.faker.LetterN(8) + ".jpg"
			image = &url
		}
		post, err := s.store.CreatePost(ctx, author.ID, s.faker.HipsterSentence(), image)
		if err != nil {
			return nil, fmt.Errorf("failed to seed posts: %w", err)
		}
		result.Posts = append(result.Posts, post)
	}
	if len(result.Posts) == 0 {
		return result, nil
	}

	logger.Log.Info("Creating comments...", zap.Int("count", counts.Comments))
	byPost := make(map[string][]*models.Comment)
	for i := 0; i < counts.Comments; i++ {
		post := result.Posts[s.faker.IntN(len(result.Posts))]
		var parentID *string
		if earlier := byPost[post.ID]; len(earlier) > 0 && s.faker.Float64() < counts.ReplyRate {
			parentID = &earlier[s.faker.IntN(len(earlier))].ID
		}
		comment, err := s.store.CreateComment(ctx, post.ID, s.pickProfile(result.Profiles).ID, s.faker.HipsterSentence(), parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to seed comments: %w", err)
		}
		byPost[post.ID] = append(byPost[post.ID], comment)
		result.Comments = append(result.Comments, comment)
	}

	logger.Log.Info("Creating likes...", zap.Float64("rate", counts.LikeRate))
	for _, post := range result.Posts {
		for _, profile := range result.Profiles {
			if s.faker.Float64() >= counts.LikeRate {
				continue
			}
			if _, err := s.store.SetPostLike(ctx, post.ID, profile.ID, true); err != nil {
				return nil, fmt.Errorf("failed to seed likes: %w", err)
			}
			result.Likes++
		}
	}
	for _, comment := range result.Comments {
		if s.faker.Float64() >= counts.LikeRate {
			continue
		}
		if _, err := s.store.SetCommentLike(ctx, comment.ID, s.pickProfile(result.Profiles).ID, true); err != nil {
			return nil, fmt.Errorf("failed to seed comment likes: %w", err)
		}
		result.Likes++
	}

	return result, nil
}

// Clean deletes every row of every relay table
func (s *Seeder) Clean(ctx context.Context) error {
	db := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true})
	tables := models.All()
	// children first
	for i := len(tables) - 1; i >= 0; i-- {
		if err := db.Delete(tables[i]).Error; err != nil {
			return fmt.Errorf("failed to clean %T: %w", tables[i], err)
		}
	}
	return nil
}

func (s *Seeder) pickProfile(profiles []*models.Profile) *models.Profile {
	return profiles[s.faker.IntN(len(profiles))]
}
