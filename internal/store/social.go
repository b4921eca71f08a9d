package store

import (
	"context"
	"strings"
	"time"
	"unicode"

	"openclaw/internal/clawerr"
)

// SocialPost is a published or drafted social media post.
type SocialPost struct {
	ID        int64
	Platform  string
	Content   string
	PostedAt  *time.Time
	CreatedAt time.Time
}

// duplicateThreshold is the Jaccard similarity at or above which a draft
// counts as a duplicate of a recent post.
const duplicateThreshold = 0.6

// duplicateWindow is how many recent posts per platform are compared.
const duplicateWindow = 30

// AddSocialPost records a post for the duplicate-detection window.
func (s *Store) AddSocialPost(ctx context.Context, platform, content string, postedAt *time.Time) (int64, error) {
	if platform == "" || content == "" {
		return 0, clawerr.NewValidation("social post platform and content are required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO social_posts (platform, content, posted_at) VALUES (?, ?, ?)`,
		platform, content, postedAt)
	if err != nil {
		return 0, &clawerr.StorageError{Op: "add social post", Err: err}
	}
	return res.LastInsertId()
}

// DuplicateMatch reports the nearest prior post above the threshold.
type DuplicateMatch struct {
	PostID     int64
	Similarity float64
	Content    string
}

// CheckDuplicate compares a draft against the platform's last 30 posts
// using Jaccard similarity over significant words. A nil result means the
// draft is clear to post.
func (s *Store) CheckDuplicate(ctx context.Context, platform, draft string) (*DuplicateMatch, error) {
	draftWords := significantWords(draft)
	if len(draftWords) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content FROM social_posts
		 WHERE platform = ?
		 ORDER BY created_at DESC LIMIT ?`, platform, duplicateWindow)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "check duplicate", Err: err}
	}
	defer rows.Close()

	var best *DuplicateMatch
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			return nil, err
		}
		sim := jaccard(draftWords, significantWords(content))
		if sim >= duplicateThreshold && (best == nil || sim > best.Similarity) {
			best = &DuplicateMatch{PostID: id, Similarity: sim, Content: content}
		}
	}
	return best, rows.Err()
}

// significantWords lowercases, strips punctuation, and keeps words longer
// than three characters.
func significantWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		cleaned := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, field)
		if len(cleaned) > 3 {
			words[cleaned] = true
		}
	}
	return words
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// ListSocialPosts returns recent posts for a platform, newest first.
func (s *Store) ListSocialPosts(ctx context.Context, platform string, limit int) ([]SocialPost, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, platform, content, posted_at, created_at FROM social_posts`
	var args []any
	if platform != "" {
		query += ` WHERE platform = ?`
		args = append(args, platform)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &clawerr.StorageError{Op: "list social posts", Err: err}
	}
	defer rows.Close()

	var out []SocialPost
	for rows.Next() {
		var p SocialPost
		if err := rows.Scan(&p.ID, &p.Platform, &p.Content, &p.PostedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
