package app

import (
	"fmt"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

// Store layout shared with the mobile clients.
const (
	categoriesPath = "quizzesCategories"
	quizzesRoot    = "quizzes"
	attemptsRoot   = "userQuizzes"
	pointsRoot     = "userPoints"
	profilesRoot   = "Userdata"
	authoredRoot   = "userQuizzesDATA"
)

func questionsPath(category string) string {
	return store.Join(quizzesRoot, category)
}

func attemptsPath(userID string, category ...string) string {
	return store.Join(append([]string{attemptsRoot, userID}, category...)...)
}

func pointsPath(userID string) string {
	return store.Join(pointsRoot, userID)
}

func profilePath(userID string) string {
	return store.Join(profilesRoot, userID)
}

func authoredPath(userID, category string, id ...string) string {
	return store.Join(append([]string{authoredRoot, userID, category}, id...)...)
}

// checkUser rejects a missing user id before anything else, then any id that would
// not stay a single path segment.
func checkUser(userID string) error {
	if userID == "" {
		return domain.ErrAuthRequired
	}
	return checkNames(userID)
}

// checkNames makes sure each name is exactly one path segment, so a "/" can never
// reach into a sibling's subtree.
func checkNames(names ...string) error {
	for _, name := range names {
		if err := store.ValidSegment(name); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidName, err)
		}
	}
	return nil
}
