package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

// Points owns the global userPoints/{uid} counters.
type Points struct {
	store store.Store
}

func NewPoints(s store.Store) *Points {
	return &Points{store: s}
}

// Increment credits one point to userID and returns the new total. Concurrent
// increments from other sessions are never lost.
func (p *Points) Increment(ctx context.Context, userID string) (int64, error) {
	if err := checkUser(userID); err != nil {
		return 0, err
	}
	total, err := p.store.Increment(ctx, pointsPath(userID), 1)
	if err != nil {
		return 0, fmt.Errorf("increment points: %w: %w", domain.ErrWrite, err)
	}
	return total, nil
}

// Load reads the full point map.
func (p *Points) Load(ctx context.Context) (map[string]int64, error) {
	snap, err := p.store.Read(ctx, pointsRoot)
	if err != nil {
		return map[string]int64{}, fmt.Errorf("load points: %w: %w", domain.ErrFetch, err)
	}
	return decodePoints(snap), nil
}

// Subscribe streams the full point map after every change. Call cancel to stop.
func (p *Points) Subscribe(ctx context.Context) (<-chan map[string]int64, func(), error) {
	in, cancel, err := p.store.Subscribe(ctx, pointsRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe points: %w: %w", domain.ErrFetch, err)
	}
	return project(in, decodePoints), cancel, nil
}

// decodePoints skips entries that are not integers.
func decodePoints(snap store.Snapshot) map[string]int64 {
	out := make(map[string]int64)
	children, err := decodeChildren[json.RawMessage](snap)
	if err != nil {
		return out
	}
	for _, ch := range children {
		n, err := strconv.ParseInt(string(ch.Value), 10, 64)
		if err != nil {
			continue
		}
		out[ch.Key] = n
	}
	return out
}

// ComputeRank returns the 1-based competition rank of userID: one more than the
// number of users with strictly more points, so tied users share a rank. Users
// with no points are domain.Unranked.
func ComputeRank(userID string, points map[string]int64) int {
	own := points[userID]
	if own <= 0 {
		return domain.Unranked
	}
	rank := 1
	for id, p := range points {
		if id != userID && p > own {
			rank++
		}
	}
	return rank
}

// BuildLeaderboard joins point totals with display names. Every user present on
// either side gets a row; rows are ordered by points descending, then user id.
func BuildLeaderboard(points map[string]int64, names map[string]string) []domain.LeaderboardRow {
	rows := make([]domain.LeaderboardRow, 0, len(points)+len(names))
	for id, p := range points {
		rows = append(rows, domain.LeaderboardRow{UserID: id, DisplayName: displayName(names[id]), Points: p})
	}
	for id, name := range names {
		if _, ok := points[id]; ok {
			continue
		}
		rows = append(rows, domain.LeaderboardRow{UserID: id, DisplayName: displayName(name)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Points != rows[j].Points {
			return rows[i].Points > rows[j].Points
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows
}

func displayName(name string) string {
	if name == "" {
		return domain.DefaultDisplayName
	}
	return name
}
