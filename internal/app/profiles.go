package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/store"
)

// Profiles is the Userdata/{uid} display-name directory.
type Profiles struct {
	store store.Store
}

func NewProfiles(s store.Store) *Profiles {
	return &Profiles{store: s}
}

// FullName returns the stored name of userID, or "" when none is set.
func (p *Profiles) FullName(ctx context.Context, userID string) (string, error) {
	if err := checkUser(userID); err != nil {
		return "", err
	}
	snap, err := p.store.Read(ctx, profilePath(userID))
	if err != nil {
		return "", fmt.Errorf("load profile: %w: %w", domain.ErrFetch, err)
	}
	var profile domain.Profile
	if err := snap.Decode(&profile); err != nil {
		return "", fmt.Errorf("decode profile: %w: %w", domain.ErrFetch, err)
	}
	return profile.FullName, nil
}

// SetFullName merges fullName into the profile, leaving other fields intact.
func (p *Profiles) SetFullName(ctx context.Context, userID, name string) error {
	if err := checkUser(userID); err != nil {
		return err
	}
	if err := p.store.Update(ctx, profilePath(userID), map[string]any{"fullName": strings.TrimSpace(name)}); err != nil {
		return fmt.Errorf("save profile: %w: %w", domain.ErrWrite, err)
	}
	return nil
}

// Subscribe streams the uid to name directory after every change.
func (p *Profiles) Subscribe(ctx context.Context) (<-chan map[string]string, func(), error) {
	in, cancel, err := p.store.Subscribe(ctx, profilesRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe profiles: %w: %w", domain.ErrFetch, err)
	}
	return project(in, decodeNames), cancel, nil
}

// decodeNames keeps every user in the directory, even without a usable name.
func decodeNames(snap store.Snapshot) map[string]string {
	out := make(map[string]string)
	children, err := decodeChildren[json.RawMessage](snap)
	if err != nil {
		return out
	}
	for _, ch := range children {
		var profile domain.Profile
		_ = json.Unmarshal(ch.Value, &profile)
		out[ch.Key] = profile.FullName
	}
	return out
}
