package app

// SessionRepository tracks the live sessions of this process by id.
type SessionRepository interface {
	Put(id string, s *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
	All() []*Session
}

// DrainSessions tears down every live session and waits for their pending writes.
func DrainSessions(repo SessionRepository) {
	sessions := repo.All()
	for _, s := range sessions {
		s.Exit()
	}
	for _, s := range sessions {
		s.Flush()
	}
}
