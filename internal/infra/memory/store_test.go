package memory

import (
	"testing"

	"quiz-session-service/internal/store"
	"quiz-session-service/internal/store/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := NewStore()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
