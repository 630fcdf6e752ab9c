package sessions

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hearthfire/hearth/pkg/models"
)

// storeFactories builds each Store implementation against the same contract.
func storeFactories(t *testing.T, scope models.Scope) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "hearth.db"), scope)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(scope),
		"sqlite": sqlite,
	}
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			second, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if first.ID != second.ID {
				t.Fatalf("expected stable session, got %s and %s", first.ID, second.ID)
			}

			other, err := store.GetOrCreate(ctx, "bob", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if other.ID == first.ID {
				t.Fatal("per-sender scope must split sessions by user")
			}
		})
	}
}

func TestGetOrCreateConcurrent(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			const workers = 16
			ids := make([]string, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					session, err := store.GetOrCreate(ctx, "alice", "telegram")
					if err != nil {
						t.Errorf("GetOrCreate() error = %v", err)
						return
					}
					ids[i] = session.ID
				}(i)
			}
			wg.Wait()

			for _, id := range ids[1:] {
				if id != ids[0] {
					t.Fatalf("concurrent get-or-creates diverged: %v", ids)
				}
			}

			summaries, err := store.ListSessions(ctx, "alice")
			if err != nil {
				t.Fatalf("ListSessions() error = %v", err)
			}
			count := 0
			for _, s := range summaries {
				if s.Channel == "telegram" {
					count++
				}
			}
			if count != 1 {
				t.Fatalf("expected exactly one telegram session, got %d", count)
			}
		})
	}
}

func TestMainScopeSharesSession(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopeMain) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			a, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			b, err := store.GetOrCreate(ctx, "bob", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if a.ID != b.ID {
				t.Fatal("main scope must collapse senders into one session")
			}
			if a.UserID != MainUser {
				t.Fatalf("expected user slot %q, got %q", MainUser, a.UserID)
			}
		})
	}
}

func TestPerPeerScopeSpansChannels(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerPeer) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			web, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			tg, err := store.GetOrCreate(ctx, "alice", "telegram")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if web.ID != tg.ID {
				t.Fatal("per-peer scope must share sessions across channels")
			}
		})
	}
}

func TestAppendAndListMessages(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}

			tokens := 3
			if _, err := store.AppendMessage(ctx, session.ID, models.RoleUser, "ping", "", nil); err != nil {
				t.Fatalf("AppendMessage() error = %v", err)
			}
			appended, err := store.AppendMessage(ctx, session.ID, models.RoleAssistant, "pong", "primary-m", &tokens)
			if err != nil {
				t.Fatalf("AppendMessage() error = %v", err)
			}
			if appended.ID == "" || appended.CreatedAt.IsZero() {
				t.Fatal("expected id and timestamp to be assigned")
			}

			msgs, err := store.ListMessages(ctx, session.ID, 50, 0)
			if err != nil {
				t.Fatalf("ListMessages() error = %v", err)
			}
			if len(msgs) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(msgs))
			}
			if msgs[0].Role != models.RoleUser || msgs[0].Content != "ping" {
				t.Fatalf("unexpected first message: %+v", msgs[0])
			}
			last := msgs[1]
			if last.Role != models.RoleAssistant || last.Content != "pong" {
				t.Fatalf("unexpected last message: %+v", last)
			}
			if last.ModelUsed != "primary-m" || last.Tokens == nil || *last.Tokens != 3 {
				t.Fatalf("model/tokens not persisted: %+v", last)
			}

			loaded, err := store.GetMessage(ctx, appended.ID)
			if err != nil {
				t.Fatalf("GetMessage() error = %v", err)
			}
			if loaded.Content != "pong" {
				t.Fatalf("round-trip mismatch: %+v", loaded)
			}
		})
	}
}

func TestMessageOrderingIsNonDecreasing(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			for i := 0; i < 20; i++ {
				if _, err := store.AppendMessage(ctx, session.ID, models.RoleUser, "m", "", nil); err != nil {
					t.Fatalf("AppendMessage() error = %v", err)
				}
			}

			msgs, err := store.ListMessages(ctx, session.ID, 50, 0)
			if err != nil {
				t.Fatalf("ListMessages() error = %v", err)
			}
			for i := 1; i < len(msgs); i++ {
				if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
					t.Fatalf("timestamps regressed at index %d", i)
				}
			}
		})
	}
}

func TestListMessagesWindowing(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			for i := 0; i < 10; i++ {
				content := string(rune('a' + i))
				if _, err := store.AppendMessage(ctx, session.ID, models.RoleUser, content, "", nil); err != nil {
					t.Fatalf("AppendMessage() error = %v", err)
				}
			}

			msgs, err := store.ListMessages(ctx, session.ID, 3, 0)
			if err != nil {
				t.Fatalf("ListMessages() error = %v", err)
			}
			if len(msgs) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(msgs))
			}
			if msgs[0].Content != "h" || msgs[2].Content != "j" {
				t.Fatalf("expected trailing window h..j, got %s..%s", msgs[0].Content, msgs[2].Content)
			}

			// limit 0 returns nothing
			none, err := store.ListMessages(ctx, session.ID, 0, 0)
			if err != nil {
				t.Fatalf("ListMessages() error = %v", err)
			}
			if len(none) != 0 {
				t.Fatalf("expected 0 messages for limit 0, got %d", len(none))
			}

			// offset skips from the tail
			offset, err := store.ListMessages(ctx, session.ID, 3, 2)
			if err != nil {
				t.Fatalf("ListMessages() error = %v", err)
			}
			if len(offset) != 3 || offset[2].Content != "h" {
				t.Fatalf("unexpected offset window: %+v", offset)
			}
		})
	}
}

func TestAppendToMissingSession(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			_, err := store.AppendMessage(context.Background(), "nope", models.RoleUser, "x", "", nil)
			if err != ErrNotFound {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			if _, err := store.AppendMessage(ctx, session.ID, models.RoleUser, "hi", "", nil); err != nil {
				t.Fatalf("AppendMessage() error = %v", err)
			}

			if err := store.Delete(ctx, session.ID, "mallory"); err != ErrForbidden {
				t.Fatalf("expected ErrForbidden for cross-user delete, got %v", err)
			}

			if err := store.Delete(ctx, session.ID, "alice"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := store.Get(ctx, session.ID); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			if _, err := store.ListMessages(ctx, session.ID, 50, 0); err != ErrNotFound {
				t.Fatalf("expected messages gone with session, got %v", err)
			}

			// second delete reports not found
			if err := store.Delete(ctx, session.ID, "alice"); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
			}
		})
	}
}

func TestSessionStats(t *testing.T) {
	for name, store := range storeFactories(t, models.ScopePerSender) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.GetOrCreate(ctx, "alice", "web")
			if err != nil {
				t.Fatalf("GetOrCreate() error = %v", err)
			}
			five, seven := 5, 7
			store.AppendMessage(ctx, session.ID, models.RoleUser, "q1", "", &five)
			store.AppendMessage(ctx, session.ID, models.RoleAssistant, "a1", "primary-m", &seven)
			store.AppendMessage(ctx, session.ID, models.RoleTool, "result", "", nil)

			stats, err := store.Stats(ctx, session.ID)
			if err != nil {
				t.Fatalf("Stats() error = %v", err)
			}
			if stats.TotalMessages != 3 || stats.UserMessages != 1 || stats.AssistantMessages != 1 {
				t.Fatalf("unexpected counts: %+v", stats)
			}
			if stats.TotalTokens != 12 {
				t.Fatalf("expected 12 tokens, got %d", stats.TotalTokens)
			}
			if stats.ModelsUsed["primary-m"] != 1 {
				t.Fatalf("expected primary-m usage, got %+v", stats.ModelsUsed)
			}
		})
	}
}
