package dialog

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Registry optionally mirrors this process's single dialog session into
// Redis for external observability. Unlike the teacher's session.Manager,
// this client never multiplexes multiple concurrent dialogs (see spec
// Non-goals), so Registry only ever tracks one key at a time — it exists
// so an operator can see connect/dialog ids and state-flag snapshots
// without tailing logs.
type Registry struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRegistry connects lazily and pings once; if Redis is unreachable it
// returns nil rather than failing session startup, mirroring the teacher's
// own "connect but don't fail" posture for this optional collaborator. A
// nil *Registry is safe to call methods on.
func NewRegistry(addr, password, sessionID string, ttl time.Duration) *Registry {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: 0})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil
	}

	return &Registry{
		client: client,
		key:    "voicedialog:session:" + sessionID,
		ttl:    ttl,
	}
}

// Mirror writes a snapshot of the session's current state.
func (r *Registry) Mirror(ctx context.Context, connectID, dialogID string, userQuerying, sendingChatTTSText bool) {
	if r == nil {
		return
	}
	r.client.HSet(ctx, r.key, map[string]interface{}{
		"connect_id":            connectID,
		"dialog_id":             dialogID,
		"user_querying":         userQuerying,
		"sending_chat_tts_text": sendingChatTTSText,
		"updated_at":            time.Now().Format(time.RFC3339),
	})
	r.client.Expire(ctx, r.key, r.ttl)
}

// Close releases the underlying Redis client. Safe to call on a nil Registry.
func (r *Registry) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
