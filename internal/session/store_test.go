package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Bob-Light1/school-management-system-frontend-sub000/internal/config"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// exerciseStore runs the common TokenStore contract against a store.
func exerciseStore(t *testing.T, store TokenStore) {
	t.Helper()
	ctx := context.Background()

	got, err := store.Get(ctx, KeyToken)
	if err != nil {
		t.Fatalf("Get(missing) error = %v", err)
	}
	if got != "" {
		t.Errorf("Get(missing) = %q, want empty", got)
	}

	if err := store.Set(ctx, KeyToken, "tok-1"); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if err := store.Set(ctx, KeyUser, `{"name":"Ada"}`); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	if got, _ := store.Get(ctx, KeyToken); got != "tok-1" {
		t.Errorf("Get(token) = %q, want tok-1", got)
	}

	if err := store.Set(ctx, KeyToken, "tok-2"); err != nil {
		t.Fatalf("Set(overwrite) error = %v", err)
	}
	if got, _ := store.Get(ctx, KeyToken); got != "tok-2" {
		t.Errorf("Get(token) after overwrite = %q, want tok-2", got)
	}

	if err := store.Delete(ctx, KeyToken); err != nil {
		t.Fatalf("Delete error = %v", err)
	}
	if got, _ := store.Get(ctx, KeyToken); got != "" {
		t.Errorf("Get(token) after delete = %q, want empty", got)
	}
	if got, _ := store.Get(ctx, KeyUser); got != `{"name":"Ada"}` {
		t.Errorf("Get(user) = %q, delete should not touch other keys", got)
	}

	if err := store.Delete(ctx, "never-set"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	exerciseStore(t, NewFileStore(filepath.Join(t.TempDir(), "session.json")))
}

func TestFileStore_persistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	ctx := context.Background()

	if err := NewFileStore(path).Set(ctx, KeyToken, "persisted"); err != nil {
		t.Fatalf("Set error = %v", err)
	}

	got, err := NewFileStore(path).Get(ctx, KeyToken)
	if err != nil {
		t.Fatalf("Get error = %v", err)
	}
	if got != "persisted" {
		t.Errorf("Get = %q, want persisted", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}
}

func TestFileStore_corruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Get(context.Background(), KeyToken); err == nil {
		t.Error("Get on corrupt file should return error")
	}
}

func TestFileStore_HealthCheck(t *testing.T) {
	dir := t.TempDir()
	if err := NewFileStore(filepath.Join(dir, "session.json")).HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck error = %v", err)
	}
	if err := NewFileStore(filepath.Join(dir, "missing", "session.json")).HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck with missing directory should fail")
	}
}

func TestRedisStore(t *testing.T) {
	_, client := newTestRedis(t)
	exerciseStore(t, NewRedisStore(client, "sms:"))
}

func TestRedisStore_usesPrefix(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "console:")

	if err := store.Set(context.Background(), KeyToken, "abc"); err != nil {
		t.Fatalf("Set error = %v", err)
	}
	got, err := mr.Get("console:token")
	if err != nil {
		t.Fatalf("miniredis Get error = %v", err)
	}
	if got != "abc" {
		t.Errorf("console:token = %q, want abc", got)
	}
}

func TestRedisStore_HealthCheck(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "")

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck error = %v", err)
	}
	mr.Close()
	if err := store.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck after shutdown should fail")
	}
}

func TestOpenStore(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.SessionConfig
		want    string
		wantErr bool
	}{
		{"memory", config.SessionConfig{Store: "memory"}, "*session.MemoryStore", false},
		{"file", config.SessionConfig{Store: "file", FilePath: filepath.Join(t.TempDir(), "s.json")}, "*session.FileStore", false},
		{"redis", config.SessionConfig{Store: "redis", RedisAddr: mr.Addr()}, "*session.RedisStore", false},
		{"unknown", config.SessionConfig{Store: "cookies"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, closeFn, err := OpenStore(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("OpenStore error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer closeFn()
			if got := typeName(store); got != tt.want {
				t.Errorf("store type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(v any) string {
	switch v.(type) {
	case *MemoryStore:
		return "*session.MemoryStore"
	case *FileStore:
		return "*session.FileStore"
	case *RedisStore:
		return "*session.RedisStore"
	}
	return "unknown"
}
