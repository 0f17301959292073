package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

// exerciseKVStore はKeyValueStore実装に共通の振る舞いを検証する。
func exerciseKVStore(t *testing.T, store KeyValueStore) {
	t.Helper()
	ctx := context.Background()

	// 未保存のキーは found=false
	if _, found, err := store.Get(ctx, "authData"); err != nil || found {
		t.Fatalf("Get(missing) = found %v, err %v; want false, nil", found, err)
	}

	if err := store.Set(ctx, "authData", `{"userId":"u1"}`); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, found, err := store.Get(ctx, "authData")
	if err != nil || !found {
		t.Fatalf("Get() = found %v, err %v; want true, nil", found, err)
	}
	if v != `{"userId":"u1"}` {
		t.Errorf("Get() = %q, want %q", v, `{"userId":"u1"}`)
	}

	// 上書き
	if err := store.Set(ctx, "authData", `{"userId":"u2"}`); err != nil {
		t.Fatalf("Set(overwrite) error = %v", err)
	}
	v, _, _ = store.Get(ctx, "authData")
	if v != `{"userId":"u2"}` {
		t.Errorf("Get() after overwrite = %q", v)
	}

	// 他のキーに影響しない
	if err := store.Set(ctx, "other", "x"); err != nil {
		t.Fatalf("Set(other) error = %v", err)
	}

	if err := store.Remove(ctx, "authData"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, found, _ := store.Get(ctx, "authData"); found {
		t.Error("key should be absent after Remove")
	}
	if v, found, _ := store.Get(ctx, "other"); !found || v != "x" {
		t.Errorf("other key = (%q, %v), want (x, true)", v, found)
	}

	// 存在しないキーの削除はエラーにならない
	if err := store.Remove(ctx, "authData"); err != nil {
		t.Errorf("Remove(missing) error = %v", err)
	}
	_ = store.Remove(ctx, "other")
}

func TestMemoryKVStore(t *testing.T) {
	exerciseKVStore(t, NewMemoryKVStore())
}

func TestFileKVStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "auth.json")
	exerciseKVStore(t, NewFileKVStore(path))
}

func TestFileKVStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "auth.json")

	if err := NewFileKVStore(path).Set(ctx, "authData", "persisted"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	v, found, err := NewFileKVStore(path).Get(ctx, "authData")
	if err != nil || !found || v != "persisted" {
		t.Errorf("Get() from new instance = (%q, %v, %v), want (persisted, true, nil)", v, found, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file permission = %o, want 600", perm)
	}
}

func TestFileKVStore_CorruptFile_ReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, _, err := NewFileKVStore(path).Get(context.Background(), "authData"); err == nil {
		t.Error("expected error for corrupt store file")
	}
}

func TestFileKVStore_EmptyFile_IsEmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.json")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	_, found, err := NewFileKVStore(path).Get(context.Background(), "authData")
	if err != nil || found {
		t.Errorf("Get() on empty file = (%v, %v), want (false, nil)", found, err)
	}
}

func TestNewPostgresKVStore_Initializes(t *testing.T) {
	if NewPostgresKVStore(nil) == nil {
		t.Fatal("expected non-nil store")
	}
}

func TestNewRedisClient_InvalidURL_ReturnsError(t *testing.T) {
	if _, err := NewRedisClient("not-a-redis-url"); err == nil {
		t.Error("expected error for invalid redis url")
	}
}
