package tokenstore

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/wrcelo/erpwebui/pkg/config"
)

// exerciseStore runs the behavior every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()

	if tok, ok := s.Get(); ok || tok != "" {
		t.Fatalf("new store should be empty, got %q, %v", tok, ok)
	}

	s.Set("abc")
	if tok, ok := s.Get(); !ok || tok != "abc" {
		t.Fatalf("Get() = %q, %v; want abc, true", tok, ok)
	}

	s.Set("def")
	if tok, _ := s.Get(); tok != "def" {
		t.Fatalf("Set should overwrite, got %q", tok)
	}

	s.Clear()
	if _, ok := s.Get(); ok {
		t.Fatal("store should be empty after Clear")
	}

	// Clearing twice is harmless.
	s.Clear()
	if _, ok := s.Get(); ok {
		t.Fatal("store should stay empty")
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_Concurrent(t *testing.T) {
	s := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set("tok")
		}()
		go func() {
			defer wg.Done()
			s.Get()
		}()
	}
	wg.Wait()
	if tok, _ := s.Get(); tok != "tok" {
		t.Errorf("unexpected token %q", tok)
	}
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "authToken")
	exerciseStore(t, NewFile(path, nil))
}

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authToken")

	NewFile(path, nil).Set("persisted")

	reopened := NewFile(path, nil)
	if tok, ok := reopened.Get(); !ok || tok != "persisted" {
		t.Fatalf("Get() after reopen = %q, %v", tok, ok)
	}
}

func TestFile_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "authToken")
	NewFile(path, nil).Set("secret")

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}
}

func TestFile_WhitespaceOnlyIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authToken")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := NewFile(path, nil).Get(); ok {
		t.Error("blank file should read as absent")
	}
}

func TestFile_UnreadableIsAbsent(t *testing.T) {
	// A directory where the file should be cannot be read as a token.
	path := t.TempDir()
	if _, ok := NewFile(path, nil).Get(); ok {
		t.Error("unreadable path should read as absent")
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(RedisOptions{Addr: mr.Addr(), Key: "test:token"}, nil)
	defer s.Close()

	exerciseStore(t, s)
}

func TestRedis_UsesFixedKeyWithoutTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(RedisOptions{Addr: mr.Addr()}, nil)
	defer s.Close()

	s.Set("abc")

	got, err := mr.Get("erp:authToken")
	if err != nil {
		t.Fatalf("key not written: %v", err)
	}
	if got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
	if ttl := mr.TTL("erp:authToken"); ttl != 0 {
		t.Errorf("expected no TTL, got %s", ttl)
	}
}

func TestRedis_UnavailableIsAbsent(t *testing.T) {
	mr := miniredis.RunT(t)
	s := NewRedis(RedisOptions{Addr: mr.Addr()}, nil)
	defer s.Close()

	s.Set("abc")
	mr.SetError("LOADING")

	if _, ok := s.Get(); ok {
		t.Error("storage failure should read as absent")
	}
}

func TestNew(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name    string
		cfg     config.TokenStoreConfig
		want    string
		wantErr bool
	}{
		{name: "memory", cfg: config.TokenStoreConfig{Backend: config.BackendMemory}, want: "*tokenstore.Memory"},
		{name: "file", cfg: config.TokenStoreConfig{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), "tok")}, want: "*tokenstore.File"},
		{name: "redis", cfg: config.TokenStoreConfig{Backend: config.BackendRedis, RedisAddr: mr.Addr()}, want: "*tokenstore.Redis"},
		{name: "redis without addr", cfg: config.TokenStoreConfig{Backend: config.BackendRedis}, wantErr: true},
		{name: "unknown", cfg: config.TokenStoreConfig{Backend: "cookie"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got := typeName(s); got != tt.want {
				t.Errorf("New() type = %s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *Memory:
		return "*tokenstore.Memory"
	case *File:
		return "*tokenstore.File"
	case *Redis:
		return "*tokenstore.Redis"
	default:
		return "unknown"
	}
}
