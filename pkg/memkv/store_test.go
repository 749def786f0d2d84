package memkv

import (
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	if !s.Set("a", []byte("1"), 0) {
		t.Fatalf("Set: want created=true")
	}
	if s.Set("a", []byte("2"), 0) {
		t.Fatalf("Set overwrite: want created=false")
	}
	v, ok := s.Get("a")
	if !ok || string(v) != "2" {
		t.Fatalf("Get: got %q ok=%v, want 2 true", v, ok)
	}
	if !s.Delete("a") {
		t.Fatalf("Delete: want true")
	}
	if _, ok := s.Get("a"); ok {
		t.Fatalf("Get after delete: want miss")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k", []byte("abc"), 0)
	v, _ := s.Get("k")
	v[0] = 'X'
	v2, _ := s.Get("k")
	if string(v2) != "abc" {
		t.Fatalf("stored value mutated through Get result: %q", v2)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := New(Options{SweepInterval: 10 * time.Millisecond})
	defer s.Close()
	now := time.Now()
	s.nowFn = func() time.Time { return now }

	s.Set("k", []byte("v"), 50*time.Millisecond)
	if _, ok := s.Get("k"); !ok {
		t.Fatalf("key should be live before TTL")
	}
	now = now.Add(60 * time.Millisecond)
	if _, ok := s.Get("k"); ok {
		t.Fatalf("key should be expired after TTL")
	}
}

func TestGetDel(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k", []byte("v"), 0)
	v, ok := s.GetDel("k")
	if !ok || string(v) != "v" {
		t.Fatalf("GetDel: got %q ok=%v", v, ok)
	}
	if _, ok := s.GetDel("k"); ok {
		t.Fatalf("second GetDel should miss")
	}
}

func TestUpdate(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	if s.Update("missing", func(old []byte) []byte { return old }) {
		t.Fatalf("Update on missing key: want false")
	}
	s.Set("k", []byte("a"), 0)
	ok := s.Update("k", func(old []byte) []byte { return append(old, 'b') })
	if !ok {
		t.Fatalf("Update: want true")
	}
	v, _ := s.Get("k")
	if string(v) != "ab" {
		t.Fatalf("after Update: got %q, want ab", v)
	}
}

func TestKeysPrefix(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("outbox/1", []byte("x"), 0)
	s.Set("outbox/2", []byte("y"), 0)
	s.Set("other", []byte("z"), 0)

	keys := s.Keys("outbox/")
	if len(keys) != 2 {
		t.Fatalf("Keys: got %v, want 2 entries", keys)
	}
}

func TestExpireAndTTL(t *testing.T) {
	s := New(Options{})
	defer s.Close()

	s.Set("k", []byte("v"), 0)
	if d, ok := s.TTL("k"); !ok || d != 0 {
		t.Fatalf("TTL without expiry: got %v ok=%v", d, ok)
	}
	if !s.Expire("k", time.Hour) {
		t.Fatalf("Expire: want true")
	}
	d, ok := s.TTL("k")
	if !ok || d <= 0 || d > time.Hour {
		t.Fatalf("TTL after Expire: got %v ok=%v", d, ok)
	}
	if s.Expire("missing", time.Hour) {
		t.Fatalf("Expire on missing key: want false")
	}
}
