// Package storage provides unit tests for the local key-value store.
package storage

import (
	"strings"
	"testing"

	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/crypto"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// TestPutGet verifies a basic round-trip.
func TestPutGet(t *testing.T) {
	store := openTestStore(t)

	if err := store.Put("k1", []byte(`{"a":1}`), 100); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	value, ok, err := store.Get("k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected key to exist")
	}
	if string(value) != `{"a":1}` {
		t.Errorf("Get = %q, want '{\"a\":1}'", value)
	}
}

// TestGetMissing verifies absent keys are reported, not errored.
func TestGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get("missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("Expected missing key")
	}
}

// TestPutOverwrite verifies last-writer-wins at the key level.
func TestPutOverwrite(t *testing.T) {
	store := openTestStore(t)

	store.Put("k", []byte("first"), 1)
	store.Put("k", []byte("second"), 2)

	value, _, err := store.Get("k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(value) != "second" {
		t.Errorf("Get = %q, want 'second'", value)
	}
}

// TestDelete verifies removal and idempotency.
func TestDelete(t *testing.T) {
	store := openTestStore(t)

	store.Put("k", []byte("v"), 1)
	if err := store.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, ok, _ := store.Get("k")
	if ok {
		t.Error("Expected key to be gone")
	}

	if err := store.Delete("k"); err != nil {
		t.Errorf("Deleting absent key should not error, got %v", err)
	}
}

// TestJSONRoundTrip verifies the typed helpers.
func TestJSONRoundTrip(t *testing.T) {
	store := openTestStore(t)

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := store.PutJSON("p", payload{Name: "aspirin", Count: 2}, 10); err != nil {
		t.Fatalf("PutJSON failed: %v", err)
	}

	var out payload
	ok, err := store.GetJSON("p", &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected key to exist")
	}
	if out.Name != "aspirin" || out.Count != 2 {
		t.Errorf("GetJSON = %+v, want {aspirin 2}", out)
	}
}

// TestGetJSONMissing verifies dest is untouched for absent keys.
func TestGetJSONMissing(t *testing.T) {
	store := openTestStore(t)

	out := 42
	ok, err := store.GetJSON("missing", &out)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if ok {
		t.Error("Expected missing key")
	}
	if out != 42 {
		t.Error("Expected dest untouched for missing key")
	}
}

// TestKeyFamilies verifies the user-namespaced key builders.
func TestKeyFamilies(t *testing.T) {
	if HistoryKey("u1") != "offline_history_u1" {
		t.Errorf("HistoryKey = %q", HistoryKey("u1"))
	}
	if LastSyncKey("u1") != "last_sync_time_u1" {
		t.Errorf("LastSyncKey = %q", LastSyncKey("u1"))
	}
	if QueueKey != "sync_queue" {
		t.Errorf("QueueKey = %q", QueueKey)
	}
}

// TestPersistenceAcrossReopen verifies data survives a close/reopen cycle.
func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	store.Put("k", []byte("durable"), 1)
	store.Close()

	store2, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer store2.Close()

	value, ok, err := store2.Get("k")
	if err != nil || !ok {
		t.Fatalf("Get after reopen: ok=%v err=%v", ok, err)
	}
	if string(value) != "durable" {
		t.Errorf("Get = %q, want 'durable'", value)
	}
}

// TestEncryptedStore verifies values are unreadable in the database yet
// transparent through the API, and that pre-encryption rows still load.
func TestEncryptedStore(t *testing.T) {
	dir := t.TempDir()
	key := crypto.GetDeviceKey("test-device")

	plain, err := Open(dir)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	if err := plain.Put("legacy", []byte(`{"old":true}`), 1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	plain.Close()

	store, err := Open(dir, WithEncryptionKey(key))
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer store.Close()

	t.Run("Roundtrip", func(t *testing.T) {
		if err := store.Put("secret", []byte(`{"med_id":"med-1"}`), 2); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, ok, err := store.Get("secret")
		if err != nil || !ok {
			t.Fatalf("Get failed: ok=%v err=%v", ok, err)
		}
		if string(got) != `{"med_id":"med-1"}` {
			t.Errorf("Get = %q", got)
		}
	})

	t.Run("CiphertextAtRest", func(t *testing.T) {
		var raw string
		err := store.db.QueryRow("SELECT value FROM kv_cache WHERE key = ?", "secret").Scan(&raw)
		if err != nil {
			t.Fatalf("Raw read failed: %v", err)
		}
		if strings.Contains(raw, "med-1") {
			t.Error("Stored value holds plaintext")
		}
	})

	t.Run("PlaintextFallback", func(t *testing.T) {
		got, ok, err := store.Get("legacy")
		if err != nil || !ok {
			t.Fatalf("Get failed: ok=%v err=%v", ok, err)
		}
		if string(got) != `{"old":true}` {
			t.Errorf("Get = %q", got)
		}
	})
}
