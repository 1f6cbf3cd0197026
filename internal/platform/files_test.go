package platform

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalFiles_WriteCache(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	files := NewLocalFiles(dir)

	ref, err := files.WriteCache("export.json", []byte(`{"schema":1}`))
	if err != nil {
		t.Fatalf("WriteCache: %v", err)
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != `{"schema":1}` {
		t.Errorf("content = %q", data)
	}

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("cache dir holds %d entries, want 1", len(entries))
	}
}

func TestLocalFiles_ReadPicked(t *testing.T) {
	files := NewLocalFiles(t.TempDir())

	path := filepath.Join(t.TempDir(), "picked.json")
	if err := os.WriteFile(path, []byte("from path"), 0644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	t.Run("by path", func(t *testing.T) {
		data, err := files.ReadPicked(Picked{Path: path})
		if err != nil {
			t.Fatalf("ReadPicked: %v", err)
		}
		if string(data) != "from path" {
			t.Errorf("content = %q", data)
		}
	})

	t.Run("inline base64", func(t *testing.T) {
		inline := base64.StdEncoding.EncodeToString([]byte(`{"docs":[]}`))
		data, err := files.ReadPicked(Picked{InlineBase64: inline})
		if err != nil {
			t.Fatalf("ReadPicked: %v", err)
		}
		if string(data) != `{"docs":[]}` {
			t.Errorf("content = %q", data)
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		if _, err := files.ReadPicked(Picked{InlineBase64: "!!not base64!!"}); err == nil {
			t.Error("expected error for invalid base64")
		}
	})

	t.Run("empty pick", func(t *testing.T) {
		if _, err := files.ReadPicked(Picked{}); err == nil {
			t.Error("expected error for empty pick")
		}
	})
}

func TestChannelNotifier(t *testing.T) {
	n := NewChannelNotifier()

	n.NotifyOnline()
	select {
	case <-n.Online():
	default:
		t.Error("online signal not delivered")
	}

	n.NotifyAppState(false)
	select {
	case active := <-n.AppState():
		if active {
			t.Error("app state = true, want false")
		}
	default:
		t.Error("app state signal not delivered")
	}

	if err := n.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Closing twice must not panic.
	if err := n.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
