package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "fleet.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func names(t *testing.T, r *Registry) []string {
	t.Helper()
	printers, err := r.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	out := make([]string, len(printers))
	for i, p := range printers {
		out[i] = p.Name
	}
	return out
}

func TestAddListRemove(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	if got := names(t, r); len(got) != 0 {
		t.Fatalf("new registry lists %v", got)
	}

	for _, p := range []struct{ name, ip string }{
		{"printer2", "127.0.0.3"},
		{"printer1", "127.0.0.1"},
	} {
		if err := r.Add(ctx, p.name, p.ip); err != nil {
			t.Fatalf("Add(%s): %v", p.name, err)
		}
	}
	got := names(t, r)
	if len(got) != 2 || got[0] != "printer1" || got[1] != "printer2" {
		t.Errorf("List = %v, want [printer1 printer2]", got)
	}

	if err := r.Remove(ctx, "printer1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	got = names(t, r)
	if len(got) != 1 || got[0] != "printer2" {
		t.Errorf("List after remove = %v, want [printer2]", got)
	}

	if err := r.Remove(ctx, "printer1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Remove = %v, want ErrNotFound", err)
	}
	if _, err := r.Get(ctx, "printer1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get removed = %v, want ErrNotFound", err)
	}
}

func TestAddReplacesAddress(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	r.Add(ctx, "lab", "10.0.0.1")
	if err := r.Add(ctx, "lab", "10.0.0.9"); err != nil {
		t.Fatalf("re-Add: %v", err)
	}
	p, err := r.Get(ctx, "lab")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if p.IP != "10.0.0.9" {
		t.Errorf("IP = %s, want 10.0.0.9", p.IP)
	}
	if len(names(t, r)) != 1 {
		t.Error("re-Add created a second row")
	}
}

func TestAddValidates(t *testing.T) {
	r := openTestRegistry(t)
	for _, tc := range []struct{ name, ip string }{
		{"", "10.0.0.1"},
		{"lab", "10.0.0"},
		{"lab", "not-an-ip"},
	} {
		if err := r.Add(context.Background(), tc.name, tc.ip); !errors.Is(err, protocol.ErrInvalidCommand) {
			t.Errorf("Add(%q, %q) = %v, want ErrInvalidCommand", tc.name, tc.ip, err)
		}
	}
}

func TestImportSeed(t *testing.T) {
	ctx := context.Background()
	r := openTestRegistry(t)

	path := filepath.Join(t.TempDir(), "config.txt")
	seed := `{
		// lab printers
		"b-printer": {"ip": "192.168.1.21"},
		"a-printer": {"ip": "192.168.1.20"},
		"broken": {"ip": "nowhere"},
	}`
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := r.ImportSeed(ctx, path)
	if err != nil {
		t.Fatalf("ImportSeed: %v", err)
	}
	if n != 2 {
		t.Errorf("imported %d printers, want 2", n)
	}
	got := names(t, r)
	if len(got) != 2 || got[0] != "a-printer" || got[1] != "b-printer" {
		t.Errorf("List = %v, want [a-printer b-printer]", got)
	}

	empty := filepath.Join(t.TempDir(), "empty.txt")
	os.WriteFile(empty, nil, 0o644)
	if n, err := r.ImportSeed(ctx, empty); err != nil || n != 0 {
		t.Errorf("ImportSeed(empty) = %d, %v", n, err)
	}

	if _, err := r.ImportSeed(ctx, filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("ImportSeed of a missing file succeeded")
	}
}
