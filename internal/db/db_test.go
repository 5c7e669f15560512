package db

import (
	"path/filepath"
	"testing"

	"github.com/fabler/fabler/internal/models"
)

func TestRoomPath(t *testing.T) {
	got := RoomPath("data", "12345")
	want := filepath.Join("data", "room_12345.db")
	if got != want {
		t.Errorf("RoomPath = %q, want %q", got, want)
	}
}

func TestSetup_SeedsBaseRows(t *testing.T) {
	gdb, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Setup(gdb); err != nil {
		t.Fatalf("setup: %v", err)
	}

	var narrator models.User
	if err := gdb.First(&narrator, models.NarratorUserID).Error; err != nil {
		t.Fatalf("narrator user missing: %v", err)
	}
	if narrator.Name != "Narrator" {
		t.Errorf("narrator name = %q", narrator.Name)
	}

	var games int64
	if err := gdb.Model(&models.Game{}).Count(&games).Error; err != nil {
		t.Fatalf("count games: %v", err)
	}
	if games != 1 {
		t.Errorf("games = %d, want 1", games)
	}

	v, err := Version(gdb)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != models.CurrentSchemaVersion {
		t.Errorf("version = %d, want %d", v, models.CurrentSchemaVersion)
	}
}

func TestSetup_Idempotent(t *testing.T) {
	gdb, err := OpenMemory()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := Setup(gdb); err != nil {
			t.Fatalf("setup round %d: %v", i, err)
		}
	}

	var games int64
	gdb.Model(&models.Game{}).Count(&games)
	if games != 1 {
		t.Errorf("games = %d after repeated setup, want 1", games)
	}
	var users int64
	gdb.Model(&models.User{}).Count(&users)
	if users != 1 {
		t.Errorf("users = %d after repeated setup, want 1", users)
	}
}

func TestOpen_CreatesFile(t *testing.T) {
	dir := t.TempDir()
	path := RoomPath(dir, "guild1")
	gdb, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := Setup(gdb); err != nil {
		t.Fatalf("setup: %v", err)
	}
}
