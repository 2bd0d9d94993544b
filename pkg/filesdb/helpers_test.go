package filesdb_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
	"github.com/calvinalkan/filesdb/pkg/fs"
)

var allModes = []filesdb.Mode{filesdb.ModeBlocking, filesdb.ModeSuspending}

func openTestDB(t *testing.T, cfg filesdb.Config) *filesdb.DB {
	t.Helper()

	if cfg.Root == "" {
		cfg.Root = t.TempDir()
	}

	db, err := filesdb.Open(t.Context(), cfg)
	if err != nil {
		t.Fatalf("Open(%q): %v", cfg.Root, err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func mustCreateTable(t *testing.T, db *filesdb.DB, name string, columns map[string]filesdb.ColumnType, key filesdb.KeyPolicy) {
	t.Helper()

	if err := db.CreateTable(t.Context(), name, columns, key); err != nil {
		t.Fatalf("CreateTable(%q): %v", name, err)
	}
}

func mustInsert(t *testing.T, db *filesdb.DB, table string, record filesdb.Record) string {
	t.Helper()

	id, err := db.Insert(t.Context(), table, record)
	if err != nil {
		t.Fatalf("Insert(%q, %v): %v", table, record, err)
	}

	return id
}

func mustFind(t *testing.T, db *filesdb.DB, table, condition string) []filesdb.Match {
	t.Helper()

	matches, err := db.Find(t.Context(), table, condition)
	if err != nil {
		t.Fatalf("Find(%q, %q): %v", table, condition, err)
	}

	return matches
}

func readIndexFile(t *testing.T, root, qualified string) []string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, qualified, ".json"))
	if err != nil {
		t.Fatalf("read index: %v", err)
	}

	var doc struct {
		FileIDs []string `json:"file_ids"`
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode index: %v", err)
	}

	return doc.FileIDs
}

func readMetaFile(t *testing.T, path string) map[string]any {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode meta: %v", err)
	}

	return doc
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()

	_, err := os.Stat(path)
	if err == nil {
		return true
	}

	if errors.Is(err, os.ErrNotExist) {
		return false
	}

	t.Fatalf("stat %s: %v", path, err)

	return false
}

func userColumns() map[string]filesdb.ColumnType {
	return map[string]filesdb.ColumnType{"id": filesdb.TypeInt, "first_name": filesdb.TypeText, "number": filesdb.TypeInt}
}

func newFaultyFS() *fs.Faulty {
	return fs.NewFaulty(fs.NewReal())
}
