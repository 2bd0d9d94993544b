package filesdb_test

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/filesdb/pkg/filesdb"
	"github.com/calvinalkan/filesdb/pkg/fs"
)

func Test_Insert_Assigns_Sequential_IDs_When_Table_Is_AutoIncrement(t *testing.T) {
	t.Parallel()

	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			db := openTestDB(t, filesdb.Config{Root: root, Mode: mode})
			mustCreateTable(t, db, "log", map[string]filesdb.ColumnType{"msg": filesdb.TypeText}, filesdb.KeyPolicy{})

			const n = 5

			var got []string
			for i := range n {
				got = append(got, mustInsert(t, db, "log", filesdb.Record{"msg": "m" + strconv.Itoa(i)}))
			}

			want := []string{"0", "1", "2", "3", "4"}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(want, readIndexFile(t, root, "TABLE_log")); diff != "" {
				t.Fatalf("index mismatch (-want +got):\n%s", diff)
			}

			require.NoError(t, db.Close())

			// Reconnect continues where the counter left off.
			db = openTestDB(t, filesdb.Config{Root: root, Mode: mode})

			if got, want := mustInsert(t, db, "log", filesdb.Record{"msg": "after"}), "5"; got != want {
				t.Fatalf("id after reconnect=%q, want=%q", got, want)
			}
		})
	}
}

func Test_Insert_Starts_At_Given_Value_When_AutoIncrement_Has_Start(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, filesdb.Config{})
	mustCreateTable(t, db, "log", map[string]filesdb.ColumnType{"msg": filesdb.TypeText}, filesdb.AutoIncrement(100))

	if got, want := mustInsert(t, db, "log", filesdb.Record{"msg": "a"}), "100"; got != want {
		t.Fatalf("id=%q, want=%q", got, want)
	}

	if got, want := mustInsert(t, db, "log", filesdb.Record{"msg": "b"}), "101"; got != want {
		t.Fatalf("id=%q, want=%q", got, want)
	}
}

func Test_Insert_Continues_From_Start_When_Meta_Has_No_Generator_State(t *testing.T) {
	t.Parallel()

	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			dir := filepath.Join(root, "TABLE_log")
			require.NoError(t, os.MkdirAll(dir, 0o755))

			for _, id := range []string{"0", "1", "2"} {
				require.NoError(t, os.WriteFile(filepath.Join(dir, id+".json"), []byte(`{"msg": "old"}`), 0o644))
			}

			require.NoError(t, os.WriteFile(filepath.Join(dir, ".json"), []byte(`{"file_ids": ["0", "1", "2"]}`), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(root, "meta.json"),
				[]byte(`{"tables": ["TABLE_log"], "TABLE_log": {"columns": {"msg": "TEXT"}, "id_field": 3}}`), 0o644))

			db := openTestDB(t, filesdb.Config{Root: root, Mode: mode})

			if got, want := mustInsert(t, db, "log", filesdb.Record{"msg": "new"}), "3"; got != want {
				t.Fatalf("id=%q, want=%q", got, want)
			}

			if got, want := len(mustFind(t, db, "log", "msg == old")), 3; got != want {
				t.Fatalf("old records=%d, want=%d", got, want)
			}

			if diff := cmp.Diff([]string{"0", "1", "2", "3"}, readIndexFile(t, root, "TABLE_log")); diff != "" {
				t.Fatalf("index mismatch (-want +got):\n%s", diff)
			}

			entry, ok := readMetaFile(t, filepath.Join(root, "meta.json"))["TABLE_log"].(map[string]any)
			require.True(t, ok)

			if got, want := entry["generator_state"], float64(4); got != want {
				t.Fatalf("generator_state=%v, want=%v", got, want)
			}
		})
	}
}

func Test_Insert_Starts_At_ID_Field_When_Meta_Override_Omits_Generator_State(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "TABLE_log"), 0o755))

	db := openTestDB(t, filesdb.Config{Root: root, Meta: map[string]any{
		"tables": []any{"TABLE_log"},
		"TABLE_log": map[string]any{
			"columns":  map[string]any{"msg": "TEXT"},
			"id_field": 3,
		},
	}})

	for _, want := range []string{"3", "4"} {
		if got := mustInsert(t, db, "log", filesdb.Record{"msg": "m"}); got != want {
			t.Fatalf("id=%q, want=%q", got, want)
		}
	}
}

func Test_Insert_Stores_Record_Under_Natural_Key_When_Table_Has_Key_Column(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	db := openTestDB(t, filesdb.Config{Root: root})
	mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

	id := mustInsert(t, db, "users", filesdb.Record{"id": 7, "first_name": "Ann", "number": 3})

	if got, want := id, "7"; got != want {
		t.Fatalf("id=%q, want=%q", got, want)
	}

	data, err := os.ReadFile(filepath.Join(root, "TABLE_users", "7.json"))
	require.NoError(t, err)

	if got, want := string(data), `{"first_name":"Ann","id":7,"number":3}`; got != want {
		t.Fatalf("record file=%s, want=%s", got, want)
	}
}

func Test_Insert_Overwrites_Without_Duplicate_Index_Entry_When_Natural_Key_Repeats(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	db := openTestDB(t, filesdb.Config{Root: root})
	mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

	mustInsert(t, db, "users", filesdb.Record{"id": 1, "first_name": "Old", "number": 3})
	mustInsert(t, db, "users", filesdb.Record{"id": 2, "first_name": "Two", "number": 3})
	mustInsert(t, db, "users", filesdb.Record{"id": 1, "first_name": "New", "number": 5})

	if diff := cmp.Diff([]string{"1", "2"}, readIndexFile(t, root, "TABLE_users")); diff != "" {
		t.Fatalf("index mismatch (-want +got):\n%s", diff)
	}

	got := mustFind(t, db, "users", "id == 1")
	want := []filesdb.Match{{ID: "1", Record: filesdb.Record{"id": int64(1), "first_name": "New", "number": int64(5)}}}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("find mismatch (-want +got):\n%s", diff)
	}
}

func Test_Insert_Rejects_Record_When_Fields_Do_Not_Match_Schema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		record  filesdb.Record
		wantErr error
		column  string
	}{
		{name: "UnknownField", record: filesdb.Record{"id": 1, "email": "a@b"}, wantErr: filesdb.ErrColumnNotFound, column: "email"},
		{name: "StringForInt", record: filesdb.Record{"id": "1"}, wantErr: filesdb.ErrRecordTypeMismatch, column: "id"},
		{name: "FractionalForInt", record: filesdb.Record{"id": 1.5}, wantErr: filesdb.ErrRecordTypeMismatch, column: "id"},
		{name: "BoolForInt", record: filesdb.Record{"id": 1, "number": true}, wantErr: filesdb.ErrRecordTypeMismatch, column: "number"},
		{name: "IntForText", record: filesdb.Record{"id": 1, "first_name": 5}, wantErr: filesdb.ErrRecordTypeMismatch, column: "first_name"},
		{name: "MissingNaturalKey", record: filesdb.Record{"first_name": "x"}, wantErr: filesdb.ErrRecordTypeMismatch, column: "id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			db := openTestDB(t, filesdb.Config{Root: root})
			mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

			_, err := db.Insert(t.Context(), "users", tt.record)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v, want %v", err, tt.wantErr)
			}

			var fErr *filesdb.Error
			require.ErrorAs(t, err, &fErr)

			if got, want := fErr.Column, tt.column; got != want {
				t.Fatalf("Column=%q, want=%q", got, want)
			}

			if ids := readIndexFile(t, root, "TABLE_users"); len(ids) != 0 {
				t.Fatalf("index=%v, want empty after rejected insert", ids)
			}
		})
	}
}

func Test_Insert_Accepts_Integral_Float_When_Column_Is_Int(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, filesdb.Config{})
	mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

	id := mustInsert(t, db, "users", filesdb.Record{"id": 4.0, "number": uint8(9)})

	if got, want := id, "4"; got != want {
		t.Fatalf("id=%q, want=%q", got, want)
	}
}

func Test_Insert_Returns_ErrTableNotFound_When_Table_Is_Unknown(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, filesdb.Config{})

	_, err := db.Insert(t.Context(), "ghost", filesdb.Record{"a": 1})
	if !errors.Is(err, filesdb.ErrTableNotFound) {
		t.Fatalf("err=%v, want %v", err, filesdb.ErrTableNotFound)
	}
}

func Test_Insert_Returns_ErrInvalidName_When_Natural_Key_Is_Not_A_File_Name(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, filesdb.Config{})
	mustCreateTable(t, db, "pages", map[string]filesdb.ColumnType{"slug": filesdb.TypeText}, filesdb.NaturalKey("slug"))

	for _, slug := range []string{"", "..", "a/b"} {
		_, err := db.Insert(t.Context(), "pages", filesdb.Record{"slug": slug})
		if !errors.Is(err, filesdb.ErrInvalidName) {
			t.Fatalf("Insert(slug=%q): err=%v, want %v", slug, err, filesdb.ErrInvalidName)
		}
	}
}

func Test_Insert_Leaves_Orphan_Record_When_Index_Write_Fails(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	fsys := newFaultyFS()
	db := openTestDB(t, filesdb.Config{Root: root, FS: fsys})
	mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

	fsys.Add(fs.Fault{Op: fs.OpWriteFileAtomic, PathSuffix: string(filepath.Separator) + ".json", Times: 1})

	_, err := db.Insert(t.Context(), "users", filesdb.Record{"id": 3, "first_name": "X"})
	if !errors.Is(err, filesdb.ErrStorageUnavailable) {
		t.Fatalf("err=%v, want %v", err, filesdb.ErrStorageUnavailable)
	}

	if !fs.IsInjected(err) {
		t.Fatalf("err=%v, want injected fault in chain", err)
	}

	if !fileExists(t, filepath.Join(root, "TABLE_users", "3.json")) {
		t.Fatal("record file missing; want it written before the index")
	}

	drift, err := db.Verify(t.Context(), "users")
	require.NoError(t, err)

	want := filesdb.Drift{OrphanFiles: []string{"3"}}
	if diff := cmp.Diff(want, drift); diff != "" {
		t.Fatalf("drift mismatch (-want +got):\n%s", diff)
	}
}

func Test_Insert_Skips_ID_When_Record_Write_Fails_After_Counter_Advanced(t *testing.T) {
	t.Parallel()

	fsys := newFaultyFS()
	db := openTestDB(t, filesdb.Config{FS: fsys})
	mustCreateTable(t, db, "log", map[string]filesdb.ColumnType{"msg": filesdb.TypeText}, filesdb.AutoIncrement(0))

	fsys.Add(fs.Fault{Op: fs.OpWriteFileAtomic, PathSuffix: "0.json", Times: 1})

	_, err := db.Insert(t.Context(), "log", filesdb.Record{"msg": "lost"})
	require.ErrorIs(t, err, filesdb.ErrStorageUnavailable)

	if got, want := mustInsert(t, db, "log", filesdb.Record{"msg": "kept"}), "1"; got != want {
		t.Fatalf("id=%q, want=%q (a failed write must not reuse its id)", got, want)
	}
}

func Test_Update_Replaces_Record_When_ID_Exists(t *testing.T) {
	t.Parallel()

	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			db := openTestDB(t, filesdb.Config{Root: root, Mode: mode})
			mustCreateTable(t, db, "users", userColumns(), filesdb.KeyPolicy{})

			mustInsert(t, db, "users", filesdb.Record{"first_name": "A", "number": 8})
			id := mustInsert(t, db, "users", filesdb.Record{"first_name": "B", "number": 8})

			newRecord := filesdb.Record{"first_name": "B2", "number": int64(8), "extra": "not in schema"}
			require.NoError(t, db.Update(t.Context(), "users", id, newRecord))

			got := mustFind(t, db, "users", "number == 8")
			want := []filesdb.Match{
				{ID: "0", Record: filesdb.Record{"first_name": "A", "number": int64(8)}},
				{ID: "1", Record: newRecord},
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("find mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff([]string{"0", "1"}, readIndexFile(t, root, "TABLE_users")); diff != "" {
				t.Fatalf("index changed by update (-want +got):\n%s", diff)
			}
		})
	}
}

func Test_Update_Returns_Error_When_Target_Is_Invalid(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, filesdb.Config{})
	mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

	err := db.Update(t.Context(), "ghost", "1", filesdb.Record{})
	require.ErrorIs(t, err, filesdb.ErrTableNotFound)

	err = db.Update(t.Context(), "users", "../x", filesdb.Record{})
	require.ErrorIs(t, err, filesdb.ErrInvalidName)

	err = db.Update(t.Context(), "users", "1", filesdb.Record{"ch": make(chan int)})
	require.ErrorIs(t, err, filesdb.ErrRecordTypeMismatch)
}

func Test_Delete_Removes_Record_And_Index_Entry_When_Record_Exists(t *testing.T) {
	t.Parallel()

	for _, mode := range allModes {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			db := openTestDB(t, filesdb.Config{Root: root, Mode: mode})
			mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

			mustInsert(t, db, "users", filesdb.Record{"id": 1, "first_name": "A"})
			mustInsert(t, db, "users", filesdb.Record{"id": 2, "first_name": "B"})

			require.NoError(t, db.Delete(t.Context(), "users", "1"))

			if got := mustFind(t, db, "users", "first_name == A"); len(got) != 0 {
				t.Fatalf("find after delete=%v, want empty", got)
			}

			if diff := cmp.Diff([]string{"2"}, readIndexFile(t, root, "TABLE_users")); diff != "" {
				t.Fatalf("index mismatch (-want +got):\n%s", diff)
			}

			err := db.Delete(t.Context(), "users", "1")
			if !errors.Is(err, filesdb.ErrRecordNotFound) {
				t.Fatalf("second delete: err=%v, want %v", err, filesdb.ErrRecordNotFound)
			}

			var fErr *filesdb.Error
			require.ErrorAs(t, err, &fErr)

			if got, want := fErr.FileID, "1"; got != want {
				t.Fatalf("FileID=%q, want=%q", got, want)
			}
		})
	}
}

func Test_Delete_Succeeds_When_Record_Was_Never_Indexed(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	db := openTestDB(t, filesdb.Config{Root: root})
	mustCreateTable(t, db, "users", userColumns(), filesdb.NaturalKey("id"))

	// Update creates a file without touching the index.
	require.NoError(t, db.Update(t.Context(), "users", "9", filesdb.Record{"id": 9}))
	require.NoError(t, db.Delete(t.Context(), "users", "9"))

	if fileExists(t, filepath.Join(root, "TABLE_users", "9.json")) {
		t.Fatal("record file still present after delete")
	}
}
