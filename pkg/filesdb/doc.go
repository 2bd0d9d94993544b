// Package filesdb is an embedded record store that keeps every record in its
// own JSON file.
//
// A storage root holds one meta document describing all tables and one
// directory per table:
//
//	<root>/meta.json
//	<root>/TABLE_users/.json     {"file_ids": ["0", "1"]}
//	<root>/TABLE_users/0.json
//	<root>/TABLE_users/1.json
//
// Column types are INT and TEXT. Records are validated against the schema on
// insert. Each table names its files either by an auto-increment counter kept
// in the meta document or by the value of a natural key column. Queries take a
// single equality condition such as "name == Alice"; a query on the natural
// key reads one file, any other query scans the table in insertion order.
//
// Example:
//
//	db, err := filesdb.Open(ctx, filesdb.Config{Root: "data"})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	err = db.CreateTable(ctx, "users",
//	    map[string]filesdb.ColumnType{"id": filesdb.TypeInt, "name": filesdb.TypeText},
//	    filesdb.NaturalKey("id"))
//
//	_, err = db.Insert(ctx, "users", filesdb.Record{"id": 7, "name": "Alice"})
//	matches, err := db.Find(ctx, "users", "id == 7")
//
// All writes replace files atomically, but a record write and the index write
// that follows it are separate steps; [DB.Verify] reports any drift between
// them. There are no transactions and no multi-process coordination beyond
// the optional [Config.Exclusive] lock.
package filesdb
