package filesdb

import (
	"context"
	"slices"
	"strings"
)

// Drift lists disagreements between a table's index and its directory.
type Drift struct {
	// MissingFiles are index entries without a record file.
	MissingFiles []string

	// OrphanFiles are record files the index does not list.
	OrphanFiles []string

	// Duplicates are identifiers listed more than once in the index.
	Duplicates []string
}

// Clean reports whether no drift was found.
func (d Drift) Clean() bool {
	return len(d.MissingFiles) == 0 && len(d.OrphanFiles) == 0 && len(d.Duplicates) == 0
}

// Verify compares table's index with the record files on disk. It reads only
// and repairs nothing. Orphans are reported in name order; missing files and
// duplicates in index order.
func (db *DB) Verify(ctx context.Context, table string) (drift Drift, err error) {
	release, err := db.begin(ctx)
	if err != nil {
		return Drift{}, withContext(err, "", "")
	}
	defer release()

	qualified := db.qualify(table)

	defer func() { err = withContext(err, qualified, "") }()

	if _, err := db.lookup(qualified); err != nil {
		return Drift{}, err
	}

	ids, err := db.readIndex(ctx, qualified)
	if err != nil {
		return Drift{}, err
	}

	entries, err := db.readDir(ctx, db.tableDir(qualified))
	if err != nil {
		return Drift{}, storageError(ctx, "listing table dir", err)
	}

	onDisk := make(map[string]bool, len(entries))

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == indexFileName || !strings.HasSuffix(name, recordExt) {
			continue
		}

		onDisk[strings.TrimSuffix(name, recordExt)] = true
	}

	listed := make(map[string]int, len(ids))

	for _, id := range ids {
		listed[id]++

		switch listed[id] {
		case 1:
			if !onDisk[id] {
				drift.MissingFiles = append(drift.MissingFiles, id)
			}
		case 2:
			drift.Duplicates = append(drift.Duplicates, id)
		}
	}

	for id := range onDisk {
		if listed[id] == 0 {
			drift.OrphanFiles = append(drift.OrphanFiles, id)
		}
	}

	slices.Sort(drift.OrphanFiles)

	if !drift.Clean() {
		db.log.Warn("index drift",
			"table", qualified,
			"missing", len(drift.MissingFiles),
			"orphans", len(drift.OrphanFiles),
			"duplicates", len(drift.Duplicates))
	}

	return drift, nil
}
