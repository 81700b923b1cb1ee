package postgres

import "gorm.io/gorm/clause"

// onConflictUpdateAll builds the ON CONFLICT (...) DO UPDATE clause every
// upsert in this package shares — the thing that actually gives
// InsertPoint/CacheInt their idempotence (spec.md §3's invariant).
func onConflictUpdateAll(keyColumns ...string) clause.OnConflict {
	cols := make([]clause.Column, len(keyColumns))
	for i, c := range keyColumns {
		cols[i] = clause.Column{Name: c}
	}
	return clause.OnConflict{
		Columns:   cols,
		UpdateAll: true,
	}
}
