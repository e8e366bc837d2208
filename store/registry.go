package store

import (
	"github.com/riftdb/rift/rifterr"
)

// Reserved table numbers for bootstrap system tables (§3: "reserved fixed
// numbers and exists in every deployment"). User tables are numbered
// starting at firstUserTableNumber.
const (
	TablesTableNumber          uint16 = 1
	IndexesTableNumber         uint16 = 2
	SchemasTableNumber         uint16 = 3
	IndexBackfillsTableNumber  uint16 = 4
	ComponentsTableNumber      uint16 = 5
	ScheduledJobsTableNumber   uint16 = 6
	CronJobsTableNumber        uint16 = 7
	firstUserTableNumber       uint16 = 100
)

const (
	TablesTableName         = "_tables"
	IndexesTableName        = "_index"
	SchemasTableName        = "_schemas"
	IndexBackfillsTableName = "_index_backfills"
	ComponentsTableName     = "_components"
	ScheduledJobsTableName  = "_scheduled_jobs"
	CronJobsTableName       = "_cron_jobs"
)

// TableInfo is one entry of the table & index registry (C4): the mapping
// of logical table name to its stable physical identity.
type TableInfo struct {
	Name     string
	Number   uint16
	TabletID uint64
	System   bool
}

// TableMapping is the copy-on-write mapping held inside every Snapshot.
// Mutations always produce a new TableMapping; existing handles (and the
// snapshots that embed them) are left untouched, per §5 "Table mapping /
// index registry: copy-on-write, read-lock-free; only the committer
// mutates."
type TableMapping struct {
	byName     map[string]TableInfo
	byNumber   map[uint16]TableInfo
	nextNumber uint16
	nextTablet uint64
}

// NewTableMapping builds the initial mapping with every bootstrap table
// pre-registered, as every deployment requires (§3).
func NewTableMapping() TableMapping {
	tm := TableMapping{
		byName:     make(map[string]TableInfo),
		byNumber:   make(map[uint16]TableInfo),
		nextNumber: firstUserTableNumber,
		nextTablet: 1,
	}
	for _, t := range []struct {
		name string
		num  uint16
	}{
		{TablesTableName, TablesTableNumber},
		{IndexesTableName, IndexesTableNumber},
		{SchemasTableName, SchemasTableNumber},
		{IndexBackfillsTableName, IndexBackfillsTableNumber},
		{ComponentsTableName, ComponentsTableNumber},
		{ScheduledJobsTableName, ScheduledJobsTableNumber},
		{CronJobsTableName, CronJobsTableNumber},
	} {
		info := TableInfo{Name: t.name, Number: t.num, TabletID: tm.nextTablet, System: true}
		tm.byName[t.name] = info
		tm.byNumber[t.num] = info
		tm.nextTablet++
	}
	return tm
}

func (tm TableMapping) clone() TableMapping {
	out := TableMapping{
		byName:     make(map[string]TableInfo, len(tm.byName)),
		byNumber:   make(map[uint16]TableInfo, len(tm.byNumber)),
		nextNumber: tm.nextNumber,
		nextTablet: tm.nextTablet,
	}
	for k, v := range tm.byName {
		out.byName[k] = v
	}
	for k, v := range tm.byNumber {
		out.byNumber[k] = v
	}
	return out
}

// ByName looks up a table by its developer-visible name.
func (tm TableMapping) ByName(name string) (TableInfo, bool) {
	info, ok := tm.byName[name]
	return info, ok
}

// ByNumber looks up a table by its stable user-visible number.
func (tm TableMapping) ByNumber(number uint16) (TableInfo, bool) {
	info, ok := tm.byNumber[number]
	return info, ok
}

// CreateTable allocates a fresh table number and tablet id. The tablet id
// is never reused across the mapping's lifetime, per §4.4's invariant.
func (tm TableMapping) CreateTable(name string) (TableMapping, TableInfo, error) {
	if _, exists := tm.byName[name]; exists {
		return tm, TableInfo{}, rifterr.BadRequest(rifterr.CodeArgumentValidationError,
			"table %q already exists", name)
	}
	out := tm.clone()
	info := TableInfo{Name: name, Number: out.nextNumber, TabletID: out.nextTablet}
	out.nextNumber++
	out.nextTablet++
	out.byName[name] = info
	out.byNumber[info.Number] = info
	return out, info, nil
}

// RenameTable changes table_name but preserves tablet_id and table number,
// per §4.4's invariant.
func (tm TableMapping) RenameTable(oldName, newName string) (TableMapping, error) {
	info, ok := tm.byName[oldName]
	if !ok {
		return tm, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q does not exist", oldName)
	}
	if _, exists := tm.byName[newName]; exists {
		return tm, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "table %q already exists", newName)
	}
	out := tm.clone()
	delete(out.byName, oldName)
	info.Name = newName
	out.byName[newName] = info
	out.byNumber[info.Number] = info
	return out, nil
}

// DeleteTable removes a table from the mapping. Store.DeleteTable verifies
// the table holds no user documents before calling this.
func (tm TableMapping) DeleteTable(name string) (TableMapping, error) {
	info, ok := tm.byName[name]
	if !ok {
		return tm, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q does not exist", name)
	}
	if info.System {
		return tm, rifterr.BadRequest(rifterr.CodeReadOnlyTable, "table %q is a system table", name)
	}
	out := tm.clone()
	delete(out.byName, name)
	delete(out.byNumber, info.Number)
	return out, nil
}

// Tables returns every registered table, in no particular order.
func (tm TableMapping) Tables() []TableInfo {
	out := make([]TableInfo, 0, len(tm.byName))
	for _, info := range tm.byName {
		out = append(out, info)
	}
	return out
}
