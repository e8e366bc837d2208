package funrun

import (
	"time"

	"github.com/dop251/goja"
	"github.com/riftdb/rift/rifterr"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// syscallBridge wires the `db` global into a running VM's transaction,
// marshaling JS values to and from value.Value and recording every call
// into the VM's SyscallTrace, per §4.13's syscall bridge description.
type syscallBridge struct {
	txn      *store.Transaction
	tableOf  map[string]uint16 // table name -> number, for index lookups by name
	readOnly bool
}

func newSyscallBridge(txn *store.Transaction, tableOf map[string]uint16, kind Kind) *syscallBridge {
	return &syscallBridge{txn: txn, tableOf: tableOf, readOnly: kind.ReadOnly()}
}

func (b *syscallBridge) install(vm *VM) {
	db := vm.rt.NewObject()
	_ = db.Set("get", vm.wrapSyscall("db.get", b.get))
	_ = db.Set("insert", vm.wrapSyscall("db.insert", b.insert))
	_ = db.Set("patch", vm.wrapSyscall("db.patch", b.patch))
	_ = db.Set("replace", vm.wrapSyscall("db.replace", b.replace))
	_ = db.Set("delete", vm.wrapSyscall("db.delete", b.delete))
	_ = db.Set("query", vm.wrapSyscall("db.query", b.query))
	_ = vm.rt.Set("db", db)
}

// wrapSyscall times the call and appends it (success or failure) to the
// VM's syscall trace, the raw data the outcome's SyscallTrace exposes.
func (vm *VM) wrapSyscall(name string, fn func(goja.FunctionCall, *VM) (goja.Value, error)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		start := time.Now()
		result, err := fn(call, vm)
		vm.trace = append(vm.trace, SyscallCall{Name: name, Duration: time.Since(start), Err: err})
		if err != nil {
			panic(vm.rt.NewGoError(err))
		}
		if result == nil {
			return goja.Undefined()
		}
		return result
	}
}

func (b *syscallBridge) checkWrite() error {
	if b.readOnly {
		return &rifterr.Error{Code: rifterr.CodeReadOnlyFunction, Category: rifterr.CategoryForbidden, Message: "queries may not perform writes"}
	}
	return nil
}

func argString(call goja.FunctionCall, i int) (string, bool) {
	if i >= len(call.Arguments) {
		return "", false
	}
	s, ok := call.Arguments[i].Export().(string)
	return s, ok
}

func (b *syscallBridge) get(call goja.FunctionCall, vm *VM) (goja.Value, error) {
	idStr, ok := argString(call, 0)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.get requires a document id string")
	}
	id, ok := value.ParseDocumentID(idStr)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeInvalidId, "malformed document id %q", idStr)
	}
	doc, err := b.txn.Get(id)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return goja.Null(), nil
	}
	return docToJS(vm, doc), nil
}

func (b *syscallBridge) insert(call goja.FunctionCall, vm *VM) (goja.Value, error) {
	if err := b.checkWrite(); err != nil {
		return nil, err
	}
	table, ok := argString(call, 0)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.insert requires a table name")
	}
	if len(call.Arguments) < 2 {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.insert requires a document value")
	}
	v, err := toValue(call.Arguments[1])
	if err != nil {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "%v", err)
	}
	tableNumber, ok := b.tableOf[table]
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q not found", table)
	}
	id := value.NewDocumentID(tableNumber)
	if err := b.txn.Insert(table, id, v); err != nil {
		return nil, err
	}
	return vm.rt.ToValue(id.String()), nil
}

func (b *syscallBridge) patch(call goja.FunctionCall, vm *VM) (goja.Value, error) {
	if err := b.checkWrite(); err != nil {
		return nil, err
	}
	idStr, ok := argString(call, 0)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.patch requires a document id string")
	}
	id, ok := value.ParseDocumentID(idStr)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeInvalidId, "malformed document id %q", idStr)
	}
	if len(call.Arguments) < 2 {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.patch requires a fields object")
	}
	v, err := toValue(call.Arguments[1])
	if err != nil {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "%v", err)
	}
	fields, _ := v.AsFields()
	if err := b.txn.Patch(id, fields); err != nil {
		return nil, err
	}
	return goja.Undefined(), nil
}

func (b *syscallBridge) replace(call goja.FunctionCall, vm *VM) (goja.Value, error) {
	if err := b.checkWrite(); err != nil {
		return nil, err
	}
	idStr, ok := argString(call, 0)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.replace requires a document id string")
	}
	id, ok := value.ParseDocumentID(idStr)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeInvalidId, "malformed document id %q", idStr)
	}
	if len(call.Arguments) < 2 {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.replace requires a document value")
	}
	v, err := toValue(call.Arguments[1])
	if err != nil {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "%v", err)
	}
	if err := b.txn.Replace(id, v); err != nil {
		return nil, err
	}
	return goja.Undefined(), nil
}

func (b *syscallBridge) delete(call goja.FunctionCall, vm *VM) (goja.Value, error) {
	if err := b.checkWrite(); err != nil {
		return nil, err
	}
	idStr, ok := argString(call, 0)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.delete requires a document id string")
	}
	id, ok := value.ParseDocumentID(idStr)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeInvalidId, "malformed document id %q", idStr)
	}
	if err := b.txn.Delete(id); err != nil {
		return nil, err
	}
	return goja.Undefined(), nil
}

// query performs a database-index range scan, the only read pattern
// available to user functions beyond direct db.get (§4.5's secondary
// database indexes). Text and vector search indexes are not reachable
// through db.query, and the bridge installs no search syscall.
//
// JS signature: db.query(tableName, indexName, {lo, hi, reverse, limit}),
// where lo/hi are arrays of values matching the index's declared field
// prefix (omit trailing fields for an open range).
func (b *syscallBridge) query(call goja.FunctionCall, vm *VM) (goja.Value, error) {
	table, ok := argString(call, 0)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.query requires a table name")
	}
	indexName, ok := argString(call, 1)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeArgumentValidationError, "db.query requires an index name")
	}
	tableNumber, ok := b.tableOf[table]
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeTableDoesNotExist, "table %q not found", table)
	}
	meta, ok := b.txn.Snapshot().Indexes.ByName(tableNumber, indexName)
	if !ok {
		return nil, rifterr.BadRequest(rifterr.CodeIndexNotFound, "index %q not found on table %q", indexName, table)
	}

	lo, hi := []byte{}, unboundedHi
	reverse := false
	limit := 100
	if len(call.Arguments) > 2 {
		opts := call.Arguments[2].ToObject(vm.rt)
		if v := opts.Get("lo"); v != nil && !goja.IsUndefined(v) {
			k, err := encodeKeyPrefix(v)
			if err != nil {
				return nil, err
			}
			lo = k
		}
		if v := opts.Get("hi"); v != nil && !goja.IsUndefined(v) {
			k, err := encodeKeyPrefix(v)
			if err != nil {
				return nil, err
			}
			hi = append(k, 0xFF)
		}
		if v := opts.Get("reverse"); v != nil && !goja.IsUndefined(v) {
			reverse, _ = v.Export().(bool)
		}
		if v := opts.Get("limit"); v != nil && !goja.IsUndefined(v) {
			if n, ok := v.Export().(int64); ok {
				limit = int(n)
			}
		}
	}

	docs, err := b.txn.GetIndexRange(meta.ID, store.KeyRange{Lo: lo, Hi: hi}, reverse, limit)
	if err != nil {
		return nil, err
	}
	out := make([]goja.Value, len(docs))
	for i, d := range docs {
		out[i] = docToJS(vm, d)
	}
	return vm.rt.ToValue(out), nil
}

var unboundedHi = []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func encodeKeyPrefix(v goja.Value) ([]byte, error) {
	val, err := toValue(v)
	if err != nil {
		return nil, err
	}
	elems, ok := val.AsElements()
	if !ok {
		elems = []value.Value{val}
	}
	var key []byte
	for _, e := range elems {
		key = append(key, value.EncodeIndexKey(e)...)
	}
	return key, nil
}

func docToJS(vm *VM, doc *store.Document) goja.Value {
	obj := newObject(vm.rt, doc.Value)
	_ = obj.Set("_id", doc.ID.String())
	_ = obj.Set("_creationTime", doc.CreationTime)
	return obj
}
