// Package scheduler implements the persistent job queue and cron engine
// (C14): two bootstrap tables (_scheduled_jobs, _cron_jobs) holding
// ordinary documents, a worker that leases the next due job, invokes the
// function runtime, and transitions it to a terminal state, and a
// periodic tick that promotes due cron entries into concrete job rows.
package scheduler

import (
	"github.com/riftdb/rift/funrun"
	"github.com/riftdb/rift/store"
	"github.com/riftdb/rift/value"
)

// State is a scheduled job's lifecycle position (§4.14).
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateFailed   State = "failed"
	StateCanceled State = "canceled"
)

const (
	ScheduledJobsIndexByTS = "by_scheduled_ts"
	CronJobsIndexByNextRun = "by_next_run"
)

// Job is one row of _scheduled_jobs: a function reference, its
// arguments, the timestamp it becomes eligible to run, and the worker's
// bookkeeping (attempts, last error, state).
type Job struct {
	ID          value.DocumentID
	Function    funrun.Source
	Args        value.Value
	ScheduledTS int64
	Kind        funrun.Kind
	State       State
	Attempts    int
	LastError   string
	CronID      string // set when this job was promoted from a cron entry
}

// CronEntry is one row of _cron_jobs: a recurring function invocation
// fired every IntervalMillis, tracked by the next timestamp it is due.
type CronEntry struct {
	ID             value.DocumentID
	Function       funrun.Source
	Args           value.Value
	Kind           funrun.Kind
	IntervalMillis int64
	NextRunTS      int64
	Enabled        bool
}

func jobToValue(j Job) value.Value {
	return value.Object(
		value.Field{Key: "module_specifier", Val: value.String(j.Function.ModuleSpecifier)},
		value.Field{Key: "module_source", Val: value.String(j.Function.ModuleSource)},
		value.Field{Key: "export_name", Val: value.String(j.Function.ExportName)},
		value.Field{Key: "args", Val: j.Args},
		value.Field{Key: "scheduled_ts", Val: value.Int64(j.ScheduledTS)},
		value.Field{Key: "kind", Val: value.Int64(int64(j.Kind))},
		value.Field{Key: "state", Val: value.String(string(j.State))},
		value.Field{Key: "attempts", Val: value.Int64(int64(j.Attempts))},
		value.Field{Key: "last_error", Val: value.String(j.LastError)},
		value.Field{Key: "cron_id", Val: value.String(j.CronID)},
	)
}

func jobFromDocument(doc *store.Document) Job {
	v := doc.Value
	j := Job{ID: doc.ID}
	if f, ok := v.Field("module_specifier"); ok {
		j.Function.ModuleSpecifier, _ = f.AsString()
	}
	if f, ok := v.Field("module_source"); ok {
		j.Function.ModuleSource, _ = f.AsString()
	}
	if f, ok := v.Field("export_name"); ok {
		j.Function.ExportName, _ = f.AsString()
	}
	if f, ok := v.Field("args"); ok {
		j.Args = f
	}
	if f, ok := v.Field("scheduled_ts"); ok {
		j.ScheduledTS, _ = f.AsInt64()
	}
	if f, ok := v.Field("kind"); ok {
		k, _ := f.AsInt64()
		j.Kind = funrun.Kind(k)
	}
	if f, ok := v.Field("state"); ok {
		s, _ := f.AsString()
		j.State = State(s)
	}
	if f, ok := v.Field("attempts"); ok {
		a, _ := f.AsInt64()
		j.Attempts = int(a)
	}
	if f, ok := v.Field("last_error"); ok {
		j.LastError, _ = f.AsString()
	}
	if f, ok := v.Field("cron_id"); ok {
		j.CronID, _ = f.AsString()
	}
	return j
}

func cronToValue(c CronEntry) value.Value {
	return value.Object(
		value.Field{Key: "module_specifier", Val: value.String(c.Function.ModuleSpecifier)},
		value.Field{Key: "module_source", Val: value.String(c.Function.ModuleSource)},
		value.Field{Key: "export_name", Val: value.String(c.Function.ExportName)},
		value.Field{Key: "args", Val: c.Args},
		value.Field{Key: "kind", Val: value.Int64(int64(c.Kind))},
		value.Field{Key: "interval_millis", Val: value.Int64(c.IntervalMillis)},
		value.Field{Key: "next_run_ts", Val: value.Int64(c.NextRunTS)},
		value.Field{Key: "enabled", Val: value.Bool(c.Enabled)},
	)
}

func cronFromDocument(doc *store.Document) CronEntry {
	v := doc.Value
	c := CronEntry{ID: doc.ID}
	if f, ok := v.Field("module_specifier"); ok {
		c.Function.ModuleSpecifier, _ = f.AsString()
	}
	if f, ok := v.Field("module_source"); ok {
		c.Function.ModuleSource, _ = f.AsString()
	}
	if f, ok := v.Field("export_name"); ok {
		c.Function.ExportName, _ = f.AsString()
	}
	if f, ok := v.Field("args"); ok {
		c.Args = f
	}
	if f, ok := v.Field("kind"); ok {
		k, _ := f.AsInt64()
		c.Kind = funrun.Kind(k)
	}
	if f, ok := v.Field("interval_millis"); ok {
		c.IntervalMillis, _ = f.AsInt64()
	}
	if f, ok := v.Field("next_run_ts"); ok {
		c.NextRunTS, _ = f.AsInt64()
	}
	if f, ok := v.Field("enabled"); ok {
		c.Enabled, _ = f.AsBool()
	}
	return c
}
