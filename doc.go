// Command-line and package overview for the px module.
//
// The scheduler itself lives in the sched subpackage
// (github.com/pplux/px/sched); this root package holds no code of its own,
// only this overview for `go doc github.com/pplux/px`.
//
// See sched's package doc comment for the scheduler's design.
package px
