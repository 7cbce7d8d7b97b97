// Package process provides the runtime that launches the supervised command as
// a local child process.
//
// The command line is split on whitespace and executed directly, without a
// shell. The child inherits stdin. When output capture is requested its stdout
// and stderr are read line by line and surfaced as log entries; otherwise the
// child writes straight to the supervisor's own streams.
//
// No process group is created and no signals are forwarded: an interrupt
// delivered by a terminal reaches the child through the foreground process
// group, and the runtime only ever waits for the child to exit.
package process
