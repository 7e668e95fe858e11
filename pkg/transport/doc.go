// Package transport abstracts remote command execution.
//
// The Transport interface takes a target address and a request carrying
// either a literal command or a local script path, plus environment
// overrides, optional stdin injection, and a per-call timeout; it returns
// captured stdout/stderr and the remote exit code. The SSH implementation
// shells out to the system ssh client and never uploads anything to the
// target: scripts are streamed over stdin to the remote interpreter.
package transport
