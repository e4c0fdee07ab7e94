// Package refs moves branch references to the head of a
// freshly built commit chain.
//
// Without force the underlying store only accepts fast
// forwards; a rejected update is reported as a
// *git.RefUpdateError with NonFastForward set so callers
// can tell a lost race from a transport or
// authentication failure.
package refs
