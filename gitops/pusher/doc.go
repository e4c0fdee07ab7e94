// Package pusher applies a change set to a branch as a chain of commits and
// publishes it.
//
// Pusher.Push is the core sequence: partition the changes into batches,
// commit every batch on top of the previous one, move the branch to the
// last commit and hand the branch to a transport. Each step runs only if
// the previous one succeeded and the first failure is returned as is. A
// failure before the ref update leaves the branch untouched.
//
// Run is the complete workflow used by the command line tool: it resolves
// the base branch, creates the target branch when needed, pushes the
// changes and opens or updates a pull request through a git.GitProvider.
// Config gathers every parameter of a run.
package pusher
