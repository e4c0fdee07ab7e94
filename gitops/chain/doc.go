// Package chain turns batches of changes into a linear
// chain of commits.
//
// Every batch is folded into the tree of the current
// chain head and committed with that head as its only
// parent, so commit k always points at commit k-1 and
// the first commit points at the supplied base. The same
// message is used for every commit: batches only bound
// the size of a single write, they are not separate
// logical changes.
//
// Nothing in this package moves a reference. A failure
// part way leaves the written objects unreferenced.
package chain
