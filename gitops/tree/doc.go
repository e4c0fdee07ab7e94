// Package tree merges a sparse list of path changes into an existing git
// tree and returns the id of the resulting tree.
//
// Changes are applied one after the other as a left fold over an in-memory
// view of the directories they touch; listings are read from the object
// store the first time a path descends into them. Once every change is
// applied, modified directories are written bottom-up, each parent picking
// up the new id of its child. Untouched directories are never read or
// rewritten.
//
// Directories left empty by deletions are removed from their parent. The
// root tree is always kept, even when empty.
package tree
