package tree

// FoldForTest exposes fold for string accumulation.
var FoldForTest = fold[string, string]
