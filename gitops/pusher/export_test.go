package pusher

// PRTitleForTest exposes prTitle.
var PRTitleForTest = prTitle
