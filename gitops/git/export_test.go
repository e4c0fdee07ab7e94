package git

// IsRejectedForTest exposes isRejected.
var IsRejectedForTest = isRejected
