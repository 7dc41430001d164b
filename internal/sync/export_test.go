package sync

var (
	MergeByEmail = mergeByEmail
	Diff         = diff
)

const ManualGroup = manualGroup
