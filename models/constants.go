package models

// Signal outcomes returned by the relationship service
const (
	SignalRecorded  = "recorded"
	SignalMatched   = "matched"
	SignalUnmatched = "unmatched"
	SignalUnchanged = "unchanged"
)

// Sex values used by profiles and the seed generator
const (
	SexMale   = "male"
	SexFemale = "female"
	SexOther  = "other"
)
