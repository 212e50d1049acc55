package pipeline

// State is a phase of a run
type State int

const (
	Idle State = iota
	Fetching
	ParsingBatch
	Filtering
	Deduping
	Persisting
	Notifying
	Summarizing
	Done
)

var stateNames = [...]string{
	Idle:         "idle",
	Fetching:     "fetching",
	ParsingBatch: "parsing-batch",
	Filtering:    "filtering",
	Deduping:     "deduping",
	Persisting:   "persisting",
	Notifying:    "notifying",
	Summarizing:  "summarizing",
	Done:         "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
