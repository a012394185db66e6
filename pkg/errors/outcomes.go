package errors

// Outcome is the terminal result of one supervised meeting occurrence. The
// literal values are a stable wire contract with downstream consumers
// (documentation, action, and scheduling agents) and must not change.
type Outcome string

const (
	// OutcomeSuccess means the meeting was captured and ended normally.
	OutcomeSuccess Outcome = "success"

	// OutcomeJoinTimeout means no successful join happened inside the
	// [start-2m, start+15m] join window.
	OutcomeJoinTimeout Outcome = "JOIN_TIMEOUT"

	// OutcomeWaitingRoomTimeout means the bot sat in the host's waiting room
	// for longer than the admission budget.
	OutcomeWaitingRoomTimeout Outcome = "WAITING_ROOM_TIMEOUT"

	// OutcomeDisconnectedTimeout means the reconnection budget was exhausted
	// after an unexpected disconnect.
	OutcomeDisconnectedTimeout Outcome = "DISCONNECTED_TIMEOUT"

	// OutcomeBotRemoved means the host explicitly removed the bot; never
	// retried.
	OutcomeBotRemoved Outcome = "BOT_REMOVED"

	// OutcomeSkippedOverlap means another eligible meeting with an earlier
	// start won the same poll tick; no attempt was ever created.
	OutcomeSkippedOverlap Outcome = "SKIPPED_OVERLAP_CONFLICT"

	// OutcomeMaxDurationExceeded means supervision was force-ended at
	// scheduled duration plus the overrun allowance.
	OutcomeMaxDurationExceeded Outcome = "MAX_DURATION_EXCEEDED"

	// OutcomeCancelled means an external stop signal ended supervision;
	// whatever attempt and media data existed at that point is persisted.
	OutcomeCancelled Outcome = "CANCELLED"
)

// OutcomeClass groups outcomes by how they were decided.
type OutcomeClass string

const (
	// ClassSuccess is the normal completion class.
	ClassSuccess OutcomeClass = "success"
	// ClassTiming covers deadline-comparison failures.
	ClassTiming OutcomeClass = "timing"
	// ClassPolicy covers scheduling decisions made before supervision starts.
	ClassPolicy OutcomeClass = "policy"
	// ClassExternal covers failures recognized from the polled status feed.
	ClassExternal OutcomeClass = "external"
	// ClassOperator covers operator-initiated termination.
	ClassOperator OutcomeClass = "operator"
)

// OutcomeInfo carries metadata about an outcome code.
type OutcomeInfo struct {
	Outcome     Outcome
	Class       OutcomeClass
	Description string
}

// OutcomeRegistry maps outcome codes to their metadata.
var OutcomeRegistry = map[Outcome]OutcomeInfo{
	OutcomeSuccess: {
		Outcome:     OutcomeSuccess,
		Class:       ClassSuccess,
		Description: "Meeting captured; end quorum reached",
	},
	OutcomeJoinTimeout: {
		Outcome:     OutcomeJoinTimeout,
		Class:       ClassTiming,
		Description: "No successful join within the join window",
	},
	OutcomeWaitingRoomTimeout: {
		Outcome:     OutcomeWaitingRoomTimeout,
		Class:       ClassTiming,
		Description: "Admission not granted within the waiting-room budget",
	},
	OutcomeDisconnectedTimeout: {
		Outcome:     OutcomeDisconnectedTimeout,
		Class:       ClassTiming,
		Description: "Rejoin attempts exhausted the reconnection budget",
	},
	OutcomeBotRemoved: {
		Outcome:     OutcomeBotRemoved,
		Class:       ClassExternal,
		Description: "Host removed the bot from the meeting",
	},
	OutcomeSkippedOverlap: {
		Outcome:     OutcomeSkippedOverlap,
		Class:       ClassPolicy,
		Description: "Lost the earliest-start tie-break to an overlapping meeting",
	},
	OutcomeMaxDurationExceeded: {
		Outcome:     OutcomeMaxDurationExceeded,
		Class:       ClassTiming,
		Description: "Supervision force-ended at scheduled duration plus overrun",
	},
	OutcomeCancelled: {
		Outcome:     OutcomeCancelled,
		Class:       ClassOperator,
		Description: "External stop signal observed between poll cycles",
	},
}

// Valid reports whether o is a known outcome code.
func (o Outcome) Valid() bool {
	_, ok := OutcomeRegistry[o]
	return ok
}

// IsFailure reports whether o is a failure code rather than success.
func (o Outcome) IsFailure() bool {
	return o.Valid() && o != OutcomeSuccess
}

// Class returns the outcome's decision class, or "" for unknown codes.
func (o Outcome) Class() OutcomeClass {
	if info, ok := OutcomeRegistry[o]; ok {
		return info.Class
	}
	return ""
}

// Description returns the human-readable description for the outcome.
func (o Outcome) Description() string {
	if info, ok := OutcomeRegistry[o]; ok {
		return info.Description
	}
	return "Unknown outcome"
}
