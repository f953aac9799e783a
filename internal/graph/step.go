package graph

// Node identifies a step of the workflow.
type Node int

const (
	NodeRouter Node = iota
	NodeExtract
	NodeGenerate
	NodeResolve
	NodeFuzzyMatch
	NodeAdjust
	NodeExecute
	NodeCorrect
	NodeSummarizeFresh
	NodeSummarizeFollowUp
)

var nodeNames = [...]string{
	NodeRouter:            "router",
	NodeExtract:           "extract_name",
	NodeGenerate:          "generate_sql",
	NodeResolve:           "check_name_exists",
	NodeFuzzyMatch:        "check_name_similarity",
	NodeAdjust:            "adjust_sql_name",
	NodeExecute:           "execute_query",
	NodeCorrect:           "fix_query_error",
	NodeSummarizeFresh:    "summarize_results",
	NodeSummarizeFollowUp: "summarize_follow_up",
}

func (n Node) String() string {
	if n >= 0 && int(n) < len(nodeNames) {
		return nodeNames[n]
	}
	return "unknown"
}

type stepKind int

const (
	stepContinue stepKind = iota
	stepHalt
	stepError
)

// Step is what a node hands back to the driver: move on to another node,
// halt the turn, or fail it.
type Step struct {
	kind   stepKind
	next   Node
	reason error
	err    error
}

// Continue moves the turn to next.
func Continue(next Node) Step {
	return Step{kind: stepContinue, next: next}
}

// Halt ends the turn. A nil reason is a normal finish; a non-nil reason is
// a terminal outcome such as ErrRetryExhausted.
func Halt(reason error) Step {
	return Step{kind: stepHalt, reason: reason}
}

// Fail aborts the turn with err.
func Fail(err error) Step {
	return Step{kind: stepError, err: err}
}
