package behavioral

const (
	// RetryThreshold is the minimum run of identical consecutive tool calls
	// reported as a retry loop.
	RetryThreshold = 3

	// SameCommandTool labels retry loops made of a failed Bash command
	// immediately re-run verbatim.
	SameCommandTool = "Bash(same_cmd)"
)

// BashInvocation is one Bash command seen in a session and whether its
// result came back as an error.
type BashInvocation struct {
	Command string
	Failed  bool
}

// DetectToolRuns splits seq into maximal runs of identical tool names and
// returns one finding per run of at least RetryThreshold calls. Runs never
// overlap, so a run of six is a single finding with count 6.
func DetectToolRuns(seq []string) []RetryLoop {
	var loops []RetryLoop
	for i := 0; i < len(seq); {
		j := i + 1
		for j < len(seq) && seq[j] == seq[i] {
			j++
		}
		if n := j - i; n >= RetryThreshold {
			loops = append(loops, RetryLoop{Tool: seq[i], Count: n})
		}
		i = j
	}
	return loops
}

// DetectRepeatedFailures emits one finding for every adjacent pair where a
// failed command is followed by the exact same command.
func DetectRepeatedFailures(history []BashInvocation) []RetryLoop {
	var loops []RetryLoop
	for i := 1; i < len(history); i++ {
		prev, curr := history[i-1], history[i]
		if prev.Failed && prev.Command == curr.Command {
			loops = append(loops, RetryLoop{
				Tool:   SameCommandTool,
				Count:  2,
				Sample: Truncate(curr.Command, MaxCommandLen),
			})
		}
	}
	return loops
}
