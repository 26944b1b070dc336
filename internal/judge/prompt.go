package judge

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/signalnine/gauntlet/internal/result"
)

// maxDiffChars keeps large diffs inside the judge model's context window.
const maxDiffChars = 100_000

const responseFormat = `Respond with your reasoning inside <analysis></analysis> tags, followed by an
integer score from 0 to 10 inside <score></score> tags, for example:

<analysis>The change implements the requested behavior but misses an edge case.</analysis>
<score>7</score>`

// DiffPrompt asks the judge to grade a diff against the example's criteria.
func DiffPrompt(task, criteria, diff string) string {
	return fmt.Sprintf(`You are a code review judge. An AI coding agent was given the task below and
produced the following diff. Grade the diff against the evaluation criteria.

<task>
%s
</task>

<criteria>
%s
</criteria>

<diff>
%s
</diff>

%s`, strings.TrimSpace(task), strings.TrimSpace(criteria), truncate(diff, maxDiffChars), responseFormat)
}

// ThreadPrompt asks the judge to grade how the agent went about the task.
func ThreadPrompt(task, criteria, thread string) string {
	return fmt.Sprintf(`You are evaluating the conversation an AI coding agent had while working on the
task below. Grade the conversation against the evaluation criteria.

<task>
%s
</task>

<criteria>
%s
</criteria>

<thread>
%s
</thread>

%s`, strings.TrimSpace(task), strings.TrimSpace(criteria), truncate(thread, maxDiffChars), responseFormat)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("\n\n... [truncated from %d to %d chars] ...", len(s), limit)
}

var (
	analysisRe = regexp.MustCompile(`(?s)<analysis>(.*?)</analysis>`)
	scoreRe    = regexp.MustCompile(`<score>\s*(-?\d+)\s*</score>`)
)

// ParseResponse extracts the analysis and score from a judge reply. The
// analysis is optional; a missing or non-integer score is ErrNoScore.
func ParseResponse(content string) (result.JudgeResponse, error) {
	m := scoreRe.FindStringSubmatch(content)
	if m == nil {
		return result.JudgeResponse{}, ErrNoScore
	}
	score, err := strconv.Atoi(m[1])
	if err != nil {
		return result.JudgeResponse{}, fmt.Errorf("%w: %v", ErrNoScore, err)
	}
	var analysis string
	if a := analysisRe.FindStringSubmatch(content); a != nil {
		analysis = strings.TrimSpace(a[1])
	}
	return result.JudgeResponse{Analysis: analysis, Score: score}, nil
}
