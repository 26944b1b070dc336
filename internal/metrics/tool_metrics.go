package metrics

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

// ToolMetrics counts tool invocations and failures per tool name. Merging is
// plain per-key addition, so the result is independent of merge order.
type ToolMetrics struct {
	UseCounts     map[string]uint32 `json:"use_counts"`
	FailureCounts map[string]uint32 `json:"failure_counts"`
}

func NewToolMetrics() ToolMetrics {
	return ToolMetrics{
		UseCounts:     map[string]uint32{},
		FailureCounts: map[string]uint32{},
	}
}

// InsertUse records one use of tool, counting it as a failure when !succeeded.
func (m *ToolMetrics) InsertUse(tool string, succeeded bool) {
	m.init()
	m.UseCounts[tool]++
	if !succeeded {
		m.FailureCounts[tool]++
	}
}

func (m *ToolMetrics) Merge(other ToolMetrics) {
	m.init()
	for tool, n := range other.UseCounts {
		m.UseCounts[tool] += n
	}
	for tool, n := range other.FailureCounts {
		m.FailureCounts[tool] += n
	}
}

func (m ToolMetrics) Empty() bool {
	return len(m.UseCounts) == 0 && len(m.FailureCounts) == 0
}

// Equal reports whether both metrics hold the same non-zero counts.
func (m ToolMetrics) Equal(other ToolMetrics) bool {
	return countsEqual(m.UseCounts, other.UseCounts) && countsEqual(m.FailureCounts, other.FailureCounts)
}

func (m ToolMetrics) String() string {
	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOOL\tUSES\tFAILURES\tFAILURE RATE")
	for _, tool := range m.tools() {
		uses := m.UseCounts[tool]
		failures := m.FailureCounts[tool]
		rate := 0.0
		if uses > 0 {
			rate = float64(failures) / float64(uses) * 100
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.0f%%\n", tool, uses, failures, rate)
	}
	tw.Flush()
	return b.String()
}

func (m ToolMetrics) tools() []string {
	seen := map[string]bool{}
	var tools []string
	for tool := range m.UseCounts {
		if !seen[tool] {
			seen[tool] = true
			tools = append(tools, tool)
		}
	}
	for tool := range m.FailureCounts {
		if !seen[tool] {
			seen[tool] = true
			tools = append(tools, tool)
		}
	}
	sort.Strings(tools)
	return tools
}

func (m *ToolMetrics) init() {
	if m.UseCounts == nil {
		m.UseCounts = map[string]uint32{}
	}
	if m.FailureCounts == nil {
		m.FailureCounts = map[string]uint32{}
	}
}

func countsEqual(a, b map[string]uint32) bool {
	for k, v := range a {
		if v != b[k] {
			return false
		}
	}
	for k, v := range b {
		if v != a[k] {
			return false
		}
	}
	return true
}
