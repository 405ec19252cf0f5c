package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/soochol/actionplan/internal/domain"
)

// crisisAreaByConfig mirrors the checklist-specifications header vocabulary
// a human reader of these plans expects, keyed by subject.
var crisisAreaByConfig = map[domain.Subject]string{
	domain.SubjectWar:      "War / Mass Casualty Incidents",
	domain.SubjectSanction: "Sanctions / Economic Disruption",
}

var checklistTypeByPhase = map[domain.Phase]string{
	domain.PhasePreparedness: "Preparedness",
	domain.PhaseResponse:     "Response",
}

// timingPattern extracts a duration magnitude and unit from a time_window
// half of a well-formed `when` string, e.g. "30-60 minutes" -> 30, "minute".
var timingPattern = regexp.MustCompile(`(\d+)\s*-?\s*(\d+)?\s*(minute|min|hour|hr|day)`)

// Formatter renders the approved actions and tables into the final
// markdown checklist, grouped by actor and sorted within each group by
// parsed start time. Pure code, no LLM (§4.7).
type Formatter struct{}

func NewFormatter() *Formatter { return &Formatter{} }

func (f *Formatter) Name() domain.StageName { return domain.StageFormatter }

func (f *Formatter) Execute(_ context.Context, state *domain.PipelineState) error {
	groups := groupByActor(state.Actions)
	appendixOf := assignAppendixNumbers(state.Tables)

	var sb strings.Builder
	writeHeader(&sb, state.UserConfig)
	writeActorSections(&sb, groups, state.Tables, appendixOf)
	writeAppendices(&sb, state.Tables)

	state.FinalPlan = sb.String()
	return nil
}

func groupByActor(actions []domain.Action) map[string][]domain.Action {
	groups := map[string][]domain.Action{}
	for _, a := range actions {
		groups[a.Who] = append(groups[a.Who], a)
	}
	for who := range groups {
		acts := groups[who]
		sort.SliceStable(acts, func(i, j int) bool {
			return startMinutes(acts[i].When) < startMinutes(acts[j].When)
		})
		groups[who] = acts
	}
	return groups
}

// startMinutes parses the leading numeric bound of a when's time_window
// half into minutes, for sort purposes only; unparseable values sort last.
func startMinutes(when string) int {
	parts := strings.SplitN(when, "|", 2)
	if len(parts) != 2 {
		return 1 << 30
	}
	m := timingPattern.FindStringSubmatch(strings.ToLower(parts[1]))
	if m == nil {
		return 1 << 30
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return 1 << 30
	}
	switch {
	case strings.HasPrefix(m[3], "hour") || m[3] == "hr":
		return value * 60
	case strings.HasPrefix(m[3], "day"):
		return value * 60 * 24
	default:
		return value
	}
}

func writeHeader(sb *strings.Builder, uc domain.UserConfig) {
	crisisArea := crisisAreaByConfig[uc.Subject]
	if crisisArea == "" {
		crisisArea = string(uc.Subject)
	}
	checklistType := checklistTypeByPhase[uc.Phase]
	if checklistType == "" {
		checklistType = string(uc.Phase)
	}

	fmt.Fprintf(sb, "# %s Action Plan\n\n", uc.Name)
	sb.WriteString("## Checklist Specifications\n\n")
	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(sb, "| Crisis Area | %s |\n", crisisArea)
	fmt.Fprintf(sb, "| Checklist Type | Action (%s) |\n", checklistType)
	fmt.Fprintf(sb, "| Level | %s |\n", uc.Level)
	if uc.Timing != "" {
		fmt.Fprintf(sb, "| Timing Guidance | %s |\n", uc.Timing)
	}
	sb.WriteString("\n")
}

// assignAppendixNumbers numbers tables in encounter order (1-based), the
// same order they're rendered under "## Appendices".
func assignAppendixNumbers(tables []domain.Table) map[string]int {
	out := make(map[string]int, len(tables))
	for i, t := range tables {
		out[t.ID] = i + 1
	}
	return out
}

// appendixRefsFor returns the appendix numbers of every table whose
// ExtractedActions links back to actionID, so Formatter can inject inline
// "(See Appendix N)" markers without re-deriving the link itself.
func appendixRefsFor(actionID string, tables []domain.Table, appendixOf map[string]int) []int {
	var nums []int
	for _, t := range tables {
		for _, aid := range t.ExtractedActions {
			if aid == actionID {
				nums = append(nums, appendixOf[t.ID])
				break
			}
		}
	}
	sort.Ints(nums)
	return nums
}

func writeActorSections(sb *strings.Builder, groups map[string][]domain.Action, tables []domain.Table, appendixOf map[string]int) {
	actors := make([]string, 0, len(groups))
	for who := range groups {
		actors = append(actors, who)
	}
	sort.Strings(actors)

	for _, who := range actors {
		fmt.Fprintf(sb, "## %s\n\n", who)
		for _, a := range groups[who] {
			priority := string(a.PriorityLevel)
			if priority == "" {
				priority = "unspecified"
			}
			fmt.Fprintf(sb, "- [ ] **%s** (when: %s, priority: %s)", a.ActionText, a.When, priority)

			if refs := appendixRefsFor(a.ID, tables, appendixOf); len(refs) > 0 {
				parts := make([]string, len(refs))
				for i, n := range refs {
					parts[i] = fmt.Sprintf("(See Appendix %d)", n)
				}
				sb.WriteString(" " + strings.Join(parts, " "))
			}
			sb.WriteString(fmt.Sprintf(" [source: %s]\n", a.Reference.NodeTitle))
		}
		sb.WriteString("\n")
	}
}

func writeAppendices(sb *strings.Builder, tables []domain.Table) {
	if len(tables) == 0 {
		return
	}
	sb.WriteString("## Appendices\n\n")
	for i, t := range tables {
		fmt.Fprintf(sb, "### Appendix %d: %s\n\n", i+1, t.TableTitle)
		if t.MarkdownContent != "" {
			sb.WriteString(t.MarkdownContent)
			sb.WriteString("\n\n")
			continue
		}
		writeTableMarkdown(sb, t)
	}
}

func writeTableMarkdown(sb *strings.Builder, t domain.Table) {
	if len(t.Headers) == 0 {
		return
	}
	sb.WriteString("| " + strings.Join(t.Headers, " | ") + " |\n")
	sb.WriteString("|" + strings.Repeat("---|", len(t.Headers)) + "\n")
	for _, row := range t.Rows {
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	sb.WriteString("\n")
}
