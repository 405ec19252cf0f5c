package supervisor

import "github.com/soochol/actionplan/internal/domain"

// DefectType enumerates the categories the supervisor's LLM call can flag a
// defect as, each routed to the stage responsible for fixing it (§4.8's
// routing map).
type DefectType string

const (
	DefectMissingCitations DefectType = "missing_citations"
	DefectMissingNodes     DefectType = "missing_nodes"
	DefectIrrelevantAction DefectType = "irrelevant_actions"
	DefectDuplicate        DefectType = "duplicates_unclear"
	DefectWrongTimeline    DefectType = "wrong_timeline"
	DefectMissingWho       DefectType = "missing_who"
	DefectFormatting       DefectType = "formatting_structure"
)

// routingMap sends each defect type to the stage that owns a fix. Where the
// spec names two candidate stages ("Analyzer or Phase3", "Extractor or
// Deduplicator") the earlier stage in pipeline order is chosen, since
// rerunning it also re-runs everything after it.
var routingMap = map[DefectType]domain.StageName{
	DefectMissingCitations: domain.StageAnalyzerPhase2,
	DefectMissingNodes:     domain.StageAnalyzerPhase2,
	DefectIrrelevantAction: domain.StageSelector,
	DefectDuplicate:        domain.StageExtractor,
	DefectWrongTimeline:    domain.StageTiming,
	DefectMissingWho:       domain.StageAssigner,
	DefectFormatting:       domain.StageFormatter,
}

// ResponsibleStage looks up the stage a defect type routes to.
func ResponsibleStage(defect DefectType) (domain.StageName, bool) {
	stage, ok := routingMap[defect]
	return stage, ok
}

// minorDefects are the defect types self_repair is allowed to fix with a
// single patch call rather than a full stage rerun (formatting/metadata
// only, per §4.8).
var minorDefects = map[DefectType]bool{
	DefectFormatting: true,
}

func isMinor(defect DefectType) bool { return minorDefects[defect] }
