// Package domain holds the data model shared by every component: the
// knowledge-graph node types, the pipeline's working records, and the
// mutable PipelineState that flows stage to stage.
package domain

import "time"

// DocumentNode represents a whole ingested document.
type DocumentNode struct {
	Name       string `json:"name"`
	SourcePath string `json:"source_path"`
	Type       string `json:"type"`
	IsRule     bool   `json:"is_rule"`
}

// HeadingNode is a hierarchical section of a document.
type HeadingNode struct {
	ID               string    `json:"id"` // "<doc_name>_h<n>"
	DocumentName     string    `json:"document_name"`
	ParentID         string    `json:"parent_id"` // empty for a document root heading
	Title            string    `json:"title"`
	Level            int       `json:"level"` // 1-6
	StartLine        int       `json:"start_line"`
	EndLine          int       `json:"end_line"`
	RawContent       string    `json:"-"`
	Summary          string    `json:"summary"`
	SummaryEmbedding []float32 `json:"summary_embedding,omitempty"`
	ChildIDs         []string  `json:"child_ids,omitempty"`
}

// ContentChunk is a fixed-token-bounded slice of a HeadingNode's raw content,
// stored in the vector store.
type ContentChunk struct {
	ChunkID   string            `json:"chunk_id"`
	NodeID    string            `json:"node_id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding"`
	StartLine int               `json:"start_line"`
	EndLine   int               `json:"end_line"`
	Metadata  ChunkMetadata     `json:"metadata"`
}

// ChunkMetadata is the fixed metadata envelope attached to every chunk.
type ChunkMetadata struct {
	Source        string `json:"source"`
	IsRule        bool   `json:"is_rule"`
	HierarchyPath string `json:"hierarchy_path"`
}

// PriorityLevel enumerates Action.PriorityLevel.
type PriorityLevel string

const (
	PriorityImmediate PriorityLevel = "immediate"
	PriorityShortTerm PriorityLevel = "short-term"
	PriorityLongTerm  PriorityLevel = "long-term"
)

// Reference ties an Action or Table back to its source node.
type Reference struct {
	Document  string `json:"document"`
	LineRange [2]int `json:"line_range"`
	NodeID    string `json:"node_id"`
	NodeTitle string `json:"node_title"`
}

// Action is the primary unit produced by the pipeline.
type Action struct {
	ID                  string        `json:"id"`
	ActionText          string        `json:"action_text"`
	Who                 string        `json:"who"`
	When                string        `json:"when"` // "<trigger> | <time_window>"
	PriorityLevel       PriorityLevel `json:"priority_level"`
	Reference           Reference     `json:"reference"`
	Sources             []string      `json:"sources"`
	RelevanceScore      float64       `json:"relevance_score"`
	RelevanceRationale  string        `json:"relevance_rationale"`
	TimingFlagged        bool         `json:"timing_flagged"`
	ActorFlagged         bool         `json:"actor_flagged"`
	MergedFrom           []string     `json:"merged_from,omitempty"`
	FromSpecialProtocol  bool         `json:"from_special_protocol"`
}

// TableType enumerates Table.TableType.
type TableType string

const (
	TableChecklist     TableType = "checklist"
	TableActionTable   TableType = "action_table"
	TableDecisionMatrix TableType = "decision_matrix"
	TableOther         TableType = "other"
)

// Table is a structured set of rows lifted from source content.
type Table struct {
	ID               string    `json:"id"`
	TableTitle       string    `json:"table_title"`
	TableType        TableType `json:"table_type"`
	Headers          []string  `json:"headers"`
	Rows             [][]string `json:"rows"`
	MarkdownContent  string    `json:"markdown_content"`
	Reference        Reference `json:"reference"`
	ExtractedActions []string  `json:"extracted_actions"` // Action IDs
	Kept             bool      `json:"-"`                 // set by Selector, not persisted on the table itself
}

// Level, Phase, Subject enumerate UserConfig's constrained fields.
type Level string
type Phase string
type Subject string

const (
	LevelMinistry   Level = "ministry"
	LevelUniversity Level = "university"
	LevelCenter     Level = "center"

	PhasePreparedness Phase = "preparedness"
	PhaseResponse     Phase = "response"

	SubjectWar       Subject = "war"
	SubjectSanction  Subject = "sanction"
)

// UserConfig is the user-facing generation request from §6.
type UserConfig struct {
	Name                     string   `json:"name"`
	Timing                   string   `json:"timing,omitempty"`
	Level                    Level    `json:"level"`
	Phase                    Phase    `json:"phase"`
	Subject                  Subject  `json:"subject"`
	SpecialProtocolsNodeIDs  []string `json:"special_protocols_node_ids,omitempty"`
	DocumentsToQuery         []string `json:"documents_to_query,omitempty"`
	GuidelineDocuments       []string `json:"guideline_documents,omitempty"`
}

// TemplateKey builds the "{level}_{phase}_{subject}" prompt-selection key.
func (u UserConfig) TemplateKey() string {
	return string(u.Level) + "_" + string(u.Phase) + "_" + string(u.Subject)
}

// SubjectNodes pairs a subject string with the graph node ids Phase3 selected
// for it.
type SubjectNodes struct {
	Subject string   `json:"subject"`
	Nodes   []string `json:"nodes"`
}

// GenerationStatus is the terminal status of a pipeline run.
type GenerationStatus string

const (
	StatusApproved               GenerationStatus = "approved"
	StatusApprovedWithWarnings   GenerationStatus = "approved_with_warnings"
)

// StageName enumerates the ten pipeline stages plus the supervisor, in
// pipeline order.
type StageName string

const (
	StageOrchestrator        StageName = "orchestrator"
	StageSpecialProtocols     StageName = "special_protocols"
	StageAnalyzerPhase1       StageName = "analyzer_phase1"
	StageAnalyzerPhase2       StageName = "analyzer_phase2"
	StagePhase3               StageName = "phase3"
	StageExtractor            StageName = "extractor"
	StageSelector             StageName = "selector"
	StageDeduplicator         StageName = "deduplicator"
	StageTiming               StageName = "timing"
	StageAssigner             StageName = "assigner"
	StageFormatter            StageName = "formatter"
	StageSupervisor           StageName = "supervisor"
)

// StageOrder is the fixed sequential order of stages (§4.7).
var StageOrder = []StageName{
	StageOrchestrator,
	StageSpecialProtocols,
	StageAnalyzerPhase1,
	StageAnalyzerPhase2,
	StagePhase3,
	StageExtractor,
	StageSelector,
	StageDeduplicator,
	StageTiming,
	StageAssigner,
	StageFormatter,
}

// StageIndex returns the position of name in StageOrder, or -1.
func StageIndex(name StageName) int {
	for i, s := range StageOrder {
		if s == name {
			return i
		}
	}
	return -1
}

// ErrorEntry is one structured entry in PipelineState.Errors.
type ErrorEntry struct {
	Stage   StageName `json:"stage"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// QualityScoreEntry records one supervisor evaluation.
type QualityScoreEntry struct {
	OverallScore float64            `json:"overall_score"`
	Criteria     map[string]float64 `json:"criteria"`
	Outcome      string             `json:"outcome"`
}

// PipelineState is the single mutable object passed through all stages.
type PipelineState struct {
	UserConfig UserConfig `json:"user_config"`

	ProblemStatement string   `json:"problem_statement"`
	RefinedQueries   []string `json:"refined_queries"`
	NodeIDs          []string `json:"node_ids"`
	SubjectNodes     []SubjectNodes `json:"subject_nodes"`

	SpecialProtocolsNodeIDs []string       `json:"special_protocols_node_ids"`
	SpecialProtocolsNodes   []SubjectNodes `json:"special_protocols_nodes"`

	Actions []Action `json:"actions"`
	Tables  []Table  `json:"tables"`

	RetryCount    map[StageName]int   `json:"retry_count"`
	QualityScores []QualityScoreEntry `json:"quality_scores"`
	Errors        []ErrorEntry        `json:"errors"`

	CurrentStage      StageName `json:"current_stage"`
	TargetedFeedback  map[StageName]string `json:"targeted_feedback"`

	FinalPlan string `json:"final_plan"`

	ValidatorRetryCount int `json:"validator_retry_count"`
	Status              GenerationStatus `json:"status,omitempty"`
}

// NewPipelineState seeds a fresh state from a user request (Orchestrator's
// entry point).
func NewPipelineState(uc UserConfig) *PipelineState {
	return &PipelineState{
		UserConfig:              uc,
		SpecialProtocolsNodeIDs: uc.SpecialProtocolsNodeIDs,
		RetryCount:              map[StageName]int{},
		TargetedFeedback:        map[StageName]string{},
		CurrentStage:            StageOrchestrator,
	}
}

// ConsumeFeedback returns and clears any targeted feedback queued for stage.
func (p *PipelineState) ConsumeFeedback(stage StageName) string {
	fb, ok := p.TargetedFeedback[stage]
	if !ok {
		return ""
	}
	delete(p.TargetedFeedback, stage)
	return fb
}

// ResetTo rewinds CurrentStage to target and records feedback for its next
// run (the Supervisor's rerun back-edge, §4.8/§9).
func (p *PipelineState) ResetTo(target StageName, feedback string) {
	p.CurrentStage = target
	if feedback != "" {
		p.TargetedFeedback[target] = feedback
	}
	p.ValidatorRetryCount++
}

// RunStatus is the lifecycle status of a persisted generation run, distinct
// from GenerationStatus (the terminal approve/warn verdict a finished run
// carries once it has one).
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// GenerationRun is one invocation of the pipeline: the evolving state plus
// the bookkeeping a caller needs to poll progress or fetch the result later.
// CurrentStage and ValidatorRetryCount mirror fields already inside State,
// denormalized onto the run record so a repository can filter/sort on them
// without unpacking the JSON blob.
type GenerationRun struct {
	ID                  string     `json:"id"`
	UserConfig          UserConfig `json:"user_config"`
	Status              RunStatus  `json:"status"`
	CurrentStage        StageName  `json:"current_stage"`
	ValidatorRetryCount int        `json:"validator_retry_count"`
	State               *PipelineState `json:"state"`
	Error               string     `json:"error,omitempty"`
	StartedAt           time.Time  `json:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
}

// NewGenerationRun seeds a run record wrapping a freshly created state.
func NewGenerationRun(id string, state *PipelineState) *GenerationRun {
	return &GenerationRun{
		ID:           id,
		UserConfig:   state.UserConfig,
		Status:       RunRunning,
		CurrentStage: state.CurrentStage,
		State:        state,
		StartedAt:    time.Now(),
	}
}

// SyncFromState refreshes the denormalized fields from the live state, to be
// called after every Runner step before persisting.
func (r *GenerationRun) SyncFromState() {
	r.CurrentStage = r.State.CurrentStage
	r.ValidatorRetryCount = r.State.ValidatorRetryCount
}
