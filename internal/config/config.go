// Package config loads the action-plan generator's runtime configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the top-level application configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Database  DatabaseConfig            `yaml:"database"`
	Vector    VectorConfig              `yaml:"vector"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Agents    map[string]AgentConfig    `yaml:"agents"`
	RAG       RAGConfig                 `yaml:"rag"`
	Pipeline  PipelineConfig            `yaml:"pipeline"`
	Scheduler SchedulerConfig           `yaml:"scheduler"`
	Terms     TermsConfig               `yaml:"terms"`
	Notify    NotifyConfig              `yaml:"notify"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds Postgres connection settings for the knowledge graph
// and pipeline-run history. Empty URL means "run in-memory only".
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// VectorConfig holds vector-store connection settings. Empty Host means
// "run the in-memory vector store".
type VectorConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	EmbeddingDimension  int    `yaml:"embedding_dimension"`
	EmbeddingProvider   string `yaml:"embedding_provider"` // gemini | openai
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingAPIBase    string `yaml:"embedding_api_base"`
	ContentCollection   string `yaml:"content_collection"`
	SummaryCollection   string `yaml:"summary_collection"`
}

// ProviderConfig describes how to reach a generation/embedding backend.
type ProviderConfig struct {
	Type   string `yaml:"type"` // anthropic | openai | gemini
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

// AgentConfig is the per-agent override block from §6: provider, model,
// temperature and endpoint are resolved at call time, never bound once at
// startup, so operators can repoint an agent without a restart.
type AgentConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	APIBase     string  `yaml:"api_base"`
	APIKey      string  `yaml:"api_key"`
}

// RAGConfig holds the retrieval-engine tunables from §6.
type RAGConfig struct {
	TopKResults            int     `yaml:"top_k_results"`
	ChunkSize              int     `yaml:"chunk_size"`
	ChunkOverlap           int     `yaml:"chunk_overlap"`
	UseRRF                 bool    `yaml:"rag_use_rrf"`
	UseMMR                 bool    `yaml:"rag_use_mmr"`
	MMRLambda              float64 `yaml:"rag_mmr_lambda"`
	GraphExpansionDepth    int     `yaml:"rag_graph_expansion_depth"`
	GraphExpansionBoost    float64 `yaml:"rag_graph_expansion_boost"`
	ContextWindow          bool    `yaml:"rag_context_window"`
	RRFK                   int     `yaml:"rag_rrf_k"`
}

// PipelineConfig holds the stage-batching and retry tunables from §6.
type PipelineConfig struct {
	MaxRetries                  int     `yaml:"max_retries"`
	RetryDelayBaseSeconds        float64 `yaml:"retry_delay_base_seconds"`
	QualityThreshold             float64 `yaml:"quality_threshold"`
	SupervisorApproveThreshold   float64 `yaml:"supervisor_approve_threshold"`
	SupervisorRepairLower        float64 `yaml:"supervisor_repair_lower"`
	SupervisorScoringFormula     string  `yaml:"supervisor_scoring_formula"`
	ValidatorMaxReruns           int     `yaml:"validator_max_reruns"`

	AnalyzerPhase2BatchThreshold int `yaml:"analyzer_phase2_batch_threshold"`
	AnalyzerPhase2BatchSize      int `yaml:"analyzer_phase2_batch_size"`
	SelectorBatchSize            int `yaml:"selector_batch_size"`
	DeduplicatorBatchSize        int `yaml:"deduplicator_batch_size"`
	AssignerBatchSize            int `yaml:"assigner_batch_size"`
	AssignerBatchThreshold       int `yaml:"assigner_batch_threshold"`

	Phase3ScoreThreshold     float64 `yaml:"phase3_score_threshold"`
	Phase3MinNodesPerSubject int     `yaml:"phase3_min_nodes_per_subject"`

	BatchWorkerPool int `yaml:"batch_worker_pool"`

	RuleDocumentNames []string `yaml:"rule_document_names"`

	ReferenceDocumentName string `yaml:"reference_document_name"`
}

// TermsConfig holds the validation term sets from §6/§8.
type TermsConfig struct {
	GenericActorTerms []string `yaml:"generic_actor_terms"`
	VagueTimingTerms  []string `yaml:"vague_timing_terms"`
	StopWords         []string `yaml:"stop_words"`
}

// SchedulerConfig holds settings for the periodic re-ingestion scheduler.
type SchedulerConfig struct {
	Enabled     bool   `yaml:"enabled"`
	CronSpec    string `yaml:"cron_spec"`
	WatchDir    string `yaml:"watch_dir"`
	GlobalMax   int    `yaml:"global_max"`
	PerWorkflow int    `yaml:"per_workflow"`
}

// NotifyConfig selects the single channel this repo notifies on a
// completed or failed generation run. Channel is "" (disabled), "slack",
// "telegram", or "smtp"; only the fields the chosen channel reads need
// to be set.
type NotifyConfig struct {
	Channel string `yaml:"channel"`

	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel"`

	TelegramBotToken string `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`

	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPTo       string `yaml:"smtp_to"`
	SMTPPassword string `yaml:"smtp_password"`
}

// IsRule reports whether docName matches the configured rule-document
// substring list, case-insensitively (§4.4 auto-tagging).
func (c *PipelineConfig) IsRule(docName string) bool {
	lower := strings.ToLower(docName)
	for _, pat := range c.RuleDocumentNames {
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

// defaults returns a Config populated with sensible default values,
// matching the configuration surface enumerated in §6.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		Vector: VectorConfig{
			EmbeddingDimension: 1536,
			EmbeddingProvider:  "openai",
			EmbeddingModel:     "text-embedding-3-small",
			ContentCollection:  "content",
			SummaryCollection:  "summary",
		},
		Providers: map[string]ProviderConfig{},
		Agents:    map[string]AgentConfig{},
		RAG: RAGConfig{
			TopKResults:         8,
			ChunkSize:           400,
			ChunkOverlap:        50,
			UseRRF:              true,
			UseMMR:              true,
			MMRLambda:           0.7,
			GraphExpansionDepth: 1,
			GraphExpansionBoost: 0.3,
			ContextWindow:       true,
			RRFK:                60,
		},
		Pipeline: PipelineConfig{
			MaxRetries:                   3,
			RetryDelayBaseSeconds:        1.0,
			QualityThreshold:             0.7,
			SupervisorApproveThreshold:   0.8,
			SupervisorRepairLower:        0.6,
			ValidatorMaxReruns:           3,
			AnalyzerPhase2BatchThreshold: 50,
			AnalyzerPhase2BatchSize:      20,
			SelectorBatchSize:            15,
			DeduplicatorBatchSize:        15,
			AssignerBatchSize:            15,
			AssignerBatchThreshold:       30,
			Phase3ScoreThreshold:         0.5,
			Phase3MinNodesPerSubject:     3,
			BatchWorkerPool:              4,
			RuleDocumentNames:            []string{"guideline", "policy", "sop"},
			ReferenceDocumentName:        "organizational_reference",
		},
		Terms: TermsConfig{
			GenericActorTerms: []string{
				"staff", "team", "personnel", "someone", "anyone", "relevant team",
				"appropriate staff", "designated staff", "responsible party", "tbd",
				"officer", "department", "unit", "responder", "representative",
				"office", "committee", "group", "authorities", "worker",
			},
			VagueTimingTerms: []string{
				"soon", "immediately", "asap", "when possible", "eventually", "tbd", "later",
			},
			StopWords: defaultStopWords(),
		},
		Scheduler: SchedulerConfig{GlobalMax: 10, PerWorkflow: 3, CronSpec: "0 3 * * *"},
	}
}

func defaultStopWords() []string {
	return []string{
		"the", "a", "an", "and", "or", "but", "if", "then", "else", "of", "to",
		"in", "on", "at", "for", "with", "by", "from", "about", "as", "into",
		"is", "are", "was", "were", "be", "been", "being", "this", "that",
		"these", "those", "it", "its", "we", "you", "they", "emergency",
		"protocol", "crisis", "plan", "please", "should", "would", "could",
	}
}

// Load reads a YAML configuration file at path and returns a Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Providers == nil {
		cfg.Providers = map[string]ProviderConfig{}
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}

	return cfg, nil
}

// LoadDefault tries to load "config.yaml" from the current directory. If
// the file does not exist, it returns sensible defaults.
func LoadDefault() (*Config, error) {
	cfg, err := Load("config.yaml")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaults(), nil
		}
		return nil, err
	}
	return cfg, nil
}
