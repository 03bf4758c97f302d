package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/prospector/internal/collect"
	"github.com/sells-group/prospector/internal/model"
	"github.com/sells-group/prospector/internal/resilience"
	"github.com/sells-group/prospector/internal/scoring"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Advisor    AdvisorConfig    `yaml:"advisor" mapstructure:"advisor"`
	Collection CollectionConfig `yaml:"collection" mapstructure:"collection"`
	Enrichment EnrichmentConfig `yaml:"enrichment" mapstructure:"enrichment"`
	Cleanup    CleanupConfig    `yaml:"cleanup" mapstructure:"cleanup"`
	Calling    CallingConfig    `yaml:"calling" mapstructure:"calling"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" mapstructure:"scheduler"`
	Agent      AgentConfig      `yaml:"agent" mapstructure:"agent"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver            string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL       string `yaml:"database_url" mapstructure:"database_url"`
	UniqueExternalKey bool   `yaml:"unique_external_key" mapstructure:"unique_external_key"`
	MaxConns          int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns          int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ProviderConfig holds credentials and limits for one external provider.
type ProviderConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the per-call timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSecs) * time.Second
}

// ProvidersConfig groups the external collaborators.
type ProvidersConfig struct {
	Search     ProviderConfig           `yaml:"search" mapstructure:"search"`
	Enrichment ProviderConfig           `yaml:"enrichment" mapstructure:"enrichment"`
	Dialer     ProviderConfig           `yaml:"dialer" mapstructure:"dialer"`
	Breaker    resilience.BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// AdvisorConfig controls the advisory search planner.
type AdvisorConfig struct {
	Enabled     bool `yaml:"enabled" mapstructure:"enabled"`
	MaxConfigs  int  `yaml:"max_configs" mapstructure:"max_configs"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CollectionConfig configures the collection pipeline.
type CollectionConfig struct {
	PlanFile       string               `yaml:"plan_file" mapstructure:"plan_file"`
	DelayMs        int                  `yaml:"delay_ms" mapstructure:"delay_ms"`
	GroupDelaySecs int                  `yaml:"group_delay_secs" mapstructure:"group_delay_secs"`
	Daily          []model.SearchConfig `yaml:"daily" mapstructure:"daily"`
	Weekly         collect.WeeklyPlan   `yaml:"weekly" mapstructure:"weekly"`
}

// Plan returns the search plan, read from PlanFile when one is set.
func (c CollectionConfig) Plan() (*collect.Plan, error) {
	if c.PlanFile != "" {
		return collect.LoadPlan(c.PlanFile)
	}
	p := &collect.Plan{Daily: c.Daily, Weekly: c.Weekly}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// EnrichmentConfig configures the enrichment sweep.
type EnrichmentConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	DelayMs   int `yaml:"delay_ms" mapstructure:"delay_ms"`
}

// CleanupConfig configures the cleanup sweep.
type CleanupConfig struct {
	PageSize int `yaml:"page_size" mapstructure:"page_size"`
}

// CallingConfig configures the outbound calling pipeline.
type CallingConfig struct {
	MaxBatch int    `yaml:"max_batch" mapstructure:"max_batch"`
	Campaign string `yaml:"campaign" mapstructure:"campaign"`
}

// ScoringConfig holds the priority and segment rule tables. Empty tables
// fall back to the built-in defaults.
type ScoringConfig struct {
	Priority scoring.PriorityRules `yaml:"priority" mapstructure:"priority"`
	Segments scoring.SegmentRules  `yaml:"segments" mapstructure:"segments"`
}

// TriggersConfig holds the cron expression for each periodic trigger.
type TriggersConfig struct {
	DailyCollection string `yaml:"daily_collection" mapstructure:"daily_collection"`
	WeeklySweep     string `yaml:"weekly_sweep" mapstructure:"weekly_sweep"`
	Enrichment      string `yaml:"enrichment" mapstructure:"enrichment"`
	DailyCleanup    string `yaml:"daily_cleanup" mapstructure:"daily_cleanup"`
	PriorityRefresh string `yaml:"priority_refresh" mapstructure:"priority_refresh"`
}

// SchedulerConfig configures the periodic scheduler.
type SchedulerConfig struct {
	Timezone         string         `yaml:"timezone" mapstructure:"timezone"`
	InitialDelaySecs int            `yaml:"initial_delay_secs" mapstructure:"initial_delay_secs"`
	TickSecs         int            `yaml:"tick_secs" mapstructure:"tick_secs"`
	Triggers         TriggersConfig `yaml:"triggers" mapstructure:"triggers"`
}

// Location resolves the reference timezone.
func (s SchedulerConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, eris.Wrapf(err, "config: load timezone %q", s.Timezone)
	}
	return loc, nil
}

// AgentConfig configures the task dispatcher.
type AgentConfig struct {
	PollIntervalSecs      int  `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	SelfCheckIntervalSecs int  `yaml:"self_check_interval_secs" mapstructure:"self_check_interval_secs"`
	SoftSchedules         bool `yaml:"soft_schedules" mapstructure:"soft_schedules"`
	CollectionHour        int  `yaml:"collection_hour" mapstructure:"collection_hour"`
	CallingHour           int  `yaml:"calling_hour" mapstructure:"calling_hour"`
	HistorySize           int  `yaml:"history_size" mapstructure:"history_size"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run-failure alerting.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	MinRuns              int     `yaml:"min_runs" mapstructure:"min_runs"`
	CheckIntervalMins    int     `yaml:"check_interval_mins" mapstructure:"check_interval_mins"`
	QueueDepthThreshold  int     `yaml:"queue_depth_threshold" mapstructure:"queue_depth_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; an explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "prospector.db")
	v.SetDefault("store.unique_external_key", true)
	v.SetDefault("providers.search.timeout_secs", 30)
	v.SetDefault("providers.enrichment.timeout_secs", 20)
	v.SetDefault("providers.dialer.timeout_secs", 60)
	v.SetDefault("providers.breaker.failure_threshold", 5)
	v.SetDefault("providers.breaker.reset_timeout_secs", 300)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("advisor.enabled", false)
	v.SetDefault("advisor.max_configs", 10)
	v.SetDefault("advisor.timeout_secs", 45)
	v.SetDefault("collection.delay_ms", 2000)
	v.SetDefault("collection.group_delay_secs", 30)
	v.SetDefault("collection.weekly.max_results", 25)
	v.SetDefault("enrichment.batch_size", 20)
	v.SetDefault("enrichment.delay_ms", 1000)
	v.SetDefault("cleanup.page_size", 500)
	v.SetDefault("calling.max_batch", 10)
	v.SetDefault("calling.campaign", "default")
	v.SetDefault("scheduler.timezone", "America/New_York")
	v.SetDefault("scheduler.initial_delay_secs", 30)
	v.SetDefault("scheduler.tick_secs", 60)
	v.SetDefault("scheduler.triggers.daily_collection", "0 9 * * *")
	v.SetDefault("scheduler.triggers.weekly_sweep", "0 6 * * 1")
	v.SetDefault("scheduler.triggers.enrichment", "0 */4 * * *")
	v.SetDefault("scheduler.triggers.daily_cleanup", "0 2 * * *")
	v.SetDefault("scheduler.triggers.priority_refresh", "0 3 1 * *")
	v.SetDefault("agent.poll_interval_secs", 30)
	v.SetDefault("agent.self_check_interval_secs", 3600)
	v.SetDefault("agent.soft_schedules", true)
	v.SetDefault("agent.collection_hour", 9)
	v.SetDefault("agent.calling_hour", 10)
	v.SetDefault("agent.history_size", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_runs", 5)
	v.SetDefault("monitoring.check_interval_mins", 15)
	v.SetDefault("monitoring.queue_depth_threshold", 25)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional unless a path was given)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.applyRuleDefaults()

	return &cfg, nil
}

func (c *Config) applyRuleDefaults() {
	p := &c.Scoring.Priority
	if len(p.TopTierFirms) == 0 && len(p.MidOverrides) == 0 && len(p.SeniorTitles) == 0 && len(p.MidTitles) == 0 {
		*p = scoring.DefaultPriorityRules()
	}
	if len(c.Scoring.Segments.Rules) == 0 {
		c.Scoring.Segments = scoring.DefaultSegmentRules()
	}
}

// Validate checks the keys a command needs and reports every problem at
// once. mode is the cobra command name.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case "serve", "collect", "enrich", "cleanup", "export", "status":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if (mode == "serve" || mode == "collect") && c.Providers.Search.Key == "" {
		errs = append(errs, "providers.search.key is required")
	}
	if (mode == "serve" || mode == "enrich") && c.Providers.Enrichment.Key == "" {
		errs = append(errs, "providers.enrichment.key is required")
	}
	if c.Advisor.Enabled && c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required when advisor.enabled")
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("scheduler.timezone %q is not a valid IANA zone", c.Scheduler.Timezone))
		}
		if c.Agent.CollectionHour < 0 || c.Agent.CollectionHour > 23 {
			errs = append(errs, "agent.collection_hour must be between 0 and 23")
		}
		if c.Agent.CallingHour < 0 || c.Agent.CallingHour > 23 {
			errs = append(errs, "agent.calling_hour must be between 0 and 23")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
