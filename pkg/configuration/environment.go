package configuration

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/iota-uz/utils/fs"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

func LoadEnv(envFiles []string) (int, error) {
	existingFiles := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fs.FileExists(file) {
			existingFiles = append(existingFiles, file)
		}
	}
	if len(existingFiles) == 0 {
		return 0, nil
	}
	return len(existingFiles), godotenv.Load(existingFiles...)
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"feedback_hub"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"feedback-hub"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
}

type RateLimitOptions struct {
	Enabled   bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	GlobalRPS int    `env:"RATE_LIMIT_GLOBAL_RPS" envDefault:"1000"`
	Storage   string `env:"RATE_LIMIT_STORAGE" envDefault:"memory"` // memory or redis
	RedisURL  string `env:"RATE_LIMIT_REDIS_URL"`
}

// Validate checks the rate limit configuration for errors
func (r *RateLimitOptions) Validate() error {
	if r.GlobalRPS < 0 {
		return fmt.Errorf("rate limit GlobalRPS must be non-negative, got %d", r.GlobalRPS)
	}
	if r.Storage != "memory" && r.Storage != "redis" {
		return fmt.Errorf("rate limit Storage must be 'memory' or 'redis', got '%s'", r.Storage)
	}
	if r.Storage == "redis" && r.RedisURL == "" {
		return fmt.Errorf("rate limit RedisURL is required when Storage is 'redis'")
	}
	return nil
}

type AuthzOptions struct {
	Mode string `env:"AUTHZ_MODE" envDefault:"shadow"`
	// Model and policy files replace the built-in role policy when both are set.
	ModelPath  string `env:"AUTHZ_MODEL_PATH"`
	PolicyPath string `env:"AUTHZ_POLICY_PATH"`
	FlagPath   string `env:"AUTHZ_FLAG_CONFIG_PATH"`
}

type HierarchyOptions struct {
	MaxChainDepth         int           `env:"HIERARCHY_MAX_CHAIN_DEPTH" envDefault:"20"`
	DepthWarningThreshold int           `env:"HIERARCHY_DEPTH_WARNING" envDefault:"10"`
	SearchLimit           int           `env:"HIERARCHY_SEARCH_LIMIT" envDefault:"20"`
	TreeCache             string        `env:"HIERARCHY_TREE_CACHE" envDefault:"none"` // none, memory or redis
	TreeCacheTTL          time.Duration `env:"HIERARCHY_TREE_CACHE_TTL" envDefault:"5m"`
	RoleHierarchyPath     string        `env:"ROLE_HIERARCHY_PATH"`
}

func (h *HierarchyOptions) Validate() error {
	if h.MaxChainDepth <= 0 {
		return fmt.Errorf("HIERARCHY_MAX_CHAIN_DEPTH must be positive, got %d", h.MaxChainDepth)
	}
	if h.SearchLimit <= 0 {
		return fmt.Errorf("HIERARCHY_SEARCH_LIMIT must be positive, got %d", h.SearchLimit)
	}
	mode := strings.ToLower(strings.TrimSpace(h.TreeCache))
	switch mode {
	case "", "none":
		mode = "none"
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid HIERARCHY_TREE_CACHE=%q (expected none|memory|redis)", h.TreeCache)
	}
	h.TreeCache = mode
	return nil
}

type NATSOptions struct {
	URL     string `env:"NATS_URL"`
	Subject string `env:"NATS_SUBJECT" envDefault:"feedback.hierarchy.changed"`
}

// OutboxOptions control the relay that moves hierarchy_outbox rows to NATS.
type OutboxOptions struct {
	Enabled       bool          `env:"OUTBOX_ENABLED" envDefault:"false"`
	PollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	BatchSize     int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	MaxAttempts   int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"25"`
	SingleActive  bool          `env:"OUTBOX_SINGLE_ACTIVE" envDefault:"true"`
	Retention     time.Duration `env:"OUTBOX_RETENTION" envDefault:"168h"`
	DeadRetention time.Duration `env:"OUTBOX_DEAD_RETENTION" envDefault:"0s"`
}

type Configuration struct {
	Database      DatabaseOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions
	RateLimit     RateLimitOptions
	Authz         AuthzOptions
	Hierarchy     HierarchyOptions
	NATS          NATSOptions
	Outbox        OutboxOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	ServerPort       int    `env:"PORT" envDefault:"3200"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	SocketAddress    string `env:"-"`
	Origin           string `env:"ORIGIN" envDefault:"http://localhost:3200"`
	CORSOrigins      string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:"./logs/app.log"`
	MigrateOnStart   bool   `env:"MIGRATE_ON_START" envDefault:"false"`
	// The upstream gateway forwards the authenticated user id in this header.
	UserIDHeader string `env:"USER_ID_HEADER" envDefault:"X-User-ID"`
	// If the header is absent a random uuidv4 is generated.
	RequestIDHeader string `env:"REQUEST_ID_HEADER" envDefault:"X-Request-ID"`
	RealIPHeader    string `env:"REAL_IP_HEADER" envDefault:"X-Real-IP"`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

// CORSAllowedOrigins splits CORS_ORIGINS on commas and whitespace.
func (c *Configuration) CORSAllowedOrigins() []string {
	return strings.FieldsFunc(c.CORSOrigins, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := c.parse(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger
	return nil
}

func (c *Configuration) parse() error {
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return fmt.Errorf("rate limit configuration error: %w", err)
	}
	if err := c.Hierarchy.Validate(); err != nil {
		return fmt.Errorf("hierarchy configuration error: %w", err)
	}
	if err := c.validateAuthz(); err != nil {
		return err
	}

	c.Database.Opts = c.Database.ConnectionString()
	if c.GoAppEnvironment == Production {
		c.SocketAddress = fmt.Sprintf(":%d", c.ServerPort)
	} else {
		c.SocketAddress = fmt.Sprintf("localhost:%d", c.ServerPort)
	}
	return nil
}

func (c *Configuration) validateAuthz() error {
	mode := strings.ToLower(strings.TrimSpace(c.Authz.Mode))
	if mode == "" {
		mode = "shadow"
	}
	switch mode {
	case "disabled", "shadow", "enforce":
	default:
		return fmt.Errorf("invalid AUTHZ_MODE=%q (expected disabled|shadow|enforce)", c.Authz.Mode)
	}
	c.Authz.Mode = mode
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}
