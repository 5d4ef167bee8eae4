package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gofactor/domain/core"
	"gofactor/domain/factor"
	"gofactor/domain/survey"
	"gofactor/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Survey   SurveyConfig
	Study    StudyConfig
	Analysis AnalysisConfig
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port       string
	GinMode    string
	OpsPort    string
	OpsEnabled bool
}

// DatabaseConfig holds database connection settings. URL may be empty, in
// which case results are kept in memory only.
type DatabaseConfig struct {
	URL string
}

// SurveyConfig holds the input file location and the questionnaire item
// columns in presentation order. An empty Sheet selects the first worksheet.
type SurveyConfig struct {
	File        string
	Sheet       string
	ItemColumns []string
}

// StudyConfig holds the auxiliary columns that define the study population,
// the four experimental groups, and the between-format comparisons. An empty
// TextColumn disables the response-rate contrast.
type StudyConfig struct {
	FormatColumn   string
	OrderColumn    string
	OrderThreshold float64
	RoleColumn     string
	RoleValue      float64
	VisitColumn    string
	VisitMin       float64
	TimeColumn     string
	TextColumn     string
}

// AnalysisConfig holds the statistical parameters of a run.
type AnalysisConfig struct {
	FactorCount         int
	Rotation            string
	Association         string
	BootstrapIterations int
	BootstrapFraction   float64
	RotationTol         float64
	RotationMaxIter     int
	Seed                int64
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Server:   loadServerConfig(),
		Database: loadDatabaseConfig(),
		Survey:   loadSurveyConfig(),
		Study:    loadStudyConfig(),
		Analysis: loadAnalysisConfig(),
	}

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Port:       getEnvOrDefault("PORT", "8080"),
		GinMode:    getEnvOrDefault("GIN_MODE", "debug"),
		OpsPort:    getEnvOrDefault("OPS_PORT", "6060"),
		OpsEnabled: getEnvBoolOrDefault("OPS_ENABLED", true),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL: getEnvOrDefault("DATABASE_URL", ""),
	}
}

func loadSurveyConfig() SurveyConfig {
	return SurveyConfig{
		File:        getEnvOrDefault("SURVEY_FILE", "data/matrix.xlsx"),
		Sheet:       getEnvOrDefault("SURVEY_SHEET", ""),
		ItemColumns: getEnvColumnsOrDefault("ITEM_COLUMNS", defaultItemColumns()),
	}
}

func loadStudyConfig() StudyConfig {
	return StudyConfig{
		FormatColumn:   getEnvOrDefault("FORMAT_COLUMN", "formatUp"),
		OrderColumn:    getEnvOrDefault("ORDER_COLUMN", "hidden"),
		OrderThreshold: getEnvFloatOrDefault("ORDER_THRESHOLD", 50),
		RoleColumn:     getEnvOrDefault("ROLE_COLUMN", "uloga"),
		RoleValue:      getEnvFloatOrDefault("ROLE_VALUE", 2),
		VisitColumn:    getEnvOrDefault("VISIT_COLUMN", "cesto"),
		VisitMin:       getEnvFloatOrDefault("VISIT_MIN", 1),
		TimeColumn:     getEnvOrDefault("TIME_COLUMN", "interviewtime"),
		TextColumn:     getEnvOrDefault("TEXT_COLUMN", ""),
	}
}

func loadAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		FactorCount:         getEnvIntOrDefault("FACTOR_COUNT", factor.DefaultFactorCount),
		Rotation:            getEnvOrDefault("ROTATION", string(factor.RotationVarimax)),
		Association:         getEnvOrDefault("ASSOCIATION", string(factor.MeasureKendall)),
		BootstrapIterations: getEnvIntOrDefault("BOOTSTRAP_ITERATIONS", factor.DefaultBootstrapIterations),
		BootstrapFraction:   getEnvFloatOrDefault("BOOTSTRAP_FRACTION", factor.DefaultBootstrapFraction),
		RotationTol:         getEnvFloatOrDefault("ROTATION_TOL", factor.DefaultRotationTol),
		RotationMaxIter:     getEnvIntOrDefault("ROTATION_MAX_ITER", factor.DefaultRotationMaxIter),
		Seed:                getEnvInt64OrDefault("SEED", factor.DefaultSeed),
	}
}

func validateConfig(config *Config) error {
	if len(config.Survey.ItemColumns) == 0 {
		return errors.ConfigInvalid("at least one item column is required")
	}
	seen := make(map[string]bool, len(config.Survey.ItemColumns))
	for _, col := range config.Survey.ItemColumns {
		if col == "" {
			return errors.ConfigInvalid("item column names must be non-empty")
		}
		if seen[col] {
			return errors.ConfigInvalid("duplicate item column: " + col)
		}
		seen[col] = true
	}
	if config.Study.FormatColumn == "" {
		return errors.ConfigInvalid("format column is required")
	}
	if config.Study.OrderColumn == "" {
		return errors.ConfigInvalid("order column is required")
	}
	if err := config.AnalysisSettings().Validate(); err != nil {
		return errors.ConfigInvalid("analysis settings: " + err.Error())
	}
	return nil
}

// AnalysisSettings converts the analysis section into the domain
// configuration consumed by the pipeline.
func (c *Config) AnalysisSettings() factor.AnalysisConfig {
	return factor.AnalysisConfig{
		FactorCount:         c.Analysis.FactorCount,
		Rotation:            factor.Rotation(c.Analysis.Rotation),
		Association:         factor.Measure(c.Analysis.Association),
		BootstrapIterations: c.Analysis.BootstrapIterations,
		BootstrapFraction:   c.Analysis.BootstrapFraction,
		RotationTol:         c.Analysis.RotationTol,
		RotationMaxIter:     c.Analysis.RotationMaxIter,
		Seed:                c.Analysis.Seed,
	}
}

// Items returns the questionnaire item keys in configured order.
func (c *Config) Items() []core.ItemKey {
	items := make([]core.ItemKey, len(c.Survey.ItemColumns))
	for i, col := range c.Survey.ItemColumns {
		items[i] = core.ItemKey(col)
	}
	return items
}

// GroupSpecs builds the four format-by-order group definitions from the
// configured study columns.
func (c *Config) GroupSpecs() []survey.GroupSpec {
	return survey.FormatOrderSpecs(c.Study.FormatColumn, c.Study.OrderColumn, c.Study.OrderThreshold)
}

// PopulationFilter returns the row conditions that select the study
// population before any grouping happens.
func (c *Config) PopulationFilter() []survey.Condition {
	return []survey.Condition{
		{Column: c.Study.RoleColumn, Op: survey.OpEq, Value: c.Study.RoleValue},
		{Column: c.Study.VisitColumn, Op: survey.OpGt, Value: c.Study.VisitMin},
	}
}

func defaultItemColumns() []string {
	cols := make([]string, 12)
	for i := range cols {
		cols[i] = fmt.Sprintf("g%02d", i+1)
	}
	return cols
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvColumnsOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	cols := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			cols = append(cols, trimmed)
		}
	}
	if len(cols) == 0 {
		return defaultValue
	}
	return cols
}
