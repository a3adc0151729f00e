package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"lorehub/internal/database"
	"lorehub/internal/models"
)

// CheckResult represents the result of a preflight check
type CheckResult struct {
	Name    string
	Status  string // "pass", "fail", "warning"
	Message string
	Error   error
}

// Checker performs pre-flight checks before the server starts
type Checker struct {
	db            *database.DB
	mongo         *database.MongoDB
	providersPath string
}

// NewChecker creates a new preflight checker
func NewChecker(db *database.DB, mongo *database.MongoDB, providersPath string) *Checker {
	return &Checker{
		db:            db,
		mongo:         mongo,
		providersPath: providersPath,
	}
}

// RunAll runs all preflight checks and returns results
func (c *Checker) RunAll() []CheckResult {
	log.Println("🔍 Running pre-flight checks...")

	results := []CheckResult{
		c.checkMySQLConnection(),
		c.checkMySQLSchema(),
		c.checkMongoConnection(),
		c.checkProvidersFile(),
		c.checkProvidersJSON(),
		c.checkEnvironmentVariables(),
	}

	// Print summary
	passed := 0
	failed := 0
	warnings := 0

	for _, result := range results {
		switch result.Status {
		case "pass":
			log.Printf("   ✅ %s: %s", result.Name, result.Message)
			passed++
		case "fail":
			log.Printf("   ❌ %s: %s", result.Name, result.Message)
			if result.Error != nil {
				log.Printf("      Error: %v", result.Error)
			}
			failed++
		case "warning":
			log.Printf("   ⚠️  %s: %s", result.Name, result.Message)
			warnings++
		}
	}

	log.Printf("\n📊 Pre-flight summary: %d passed, %d failed, %d warnings\n", passed, failed, warnings)

	return results
}

// HasFailures returns true if any check failed
func HasFailures(results []CheckResult) bool {
	for _, result := range results {
		if result.Status == "fail" {
			return true
		}
	}
	return false
}

// checkMySQLConnection verifies relational store connectivity
func (c *Checker) checkMySQLConnection() CheckResult {
	if err := c.db.Ping(); err != nil {
		return CheckResult{
			Name:    "MySQL Connection",
			Status:  "fail",
			Message: "Cannot connect to MySQL",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "MySQL Connection",
		Status:  "pass",
		Message: "MySQL connection successful",
	}
}

// checkMySQLSchema verifies all required tables exist
func (c *Checker) checkMySQLSchema() CheckResult {
	requiredTables := []string{
		"providers",
		"settings",
		"projects",
		"users",
	}

	for _, table := range requiredTables {
		var count int
		query := "SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?"
		err := c.db.QueryRow(query, table).Scan(&count)
		if err != nil || count == 0 {
			return CheckResult{
				Name:    "MySQL Schema",
				Status:  "fail",
				Message: fmt.Sprintf("Required table '%s' not found", table),
				Error:   err,
			}
		}
	}

	return CheckResult{
		Name:    "MySQL Schema",
		Status:  "pass",
		Message: fmt.Sprintf("All %d required tables exist", len(requiredTables)),
	}
}

// checkMongoConnection verifies the knowledge store is reachable
func (c *Checker) checkMongoConnection() CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.mongo.Ping(ctx); err != nil {
		return CheckResult{
			Name:    "MongoDB Connection",
			Status:  "fail",
			Message: "Cannot connect to MongoDB",
			Error:   err,
		}
	}

	return CheckResult{
		Name:    "MongoDB Connection",
		Status:  "pass",
		Message: "MongoDB connection successful",
	}
}

// checkProvidersFile verifies the providers file exists
func (c *Checker) checkProvidersFile() CheckResult {
	if _, err := os.Stat(c.providersPath); os.IsNotExist(err) {
		return CheckResult{
			Name:    "Providers File",
			Status:  "warning",
			Message: fmt.Sprintf("%s not found, no LLM providers configured", c.providersPath),
		}
	}

	return CheckResult{
		Name:    "Providers File",
		Status:  "pass",
		Message: "Providers file found",
	}
}

// checkProvidersJSON validates the providers file contents
func (c *Checker) checkProvidersJSON() CheckResult {
	data, err := os.ReadFile(c.providersPath)
	if err != nil {
		// Missing file is already reported by checkProvidersFile
		return CheckResult{
			Name:    "Providers JSON",
			Status:  "warning",
			Message: "Providers file not readable, skipping validation",
		}
	}

	var config models.ProvidersConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return CheckResult{
			Name:    "Providers JSON",
			Status:  "fail",
			Message: "Providers file contains invalid JSON",
			Error:   err,
		}
	}

	if len(config.Providers) == 0 {
		return CheckResult{
			Name:    "Providers JSON",
			Status:  "warning",
			Message: "No providers configured, synthesis will be unavailable",
		}
	}

	missingKeys := 0
	for i, p := range config.Providers {
		if p.Name == "" {
			return CheckResult{
				Name:    "Providers JSON",
				Status:  "fail",
				Message: fmt.Sprintf("Provider %d has no name", i),
			}
		}
		if p.BaseURL == "" {
			return CheckResult{
				Name:    "Providers JSON",
				Status:  "fail",
				Message: fmt.Sprintf("Provider '%s' has no base_url", p.Name),
			}
		}
		// Local providers like Ollama run without a key
		if p.APIKey == "" {
			missingKeys++
		}
	}

	if missingKeys > 0 {
		return CheckResult{
			Name:    "Providers JSON",
			Status:  "warning",
			Message: fmt.Sprintf("%d provider(s) have no API key", missingKeys),
		}
	}

	return CheckResult{
		Name:    "Providers JSON",
		Status:  "pass",
		Message: fmt.Sprintf("All %d provider(s) valid", len(config.Providers)),
	}
}

// checkEnvironmentVariables verifies recommended variables are set
func (c *Checker) checkEnvironmentVariables() CheckResult {
	if os.Getenv("JWT_SECRET") == "" {
		return CheckResult{
			Name:    "Environment Variables",
			Status:  "warning",
			Message: "JWT_SECRET not set, authentication disabled (development mode)",
		}
	}

	if os.Getenv("ENCRYPTION_MASTER_KEY") == "" {
		return CheckResult{
			Name:    "Environment Variables",
			Status:  "warning",
			Message: "ENCRYPTION_MASTER_KEY not set, content bodies stored unencrypted",
		}
	}

	return CheckResult{
		Name:    "Environment Variables",
		Status:  "pass",
		Message: "All environment variables configured",
	}
}
