package application

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	settlement "coaching-fees/internal/settlement/domain"
)

// Config is the orchestration policy.
type Config struct {
	SupersedePolicy     settlement.Policy `yaml:"supersede_policy"`
	ApplyCreditDefault  bool              `yaml:"apply_credit_default"`
	BulkParallelism     int               `yaml:"bulk_parallelism"`
	MemberTimeout       time.Duration     `yaml:"member_timeout"`
	LockTTL             time.Duration     `yaml:"lock_ttl"`
	MaxMembersPerBatch  int               `yaml:"max_members_per_batch"`
	MaxGeneratedRecords int               `yaml:"max_generated_records"`
}

// DefaultConfig returns the built-in policy.
func DefaultConfig() Config {
	return Config{
		SupersedePolicy:     settlement.PolicyWaive,
		BulkParallelism:     8,
		MemberTimeout:       10 * time.Second,
		LockTTL:             30 * time.Second,
		MaxMembersPerBatch:  500,
		MaxGeneratedRecords: 60,
	}
}

// LoadConfig starts from defaults, applies FEES_* environment overrides and
// then the YAML file at path when path is non-empty. Keys absent from the file
// keep their earlier value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("assignment config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("assignment config: parse %s: %w", path, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the policy values.
func (c *Config) Validate() error {
	policy, err := settlement.ParsePolicy(string(c.SupersedePolicy))
	if err != nil {
		return err
	}
	c.SupersedePolicy = policy
	if c.BulkParallelism <= 0 {
		return errors.New("assignment config: bulk_parallelism must be positive")
	}
	if c.MemberTimeout <= 0 {
		return errors.New("assignment config: member_timeout must be positive")
	}
	if c.LockTTL <= 0 {
		return errors.New("assignment config: lock_ttl must be positive")
	}
	if c.MaxMembersPerBatch <= 0 {
		return errors.New("assignment config: max_members_per_batch must be positive")
	}
	if c.MaxGeneratedRecords <= 0 {
		return errors.New("assignment config: max_generated_records must be positive")
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv("FEES_SUPERSEDE_POLICY")); v != "" {
		c.SupersedePolicy = settlement.Policy(v)
	}
	if v := strings.TrimSpace(getenv("FEES_APPLY_CREDIT_DEFAULT")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("assignment config: FEES_APPLY_CREDIT_DEFAULT: %w", err)
		}
		c.ApplyCreditDefault = b
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"FEES_BULK_PARALLELISM", &c.BulkParallelism},
		{"FEES_MAX_MEMBERS_PER_BATCH", &c.MaxMembersPerBatch},
		{"FEES_MAX_GENERATED_RECORDS", &c.MaxGeneratedRecords},
	}
	for _, item := range ints {
		if v := strings.TrimSpace(getenv(item.key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("assignment config: %s: %w", item.key, err)
			}
			*item.dst = n
		}
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FEES_MEMBER_TIMEOUT", &c.MemberTimeout},
		{"FEES_LOCK_TTL", &c.LockTTL},
	}
	for _, item := range durations {
		if v := strings.TrimSpace(getenv(item.key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("assignment config: %s: %w", item.key, err)
			}
			*item.dst = d
		}
	}
	return nil
}
