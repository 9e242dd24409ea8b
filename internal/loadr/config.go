package loadr

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// DBUser is a login role the workload connects as.
type DBUser struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// LoadConfig describes the demo database script to generate.
type LoadConfig struct {
	Database  string `yaml:"database"`
	Output    string `yaml:"output"`
	Seed      uint64 `yaml:"seed"`
	Customers int    `yaml:"customers"`
	Products  int    `yaml:"products"`
	Orders    int    `yaml:"orders"`
	DbUsers   int    `yaml:"dbUsers"`
}

// RunConfig describes the workload configuration parsed from YAML.
type RunConfig struct {
	Database    string   `yaml:"database"`
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	Users       []DBUser `yaml:"users"`
	Seed        uint64   `yaml:"seed"`
	RunId       string   `yaml:"runId"`
	Concurrency int      `yaml:"concurrency"`
	TotalOps    int      `yaml:"totalOps"`

	Mix struct {
		Select float64 `yaml:"select"`
		Insert float64 `yaml:"insert"`
		Update float64 `yaml:"update"`
	} `yaml:"mix"`

	// Attack injects bursts of failed logins so the server log carries
	// brute-force windows for the detector to find.
	Attack struct {
		Enabled       bool `yaml:"enabled"`
		EveryOps      int  `yaml:"everyOps"`
		FailedLogins  int  `yaml:"failedLogins"`
		ConnectionsPS int  `yaml:"connectionsPerSecond"`
	} `yaml:"attack"`
}

func readYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ReadLoadConfig parses the YAML data-generation config.
func ReadLoadConfig(path string) (LoadConfig, error) {
	var cfg LoadConfig
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Database == "" {
		cfg.Database = "anomr_demo"
	}
	if cfg.Output == "" {
		cfg.Output = "anomr_demo.sql"
	}
	if cfg.DbUsers <= 0 {
		cfg.DbUsers = 3
	}
	return cfg, nil
}

// ReadRunConfig parses the YAML workload config and fills defaults.
func ReadRunConfig(path string) (RunConfig, error) {
	var cfg RunConfig
	if err := readYAML(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.applyDefaults(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *RunConfig) applyDefaults() error {
	if len(c.Users) == 0 {
		return fmt.Errorf("run config needs at least one user")
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.TotalOps <= 0 {
		c.TotalOps = 1000
	}
	if c.Attack.FailedLogins <= 0 {
		c.Attack.FailedLogins = 50
	}
	if c.Attack.EveryOps <= 0 {
		c.Attack.EveryOps = c.TotalOps / 2
	}
	normalizeMix(c)
	return nil
}

// normalizeMix ensures operation ratios sum to 1.0
func normalizeMix(cfg *RunConfig) {
	tot := cfg.Mix.Select + cfg.Mix.Insert + cfg.Mix.Update
	if tot <= 0 {
		cfg.Mix.Select, cfg.Mix.Insert, cfg.Mix.Update = 0.6, 0.2, 0.2
		tot = 1
	}
	cfg.Mix.Select /= tot
	cfg.Mix.Insert /= tot
	cfg.Mix.Update /= tot
}

// buildDSN constructs a lib/pq connection URL.
func buildDSN(user, pass, host string, port int, db string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable&application_name=loadr",
	}
	return u.String()
}
