package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Config holds all application settings.
type Config struct {
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Storage  StorageConfig
	Auth     AuthConfig
	Catalog  CatalogConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

type StorageConfig struct {
	Bucket    string
	Region    string
	Endpoint  string
	PathStyle bool
}

type AuthConfig struct {
	JWTSecret string
}

type CatalogConfig struct {
	HydrateConcurrency int
}

// Load reads a two-level YAML file: top-level section names, then
// key: value pairs. Comments and blank lines are skipped.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := &Config{}
	scanner := bufio.NewScanner(file)

	var section string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, ":") {
			section = strings.TrimSuffix(line, ":")
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		switch section {
		case "database":
			assignDatabase(&cfg.Database, key, value)
		case "rabbitmq":
			assignRabbit(&cfg.RabbitMQ, key, value)
		case "storage":
			assignStorage(&cfg.Storage, key, value)
		case "auth":
			if key == "jwt_secret" {
				cfg.Auth.JWTSecret = value
			}
		case "catalog":
			if key == "hydrate_concurrency" {
				cfg.Catalog.HydrateConcurrency, _ = strconv.Atoi(value)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if cfg.Database.Host == "" || cfg.RabbitMQ.Host == "" {
		return nil, errors.New("invalid config: missing database/rabbitmq host")
	}
	return cfg, nil
}

func assignDatabase(d *DatabaseConfig, key, value string) {
	switch key {
	case "host":
		d.Host = value
	case "port":
		d.Port, _ = strconv.Atoi(value)
	case "user":
		d.User = value
	case "password":
		d.Password = value
	case "database":
		d.Database = value
	}
}

func assignRabbit(r *RabbitMQConfig, key, value string) {
	switch key {
	case "host":
		r.Host = value
	case "port":
		r.Port, _ = strconv.Atoi(value)
	case "user":
		r.User = value
	case "password":
		r.Password = value
	case "vhost":
		r.VHost = value
	}
}

func assignStorage(s *StorageConfig, key, value string) {
	switch key {
	case "bucket":
		s.Bucket = value
	case "region":
		s.Region = value
	case "endpoint":
		s.Endpoint = value
	case "path_style":
		s.PathStyle = strings.EqualFold(value, "true")
	}
}

// Find looks for a config file in the conventional locations.
func Find() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
