package config

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

/*
apiVersion: amon.smartdc/v1
kind: RelayConfig
masterUrl: http://amon-master.coal.example.com:8080
dataDir: /var/db/amon-relay
socketDir: /var/run/amon-relay
pollInterval: 30
server: 564d4d2c-3b9a-4a7d-8f43-0d9a5ee318bb
machines:
- 7b80e2a5-9a11-4d34-8b2b-3babcec0e66a
spool:
  path: /var/db/amon-relay/spool.db
  maxEvents: 1000
  maxAge: 3600
*/
type RelayConfig struct {
	Metadata Metadata

	cfgV1 *RelayConfigV1
}

type SpoolConfig struct {
	Path      string `json:"path"`
	MaxEvents int    `json:"maxEvents"`
	MaxAge    int    `json:"maxAge"`
}

type RelayConfigV1 struct {
	LogLevel     string      `json:"logLevel"`
	MasterURL    string      `json:"masterUrl"`
	DataDir      string      `json:"dataDir"`
	SocketDir    string      `json:"socketDir"`
	PollInterval int         `json:"pollInterval"`
	Server       string      `json:"server"`
	Machines     []string    `json:"machines"`
	MetricsAddr  string      `json:"metricsAddr"`
	Spool        SpoolConfig `json:"spool"`
}

func (c *RelayConfig) Load(metadata Metadata, data []byte) error {
	var err error
	switch metadata.Version {
	case "v1":
		c.Metadata = metadata
		c.cfgV1, err = c.loadV1(data)
	default:
		err = fmt.Errorf("version '%s' is not supported", metadata.ApiVersion())
	}
	return err
}

func (c *RelayConfig) loadV1(data []byte) (*RelayConfigV1, error) {
	cfg := new(RelayConfigV1)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30
	}
	if cfg.Spool.Path == "" {
		cfg.Spool.Path = cfg.DataDir + "/spool.db"
	}
	if cfg.Spool.MaxEvents == 0 {
		cfg.Spool.MaxEvents = 1000
	}
	if cfg.Spool.MaxAge == 0 {
		cfg.Spool.MaxAge = 3600
	}
	return cfg, nil
}

func (c *RelayConfig) V1() *RelayConfigV1 {
	return c.cfgV1
}
