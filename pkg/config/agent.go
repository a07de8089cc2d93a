package config

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

/*
apiVersion: amon.smartdc/v1
kind: AgentConfig
socket: /var/run/.smartdc-amon.sock
dataDir: /var/db/amon-agent
pollInterval: 30
*/
type AgentConfig struct {
	Metadata Metadata

	cfgV1 *AgentConfigV1
}

type AgentConfigV1 struct {
	LogLevel        string `json:"logLevel"`
	Socket          string `json:"socket"`
	DataDir         string `json:"dataDir"`
	PollInterval    int    `json:"pollInterval"`
	Global          bool   `json:"global"`
	MachineStateCmd string `json:"machineStateCmd"`
}

func (c *AgentConfig) Load(metadata Metadata, data []byte) error {
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

func (c *AgentConfig) loadV1(data []byte) (*AgentConfigV1, error) {
	cfg := new(AgentConfigV1)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30
	}
	return cfg, nil
}

func (c *AgentConfig) V1() *AgentConfigV1 {
	return c.cfgV1
}
