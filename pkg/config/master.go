package config

import (
	"fmt"

	"sigs.k8s.io/yaml"
)

/*
apiVersion: amon.smartdc/v1
kind: MasterConfig
port: 8080
ufds:
  url: ldaps://ufds.coal.example.com
  bindDN: cn=root
  bindPassword: secret
mapi:
  url: http://mapi.coal.example.com
  username: admin
  password: secret
accountCache:
  size: 1000
  expiry: 300
probeCache:
  size: 1000
  expiry: 300
notificationPlugins:
  email:
    host: smtp.example.com
    from: amon@example.com
  webhook: {}
*/
type MasterConfig struct {
	Metadata Metadata

	cfgV1 *MasterConfigV1
}

type UFDSConfig struct {
	URL          string `json:"url"`
	BindDN       string `json:"bindDN"`
	BindPassword string `json:"bindPassword"`
}

type MAPIConfig struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type CacheConfig struct {
	Size   int `json:"size"`
	Expiry int `json:"expiry"`
}

type EmailPluginConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	From     string `json:"from"`
}

type WebhookPluginConfig struct{}

type KafkaPluginConfig struct {
	Endpoints []string `json:"endpoints"`
}

type NotificationPluginsConfig struct {
	Email   *EmailPluginConfig   `json:"email,omitempty"`
	Webhook *WebhookPluginConfig `json:"webhook,omitempty"`
	Kafka   *KafkaPluginConfig   `json:"kafka,omitempty"`
}

type MasterConfigV1 struct {
	Port                int                       `json:"port"`
	LogLevel            string                    `json:"logLevel"`
	UFDS                UFDSConfig                `json:"ufds"`
	MAPI                MAPIConfig                `json:"mapi"`
	AccountCache        CacheConfig               `json:"accountCache"`
	ProbeCache          CacheConfig               `json:"probeCache"`
	NotificationPlugins NotificationPluginsConfig `json:"notificationPlugins"`
}

func (c *MasterConfig) Load(metadata Metadata, data []byte) error {
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

func (c *MasterConfig) loadV1(data []byte) (*MasterConfigV1, error) {
	cfg := new(MasterConfigV1)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	applyCacheDefaults(&cfg.AccountCache)
	applyCacheDefaults(&cfg.ProbeCache)
	return cfg, nil
}

func applyCacheDefaults(c *CacheConfig) {
	if c.Size == 0 {
		c.Size = 1000
	}
	if c.Expiry == 0 {
		c.Expiry = 300
	}
}

func (c *MasterConfig) V1() *MasterConfigV1 {
	return c.cfgV1
}
