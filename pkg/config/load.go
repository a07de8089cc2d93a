package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/isabella232/sdc-amon/pkg/model"
)

func loadFile(path, wantKind string) (*VersionedUntyped, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	vu := new(VersionedUntyped)
	if err := vu.DetectMetadata(data); err != nil {
		return nil, fmt.Errorf("read %s: %v", path, err)
	}
	if vu.Metadata.Kind != wantKind {
		return nil, fmt.Errorf("%s holds a %s, want %s", path, vu.Metadata.Kind, wantKind)
	}

	schemaName := vu.Metadata.Kind + "/" + vu.Metadata.Version
	s := GetSchema(schemaName)
	if s == nil {
		return nil, fmt.Errorf("%s: no schema for %s", path, schemaName)
	}
	if err := ValidateConfig(vu.Object(), s, "root"); err != nil {
		return nil, fmt.Errorf("validate %s: %v", path, err)
	}
	return vu, nil
}

// LoadMaster reads, validates and types a master config file.
func LoadMaster(path string) (*MasterConfigV1, error) {
	vu, err := loadFile(path, MasterConfigKind)
	if err != nil {
		return nil, err
	}
	c := new(MasterConfig)
	if err := c.Load(vu.Metadata, vu.Data()); err != nil {
		return nil, fmt.Errorf("load %s from '%s': %v", MasterConfigKind, path, err)
	}
	cfg := c.V1()
	if err := checkURL(cfg.UFDS.URL, "ufds.url", "ldap", "ldaps"); err != nil {
		return nil, err
	}
	if err := checkURL(cfg.MAPI.URL, "mapi.url", "http", "https"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRelay reads, validates and types a relay config file.
func LoadRelay(path string) (*RelayConfigV1, error) {
	vu, err := loadFile(path, RelayConfigKind)
	if err != nil {
		return nil, err
	}
	c := new(RelayConfig)
	if err := c.Load(vu.Metadata, vu.Data()); err != nil {
		return nil, fmt.Errorf("load %s from '%s': %v", RelayConfigKind, path, err)
	}
	cfg := c.V1()
	if err := checkURL(cfg.MasterURL, "masterUrl", "http", "https"); err != nil {
		return nil, err
	}
	if !model.ValidUUID(cfg.Server) {
		return nil, fmt.Errorf("server: %q is not a UUID", cfg.Server)
	}
	for _, m := range cfg.Machines {
		if !model.ValidUUID(m) {
			return nil, fmt.Errorf("machines: %q is not a UUID", m)
		}
	}
	return cfg, nil
}

// LoadAgent reads, validates and types an agent config file.
func LoadAgent(path string) (*AgentConfigV1, error) {
	vu, err := loadFile(path, AgentConfigKind)
	if err != nil {
		return nil, err
	}
	c := new(AgentConfig)
	if err := c.Load(vu.Metadata, vu.Data()); err != nil {
		return nil, fmt.Errorf("load %s from '%s': %v", AgentConfigKind, path, err)
	}
	return c.V1(), nil
}

func checkURL(raw, key string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %v", key, err)
	}
	for _, s := range schemes {
		if u.Scheme == s {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported scheme %q in %q", key, u.Scheme, raw)
}
