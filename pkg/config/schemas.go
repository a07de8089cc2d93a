package config

import (
	"encoding/json"
	"fmt"

	"github.com/go-openapi/spec"
	"github.com/go-openapi/swag"
)

var Schemas = map[string]string{
	"MasterConfig/v1": `
type: object
additionalProperties: false
required:
- apiVersion
- kind
- ufds
- mapi
properties:
  apiVersion:
    type: string
  kind:
    type: string
  port:
    type: integer
    minimum: 1
    maximum: 65535
  logLevel:
    type: string
    enum: [trace, debug, info, warn, error]
  ufds:
    type: object
    additionalProperties: false
    required: [url, bindDN, bindPassword]
    properties:
      url:
        description: |
          Directory address, ldap:// or ldaps://.
        type: string
      bindDN:
        type: string
      bindPassword:
        type: string
  mapi:
    type: object
    additionalProperties: false
    required: [url]
    properties:
      url:
        type: string
      username:
        type: string
      password:
        type: string
  accountCache:
    type: object
    additionalProperties: false
    properties:
      size:
        type: integer
        minimum: 1
      expiry:
        description: |
          Entry lifetime in seconds.
        type: integer
        minimum: 1
  probeCache:
    type: object
    additionalProperties: false
    properties:
      size:
        type: integer
        minimum: 1
      expiry:
        type: integer
        minimum: 1
  notificationPlugins:
    type: object
    additionalProperties: false
    properties:
      email:
        type: object
        additionalProperties: false
        required: [host, from]
        properties:
          host:
            type: string
          port:
            type: integer
          username:
            type: string
          password:
            type: string
          from:
            type: string
      webhook:
        type: object
        additionalProperties: false
      kafka:
        type: object
        additionalProperties: false
        required: [endpoints]
        properties:
          endpoints:
            type: array
            minItems: 1
            items:
              type: string
`,
	"RelayConfig/v1": `
type: object
additionalProperties: false
required:
- apiVersion
- kind
- masterUrl
- dataDir
- socketDir
- server
properties:
  apiVersion:
    type: string
  kind:
    type: string
  logLevel:
    type: string
    enum: [trace, debug, info, warn, error]
  masterUrl:
    type: string
  dataDir:
    description: |
      Where probe manifests and their content-md5 files are kept.
    type: string
  socketDir:
    description: |
      Where per-target agent sockets are created.
    type: string
  pollInterval:
    description: |
      Master poll interval in seconds.
    type: integer
    minimum: 1
  server:
    description: |
      UUID of the compute node this relay runs on.
    type: string
  machines:
    description: |
      UUIDs of the tenant machines hosted on this node.
    type: array
    items:
      type: string
  metricsAddr:
    type: string
  spool:
    type: object
    additionalProperties: false
    properties:
      path:
        type: string
      maxEvents:
        type: integer
        minimum: 1
      maxAge:
        description: |
          Maximum spooled event age in seconds.
        type: integer
        minimum: 1
`,
	"AgentConfig/v1": `
type: object
additionalProperties: false
required:
- apiVersion
- kind
- socket
properties:
  apiVersion:
    type: string
  kind:
    type: string
  logLevel:
    type: string
    enum: [trace, debug, info, warn, error]
  socket:
    description: |
      Path of the relay socket this agent talks to.
    type: string
  dataDir:
    type: string
  pollInterval:
    type: integer
    minimum: 1
  global:
    description: |
      True for the agent in the compute node's privileged sandbox.
    type: boolean
  machineStateCmd:
    description: |
      Command run as '<cmd> <machine-uuid>' to check sandbox liveness for
      machineup probes. Exit 0 means up, exit 1 means down. Only the
      privileged agent needs it.
    type: string
`,
}

var SchemasCache = map[string]*spec.Schema{}

// GetSchema returns loaded schema.
func GetSchema(name string) *spec.Schema {
	if s, ok := SchemasCache[name]; ok {
		return s
	}
	if _, ok := Schemas[name]; !ok {
		return nil
	}

	// ignore error because load is guaranteed by tests
	SchemasCache[name], _ = LoadSchema(name)
	return SchemasCache[name]
}

// LoadSchema returns spec.Schema object loaded from yaml in Schemas map.
func LoadSchema(name string) (*spec.Schema, error) {
	yml, err := swag.BytesToYAMLDoc([]byte(Schemas[name]))
	if err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %v", err)
	}
	d, err := swag.YAMLToJSON(yml)
	if err != nil {
		return nil, fmt.Errorf("yaml to json: %v", err)
	}

	s := new(spec.Schema)
	if err := json.Unmarshal(d, s); err != nil {
		return nil, fmt.Errorf("json unmarshal: %v", err)
	}

	if err := spec.ExpandSchema(s, s, nil); err != nil {
		return nil, fmt.Errorf("expand schema: %v", err)
	}
	return s, nil
}
