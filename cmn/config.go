package cmn

import (
	"flag"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// NodeType enumerates the two roles a node in the cluster can take; the
// role is static configuration, never elected (spec §1 Non-goals).
type NodeType string

const (
	Master NodeType = "master"
	Worker NodeType = "worker"
)

// Intervals groups every "interval.*" recognized option from spec §6.
type Intervals struct {
	SyncIntegrity      jsonDuration `json:"sync_integrity"`
	SyncFiles          jsonDuration `json:"sync_files"`
	FileTransferSend    jsonDuration `json:"file_transfer_send"`
	StringTransferSend  jsonDuration `json:"string_transfer_send"`
}

// jsonDuration lets the config file express durations as plain seconds
// (matching the original Python config's float-seconds convention) while
// the rest of the Go code works with time.Duration.
type jsonDuration time.Duration

func (d jsonDuration) Duration() time.Duration { return time.Duration(d) }

func (d *jsonDuration) UnmarshalJSON(b []byte) error {
	var secs float64
	if err := jsoniter.Unmarshal(b, &secs); err != nil {
		return err
	}
	*d = jsonDuration(time.Duration(secs * float64(time.Second)))
	return nil
}

func (d jsonDuration) MarshalJSON() ([]byte, error) {
	return jsoniter.Marshal(time.Duration(d).Seconds())
}

// Config is the recognized-options set of spec §6.
type Config struct {
	Name     string   `json:"name"`
	NodeName string   `json:"node_name"`
	NodeType NodeType `json:"node_type"`
	Key      string   `json:"key"` // 32 chars, pre-shared symmetric key
	Port     int      `json:"port"`
	Nodes    []string `json:"nodes"`

	Interval Intervals `json:"interval"`

	MaxTimeReceivingFile   jsonDuration `json:"max_time_receiving_file"`
	MaxTimeReceivingString jsonDuration `json:"max_time_receiving_string"`
}

// NewDefaultConfig exposes the same defaults LoadConfig overlays a config
// file onto, for callers (the daemon entrypoint) that need to register
// flag.FlagSet overrides against a Config before the file has been read.
func NewDefaultConfig() *Config { return defaultConfig() }

func defaultConfig() *Config {
	return &Config{
		Interval: Intervals{
			SyncIntegrity:      jsonDuration(10 * time.Second),
			SyncFiles:          jsonDuration(10 * time.Second),
			FileTransferSend:   jsonDuration(100 * time.Millisecond),
			StringTransferSend: jsonDuration(20 * time.Millisecond),
		},
		MaxTimeReceivingFile:   jsonDuration(30 * time.Second),
		MaxTimeReceivingString: jsonDuration(10 * time.Second),
	}
}

// LoadConfig reads the JSON config at path and overlays it on the defaults.
// Grounded on tomzhang-aistore/cmn/config.go's own pairing of a JSON config
// file with stdlib "flag" overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	if err := jsoniter.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RegisterFlags wires the handful of options that make sense as CLI
// overrides (port and node identity) onto fs, matching the teacher's own
// direct use of the stdlib "flag" package.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.NodeName, "node-name", c.NodeName, "this node's name")
	fs.Var((*nodeTypeFlag)(&c.NodeType), "node-type", "master or worker")
	fs.IntVar(&c.Port, "port", c.Port, "TCP port for the cluster wire protocol")
}

type nodeTypeFlag NodeType

func (f *nodeTypeFlag) String() string { return string(*f) }
func (f *nodeTypeFlag) Set(s string) error {
	switch NodeType(s) {
	case Master, Worker:
		*f = nodeTypeFlag(s)
		return nil
	default:
		return errors.Errorf("invalid node_type %q (want master|worker)", s)
	}
}

func (c *Config) Validate() error {
	if c.NodeName == "" {
		return errors.New("node_name is required")
	}
	if c.NodeType != Master && c.NodeType != Worker {
		return errors.Errorf("invalid node_type %q (want master|worker)", c.NodeType)
	}
	if c.Key != "" && len(c.Key) != 32 {
		return errors.Errorf("key must be exactly 32 characters, got %d", len(c.Key))
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Port)
	}
	return nil
}
