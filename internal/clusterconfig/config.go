package clusterconfig

import (
	"fmt"

	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/tokmesh/cluster/internal/core/clusterid"
)

// Config is the parsed, validated node configuration of §6.
type Config struct {
	IP             string
	Port           int
	ClusterIP      string
	SlotRangeStart clusterid.Slot
	SlotRangeEnd   clusterid.Slot
	MaxClients     int64
	AOFFile        string
	MetadataFile   string
	StorageFile    string
	LogFile        string
	UsersFile      string
	Save           int64 // ms
	NodeTimeout    int64 // ms

	InitialMasterCount int // N in the failover vote-win condition

	AppendOnly    bool
	NodeIDSeed    string
	ReplicaOf     string
	PublicAddress string
	EncryptionKey string // empty disables wire/at-rest encryption
}

// ClusterPort is the bus port, always the client port offset by 10000.
func (c Config) ClusterPort() int { return c.Port + 10000 }

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), Parser()); err != nil {
		return nil, fmt.Errorf("clusterconfig: load %s: %w", path, err)
	}

	required := []string{
		"ip", "port", "cluster_ip", "slot_range_start", "slot_range_end",
		"max_clients", "aof_file", "metadata_file", "storage_file",
		"log_file", "users_file", "save", "node_timeout",
	}
	for _, key := range required {
		if !k.Exists(key) {
			return nil, fmt.Errorf("clusterconfig: missing required key %q", key)
		}
	}

	cfg := &Config{
		IP:             k.String("ip"),
		Port:           k.Int("port"),
		ClusterIP:      k.String("cluster_ip"),
		SlotRangeStart: clusterid.Slot(k.Int("slot_range_start")),
		SlotRangeEnd:   clusterid.Slot(k.Int("slot_range_end")),
		MaxClients:     k.Int64("max_clients"),
		AOFFile:        k.String("aof_file"),
		MetadataFile:   k.String("metadata_file"),
		StorageFile:    k.String("storage_file"),
		LogFile:        k.String("log_file"),
		UsersFile:      k.String("users_file"),
		Save:               k.Int64("save"),
		NodeTimeout:        k.Int64("node_timeout"),
		InitialMasterCount: firstNonZero(k.Int("initial_master_count"), 1),
		AppendOnly:     k.String("appendonly") == "yes",
		NodeIDSeed:     k.String("node_id_seed"),
		ReplicaOf:      k.String("replicaof"),
		PublicAddress:  k.String("public_address"),
		EncryptionKey:  k.String("encryption_key"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonZero(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func (c *Config) validate() error {
	if c.SlotRangeStart > clusterid.SlotCount || c.SlotRangeEnd > clusterid.SlotCount {
		return fmt.Errorf("clusterconfig: slot range must be within [0, %d]", clusterid.SlotCount)
	}
	if c.SlotRangeStart > c.SlotRangeEnd {
		return fmt.Errorf("clusterconfig: slot_range_start (%d) must be <= slot_range_end (%d)", c.SlotRangeStart, c.SlotRangeEnd)
	}
	if c.Save <= 0 {
		return fmt.Errorf("clusterconfig: save must be > 0, got %d", c.Save)
	}
	if c.NodeTimeout <= 1000 {
		return fmt.Errorf("clusterconfig: node_timeout must be > 1000, got %d", c.NodeTimeout)
	}
	return nil
}
