package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/kelseyhightower/envconfig"
	"github.com/rarydzu/tfs/tfs/dir"
	"gopkg.in/yaml.v2"
)

const (
	// EnvPrefix prefixes every environment override, e.g. TFS_BLOCK_SIZE.
	EnvPrefix = "TFS"

	DefaultMaxInodeCount     = 64
	DefaultMaxBlockCount     = 1024
	DefaultMaxOpenFilesCount = 16
	DefaultBlockSize         = 1024
)

type Config struct {
	//MaxInodeCount size of the inode table
	MaxInodeCount int `envconfig:"MAX_INODE_COUNT" yaml:"maxInodeCount"`
	//MaxBlockCount number of data blocks
	MaxBlockCount int `envconfig:"MAX_BLOCK_COUNT" yaml:"maxBlockCount"`
	//MaxOpenFilesCount size of the open file table
	MaxOpenFilesCount int `envconfig:"MAX_OPEN_FILES_COUNT" yaml:"maxOpenFilesCount"`
	//BlockSize data block size in bytes
	BlockSize int `envconfig:"BLOCK_SIZE" yaml:"blockSize"`
	//FilesystemName name of the filesystem
	FilesystemName string `envconfig:"FILESYSTEM_NAME" yaml:"filesystemName"`
	// fuse config
	FuseCfg *fuse.MountConfig `ignored:"true" yaml:"-"`
	//Mountpoint filesystem mountpoint, empty means no mount
	Mountpoint string `envconfig:"MOUNTPOINT" yaml:"mountpoint"`
	//StatAddress listen address of the stat server, empty means disabled
	StatAddress string `envconfig:"STAT_ADDRESS" yaml:"statAddress"`
	//CertDir directory with TLS material for stat clients
	CertDir string `envconfig:"CERT_DIR" yaml:"certDir"`
	//DebugMode run in debug mode
	DebugMode bool `envconfig:"DEBUG" yaml:"debug"`
	//ReadOnly mount read only
	ReadOnly bool `envconfig:"READ_ONLY" yaml:"readOnly"`
	//ShutdownTimeout timeout for shutdown
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" yaml:"shutdownTimeout"`
}

// Default returns the stock engine geometry.
func Default() *Config {
	return &Config{
		MaxInodeCount:     DefaultMaxInodeCount,
		MaxBlockCount:     DefaultMaxBlockCount,
		MaxOpenFilesCount: DefaultMaxOpenFilesCount,
		BlockSize:         DefaultBlockSize,
		FilesystemName:    "tfs",
		ShutdownTimeout:   60 * time.Second,
	}
}

// Load starts from Default, applies the YAML file at path (if any) and then
// TFS_* environment variables.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the engine geometry.
func (c *Config) Validate() error {
	if c.MaxInodeCount <= 0 {
		return errors.New("max inode count must be positive")
	}
	if c.MaxBlockCount <= 0 {
		return errors.New("max block count must be positive")
	}
	if c.MaxOpenFilesCount <= 0 {
		return errors.New("max open files count must be positive")
	}
	if c.BlockSize <= 0 {
		return errors.New("block size must be positive")
	}
	if c.BlockSize < dir.RecordSize {
		return fmt.Errorf("block size %d cannot hold a directory entry of %d bytes", c.BlockSize, dir.RecordSize)
	}
	return nil
}
