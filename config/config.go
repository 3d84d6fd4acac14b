// Package config loads the semq daemon configuration from a YAML file and the
// SEMQ_* environment, and converts it into a daemon.Config.
package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/kapetan-io/errors"
	"github.com/kapetan-io/semq/daemon"
	"github.com/kapetan-io/tackle/color"
	"gopkg.in/yaml.v3"
)

const (
	EnvMetastorePath = "SEMQ_DEFAULT_METASTORE_PATH"
	EnvPartitionSize = "SEMQ_DEFAULT_PARTITION_SIZE"
	EnvTrashDirName  = "SEMQ_DEFAULT_METASTORE_TRASHDIR"
	EnvItemHashing   = "SEMQ_ITEM_HASHING"
	EnvListenAddress = "SEMQ_LISTEN_ADDRESS"
	EnvLogLevel      = "SEMQ_LOG_LEVEL"
	EnvLogHandler    = "SEMQ_LOG_HANDLER"
)

type File struct {
	// TODO(thrawn01): Add support for TLS config
	MetastorePath string  `yaml:"metastore-path"`
	PartitionSize int     `yaml:"partition-size"`
	TrashDirName  string  `yaml:"trash-dirname"`
	ItemHashing   bool    `yaml:"item-hashing"`
	ListenAddress string  `yaml:"listen-address"`
	Logging       Logging `yaml:"logging"`
	// ConfigFile is the path to the config file that was loaded
	ConfigFile string `yaml:"-"`
}

type Logging struct {
	Level   string `yaml:"level"`
	Handler string `yaml:"handler"`
}

// LoadFile decodes the YAML config file at 'path'
func LoadFile(path string) (File, error) {
	var file File

	reader, err := os.Open(path)
	if err != nil {
		return file, ErrFileNotExist{Msg: err.Error()}
	}
	defer func() { _ = reader.Close() }()

	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return file, ErrYAMLParse{Msg: err.Error()}
	}
	file.ConfigFile = path
	return file, nil
}

// LoadEnv fills any setting the config file left empty from the SEMQ_* environment.
// Variables are read from the optional dot env files first, variables set in the
// process environment take precedence over those files.
func LoadEnv(file *File, envFiles ...string) error {
	vars := make(map[string]string)
	for _, path := range envFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		m, err := godotenv.Read(path)
		if err != nil {
			return fmt.Errorf("while reading env file '%s': %w", path, err)
		}
		for k, v := range m {
			vars[k] = v
		}
	}

	return ApplyEnv(file, func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vars[key]
		return v, ok
	})
}

// ApplyEnv fills any setting the config file left empty using 'lookup'
func ApplyEnv(file *File, lookup func(string) (string, bool)) error {
	str := func(dst *string, key string) {
		if v, ok := lookup(key); ok && *dst == "" {
			*dst = v
		}
	}

	str(&file.MetastorePath, EnvMetastorePath)
	str(&file.TrashDirName, EnvTrashDirName)
	str(&file.ListenAddress, EnvListenAddress)
	str(&file.Logging.Level, EnvLogLevel)
	str(&file.Logging.Handler, EnvLogHandler)

	if v, ok := lookup(EnvPartitionSize); ok && file.PartitionSize == 0 {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return fmt.Errorf("invalid %s; '%s' is not a positive integer", EnvPartitionSize, v)
		}
		file.PartitionSize = n
	}

	if v, ok := lookup(EnvItemHashing); ok && !file.ItemHashing {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s; '%s' is not a boolean", EnvItemHashing, v)
		}
		file.ItemHashing = b
	}
	return nil
}

func ApplyConfigFile(_ context.Context, conf *daemon.Config, file File, w io.Writer) error {
	if err := setupLogger(file, w, conf); err != nil {
		return err
	}

	if file.PartitionSize < 0 {
		return fmt.Errorf("invalid partition-size; '%d' cannot be negative", file.PartitionSize)
	}

	conf.MetastorePath = file.MetastorePath
	conf.PartitionMaxSize = file.PartitionSize
	conf.TrashDirName = file.TrashDirName
	conf.ItemHashing = file.ItemHashing
	conf.ListenAddress = file.ListenAddress

	// Apply defaults if there are required config items missing from the provided config file
	conf.SetDefaults()

	if file.ConfigFile != "" {
		conf.Log.Info("Loaded config from file", "file", file.ConfigFile)
	}
	return nil
}

func setupLogger(file File, w io.Writer, d *daemon.Config) error {
	switch file.Logging.Handler {
	case "color", "":
		d.Log = slog.New(color.NewLog(&color.LogOptions{
			HandlerOptions: slog.HandlerOptions{
				Level: toLogLevel(file.Logging.Level),
			},
			Writer: w,
		}))
		return nil
	case "text":
		d.Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: toLogLevel(file.Logging.Level),
		}))
		return nil
	case "json":
		d.Log = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: toLogLevel(file.Logging.Level),
		}))
		return nil
	default:
		return fmt.Errorf("invalid handler; '%s' is not one of (color, text, json)",
			file.Logging.Handler)
	}
}

func toLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
