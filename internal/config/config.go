package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the bot reads and rewrites its configuration.
const DefaultPath = "config.yml"

// Inbox providers.
const (
	ProviderTwitter  = "twitter"
	ProviderTelegram = "telegram"
	ProviderDiscord  = "discord"
)

// Config is the root configuration document. The twitter, tv_show_dir, sonarr,
// couchpotato and sab keys keep the layout existing config.yml files use.
type Config struct {
	Twitter     TwitterConfig     `yaml:"twitter"`
	TVShowDir   string            `yaml:"tv_show_dir"`
	Sonarr      SonarrConfig      `yaml:"sonarr"`
	CouchPotato CouchPotatoConfig `yaml:"couchpotato"`
	SAB         ServiceConfig     `yaml:"sab"`

	Inbox    InboxConfig    `yaml:"inbox"`
	Telegram TelegramConfig `yaml:"telegram"`
	Discord  DiscordConfig  `yaml:"discord"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// TwitterConfig holds the inbox account. my_id, command_start_character and
// last_seen apply to every inbox provider; the OAuth fields only to twitter.
type TwitterConfig struct {
	ConsumerKey           string `yaml:"consumer_key"`
	ConsumerSecret        string `yaml:"consumer_secret"`
	AccessToken           string `yaml:"access_token"`
	AccessSecret          string `yaml:"access_secret"`
	MyID                  string `yaml:"my_id"`
	CommandStartCharacter string `yaml:"command_start_character"`
	LastSeen              int64  `yaml:"last_seen"`
}

// ServiceConfig locates one downstream REST service.
type ServiceConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	SSL    bool   `yaml:"ssl"`
	APIKey string `yaml:"apikey"`
}

// BaseURL returns scheme://host:port without a trailing slash.
func (s ServiceConfig) BaseURL() string {
	scheme := "http"
	if s.SSL {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type SonarrConfig struct {
	ServiceConfig `yaml:",inline"`
	ProfileID     int `yaml:"profile_id"`
}

type CouchPotatoConfig struct {
	ServiceConfig `yaml:",inline"`
	ProfileID     string `yaml:"profile_id"`
	CategoryID    string `yaml:"category_id"`
}

type InboxConfig struct {
	Provider       string `yaml:"provider"`        // twitter | telegram | discord
	PollInterval   int    `yaml:"poll_interval"`   // seconds
	FetchLimit     int    `yaml:"fetch_limit"`     // messages per fetch
	RequestTimeout int    `yaml:"request_timeout"` // seconds, per outbound call
	APIBase        string `yaml:"api_base,omitempty"`
}

func (c InboxConfig) Interval() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

func (c InboxConfig) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

type TelegramConfig struct {
	Token string `yaml:"token"`
}

type DiscordConfig struct {
	Token string `yaml:"token"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type LogConfig struct {
	Level string `yaml:"level"` // debug | info | warn | error
}

// Load reads, expands and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.TVShowDir = strings.TrimSpace(cfg.TVShowDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config file %s is incomplete: %w", path, err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset ${VAR}
// without default is left as is.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// Save writes the whole document. Environment references are written out
// resolved, so the bot itself only uses SaveLastSeen.
func Save(path string, cfg *Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// SaveLastSeen rewrites twitter.last_seen in the file at path, leaving every
// other key, comment and ${VAR} reference untouched.
func SaveLastSeen(path string, lastSeen int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config file %s: top level is not a mapping", path)
	}

	twitter := mappingValue(root, "twitter")
	if twitter == nil {
		twitter = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		setMappingValue(root, "twitter", twitter)
	}
	if twitter.Kind != yaml.MappingNode {
		return fmt.Errorf("config file %s: twitter is not a mapping", path)
	}
	setMappingValue(twitter, "last_seen", &yaml.Node{
		Kind:  yaml.ScalarNode,
		Tag:   "!!int",
		Value: strconv.FormatInt(lastSeen, 10),
	})

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func setMappingValue(m *yaml.Node, key string, val *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			val.HeadComment = m.Content[i+1].HeadComment
			val.LineComment = m.Content[i+1].LineComment
			m.Content[i+1] = val
			return
		}
	}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		val,
	)
}

// writeFileAtomic replaces path via a temp file in the same directory so a
// crash mid-write never leaves a truncated config behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot write config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("cannot sync config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot close config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("cannot chmod config: %w", err)
	}
	return os.Rename(tmpName, path)
}

// Validate checks required fields and value ranges. It runs before any
// network call is made.
func Validate(cfg *Config) error {
	var errs []string

	required := func(name, val string) {
		if strings.TrimSpace(val) == "" {
			errs = append(errs, name+" is required")
		}
	}

	required("tv_show_dir", cfg.TVShowDir)
	required("twitter.my_id", cfg.Twitter.MyID)

	switch cfg.Inbox.Provider {
	case ProviderTwitter:
		required("twitter.consumer_key", cfg.Twitter.ConsumerKey)
		required("twitter.consumer_secret", cfg.Twitter.ConsumerSecret)
		required("twitter.access_token", cfg.Twitter.AccessToken)
		required("twitter.access_secret", cfg.Twitter.AccessSecret)
	case ProviderTelegram:
		required("telegram.token", cfg.Telegram.Token)
	case ProviderDiscord:
		required("discord.token", cfg.Discord.Token)
	default:
		errs = append(errs, "inbox.provider must be one of: twitter, telegram, discord")
	}

	if utf8.RuneCountInString(cfg.Twitter.CommandStartCharacter) != 1 {
		errs = append(errs, "twitter.command_start_character must be exactly one character")
	}
	if cfg.Twitter.LastSeen < 0 {
		errs = append(errs, "twitter.last_seen must be >= 0")
	}

	if cfg.Inbox.PollInterval < 1 {
		errs = append(errs, "inbox.poll_interval must be >= 1")
	}
	if cfg.Inbox.FetchLimit < 1 || cfg.Inbox.FetchLimit > 200 {
		errs = append(errs, "inbox.fetch_limit must be between 1 and 200")
	}
	if cfg.Inbox.RequestTimeout < 1 {
		errs = append(errs, "inbox.request_timeout must be >= 1")
	}

	for name, svc := range map[string]ServiceConfig{
		"sonarr":      cfg.Sonarr.ServiceConfig,
		"couchpotato": cfg.CouchPotato.ServiceConfig,
		"sab":         cfg.SAB,
	} {
		if svc.Port < 0 || svc.Port > 65535 {
			errs = append(errs, name+".port must be between 0 and 65535")
		}
	}

	if cfg.History.Enabled && cfg.History.DBPath == "" {
		errs = append(errs, "history.db_path is required when history is enabled")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of: debug, info, warn, error")
	}

	if len(errs) > 0 {
		// Map iteration above is unordered.
		sort.Strings(errs)
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
