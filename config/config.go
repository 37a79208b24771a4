// Package config loads dspacekit settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DSPACEKIT_DATABASE_PATH.
const EnvPrefix = "DSPACEKIT"

// Config is the full application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Handle    HandleConfig    `mapstructure:"handle"`
	Harvester HarvesterConfig `mapstructure:"harvester"`
	DOI       DOIConfig       `mapstructure:"doi"`
	Mail      MailConfig      `mapstructure:"mail"`
	Alert     AlertConfig     `mapstructure:"alert"`
	Server    ServerConfig    `mapstructure:"server"`
	OAI       OAIConfig       `mapstructure:"oai"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type HandleConfig struct {
	// Prefix is the local handle prefix used when minting.
	Prefix string `mapstructure:"prefix"`
	// ResolverURL is prepended to a handle to build dc.identifier.uri.
	ResolverURL string `mapstructure:"resolver_url"`
}

// HarvesterConfig controls the OAI-PMH harvester.
type HarvesterConfig struct {
	TimePadding            time.Duration             `mapstructure:"time_padding"`
	ThreadTimeout          time.Duration             `mapstructure:"thread_timeout"`
	Interval               time.Duration             `mapstructure:"interval"`
	PollInterval           time.Duration             `mapstructure:"poll_interval"`
	MaxThreads             int                       `mapstructure:"max_threads"`
	HTTPTimeout            time.Duration             `mapstructure:"http_timeout"`
	MaxRetries             int                       `mapstructure:"max_retries"`
	RequestsPerSecond      float64                   `mapstructure:"requests_per_second"`
	AcceptedHandleServers  []string                  `mapstructure:"accepted_handle_servers"`
	RejectedHandlePrefixes []string                  `mapstructure:"rejected_handle_prefixes"`
	SourceIDField          string                    `mapstructure:"source_id_field"`
	ValidateRecords        bool                      `mapstructure:"validate_records"`
	OREFormat              string                    `mapstructure:"ore_format"`
	MetadataFormats        map[string]MetadataFormat `mapstructure:"metadata_formats"`
}

// MetadataFormat describes a harvestable metadata format: the namespace
// used to find the provider's prefix, the crosswalk used to ingest it, and
// optional transform and validation rule files.
type MetadataFormat struct {
	Namespace     string `mapstructure:"namespace"`
	Label         string `mapstructure:"label"`
	Crosswalk     string `mapstructure:"crosswalk"`
	PreTransform  string `mapstructure:"pre_transform"`
	PostTransform string `mapstructure:"post_transform"`
	Validation    string `mapstructure:"validation"`
}

// DOIConfig selects and configures the registration agency.
type DOIConfig struct {
	Agency      string         `mapstructure:"agency"`
	Prefix      string         `mapstructure:"prefix"`
	Namespace   string         `mapstructure:"namespace"`
	ResolverURL string         `mapstructure:"resolver_url"`
	ItemURL     string         `mapstructure:"item_url"`
	Crossref    CrossrefConfig `mapstructure:"crossref"`
	DataCite    DataCiteConfig `mapstructure:"datacite"`
}

type CrossrefConfig struct {
	Scheme         string `mapstructure:"scheme"`
	Host           string `mapstructure:"host"`
	DepositPath    string `mapstructure:"deposit_path"`
	QueryPath      string `mapstructure:"query_path"`
	SubmissionPath string `mapstructure:"submission_path"`
	DepositPrefix  string `mapstructure:"deposit_prefix"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	DepositorName  string `mapstructure:"depositor_name"`
	DepositorEmail string `mapstructure:"depositor_email"`
	Registrant     string `mapstructure:"registrant"`
}

type DataCiteConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type MailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type AlertConfig struct {
	Recipient string `mapstructure:"recipient"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// OAIConfig describes this repository as an OAI-PMH data provider.
type OAIConfig struct {
	RepositoryName   string `mapstructure:"repository_name"`
	BaseURL          string `mapstructure:"base_url"`
	AdminEmail       string `mapstructure:"admin_email"`
	// IdentifierPrefix is the namespace part of oai:<prefix>:<handle>.
	IdentifierPrefix string `mapstructure:"identifier_prefix"`
	PageSize         int    `mapstructure:"page_size"`
}

// Well known metadata format namespaces.
const (
	NamespaceOAIDC = "http://www.openarchives.org/OAI/2.0/oai_dc/"
	NamespaceDIM   = "http://www.dspace.org/xmlns/dspace/dim"
	NamespaceORE   = "http://www.w3.org/2005/Atom"
	NamespaceMODS  = "http://www.loc.gov/mods/v3"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "dspacekit.db")
	v.SetDefault("handle.prefix", "123456789")
	v.SetDefault("handle.resolver_url", "http://hdl.handle.net/")

	v.SetDefault("harvester.time_padding", 120*time.Second)
	v.SetDefault("harvester.thread_timeout", 24*time.Hour)
	v.SetDefault("harvester.interval", 12*time.Hour)
	v.SetDefault("harvester.poll_interval", time.Minute)
	v.SetDefault("harvester.max_threads", 3)
	v.SetDefault("harvester.http_timeout", 60*time.Second)
	v.SetDefault("harvester.max_retries", 3)
	v.SetDefault("harvester.accepted_handle_servers", []string{"hdl.handle.net"})
	v.SetDefault("harvester.rejected_handle_prefixes", []string{"123456789"})
	v.SetDefault("harvester.source_id_field", "cris.sourceId")
	v.SetDefault("harvester.validate_records", true)
	v.SetDefault("harvester.ore_format", NamespaceORE)
	v.SetDefault("harvester.metadata_formats", map[string]any{
		"dc": map[string]any{
			"namespace": NamespaceOAIDC,
			"label":     "Simple Dublin Core",
			"crosswalk": "oai_dc",
		},
		"dim": map[string]any{
			"namespace": NamespaceDIM,
			"label":     "DSpace Intermediate Metadata",
			"crosswalk": "dim",
		},
		"mods": map[string]any{
			"namespace": NamespaceMODS,
			"label":     "Metadata Object Description Schema",
			"crosswalk": "mods",
		},
	})

	v.SetDefault("doi.agency", "crossref")
	v.SetDefault("doi.prefix", "10.5072")
	v.SetDefault("doi.namespace", "dspace-")
	v.SetDefault("doi.resolver_url", "https://doi.org/")
	v.SetDefault("doi.item_url", "http://localhost:8080/handle/%s")
	v.SetDefault("doi.crossref.scheme", "https")
	v.SetDefault("doi.crossref.host", "test.crossref.org")
	v.SetDefault("doi.crossref.deposit_path", "/servlet/deposit")
	v.SetDefault("doi.crossref.query_path", "/servlet/query")
	v.SetDefault("doi.crossref.submission_path", "/servlet/submissionDownload")
	v.SetDefault("doi.crossref.deposit_prefix", "dspace")
	v.SetDefault("doi.crossref.depositor_name", "DSpace")
	v.SetDefault("doi.crossref.registrant", "DSpace")
	v.SetDefault("doi.datacite.url", "https://mds.test.datacite.org/")

	v.SetDefault("mail.port", 25)
	v.SetDefault("mail.from", "dspace-noreply@localhost")

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("oai.repository_name", "DSpace")
	v.SetDefault("oai.base_url", "http://localhost:8080/oai/request")
	v.SetDefault("oai.admin_email", "admin@localhost")
	v.SetDefault("oai.identifier_prefix", "localhost")
	v.SetDefault("oai.page_size", 100)
}

// Default returns the built-in defaults without reading files or the
// environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; a failure here is a programming error.
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	return &cfg
}

// Load reads configuration from path, or from dspacekit.yaml in the working
// directory or $HOME/.dspacekit when path is empty. A missing file is not an
// error. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("dspacekit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".dspacekit"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database.path must be set")
	}
	if c.Harvester.MaxThreads < 1 {
		return fmt.Errorf("harvester.max_threads must be positive, got %d", c.Harvester.MaxThreads)
	}
	switch strings.ToLower(c.DOI.Agency) {
	case "crossref", "datacite", "":
	default:
		return fmt.Errorf("unknown doi.agency %q", c.DOI.Agency)
	}
	return nil
}

// MetadataFormat looks up a harvestable format by its config id.
func (h *HarvesterConfig) MetadataFormat(id string) (MetadataFormat, bool) {
	mf, ok := h.MetadataFormats[strings.ToLower(id)]
	return mf, ok
}

// MetadataFormatIDs returns the configured format ids.
func (h *HarvesterConfig) MetadataFormatIDs() []string {
	ids := make([]string, 0, len(h.MetadataFormats))
	for id := range h.MetadataFormats {
		ids = append(ids, id)
	}
	return ids
}
