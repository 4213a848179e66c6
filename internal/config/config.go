package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"
	"github.com/temoto/dynfw/helpers"
	"github.com/temoto/dynfw/internal/certfetch"
	"github.com/temoto/dynfw/internal/channel"
	"github.com/temoto/dynfw/internal/message"
	"github.com/temoto/dynfw/log2"
)

const (
	DefaultIdentityDir     = "/var/lib/dynfw-client"
	DefaultStatInterval    = 5 * time.Minute
	DefaultDownloadTimeout = 30 * time.Second
	DefaultReportPreview   = 3

	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

type Config struct {
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []Source `hcl:"include"`

	Server          string `hcl:"server"`
	Port            int    `hcl:"port"`
	TopicPrefix     string `hcl:"topic_prefix"`
	IdentityDir     string `hcl:"identity_dir"`
	LogDebug        bool   `hcl:"log_debug"`
	StatIntervalSec int    `hcl:"stat_interval_sec"`

	Cert struct {
		File               string `hcl:"file"`
		Download           bool   `hcl:"download"` // even when file is set
		DownloadURL        string `hcl:"download_url"`
		DownloadTimeoutSec int    `hcl:"download_timeout_sec"`
	} `hcl:"cert"`

	Report struct {
		Enable  *bool `hcl:"enable"`
		Preview int   `hcl:"preview"`
	} `hcl:"report"`

	Forward ForwardConfig `hcl:"forward"`
}

type ForwardConfig struct { //nolint:maligned
	Enable       bool   `hcl:"enable"`
	MqttBroker   string `hcl:"mqtt_broker"`
	ClientID     string `hcl:"client_id"`
	Username     string `hcl:"username"`
	Password     string `hcl:"password"` // secret
	TopicPrefix  string `hcl:"topic_prefix"`
	Format       string `hcl:"format"`
	Qos          int    `hcl:"qos"`
	KeepaliveSec int    `hcl:"keepalive_sec"`
	LogDebug     bool   `hcl:"log_debug"`
}

type Source struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

func New() *Config {
	c := &Config{includeSeen: make(map[string]struct{})}
	c.SetDefaults()
	return c
}

// SetDefaults fills only zero values, safe to call after reading.
func (c *Config) SetDefaults() {
	if c.Server == "" {
		c.Server = channel.DefaultHost
	}
	if c.Port == 0 {
		c.Port = channel.DefaultPort
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = message.TopicPrefix
	}
	if c.IdentityDir == "" {
		c.IdentityDir = DefaultIdentityDir
	}
	if c.NeedDownload() && c.Cert.DownloadURL == "" {
		c.Cert.DownloadURL = certfetch.DefaultURL
	}
	if c.Report.Enable == nil {
		enable := true
		c.Report.Enable = &enable
	}
	if c.Report.Preview == 0 {
		c.Report.Preview = DefaultReportPreview
	}
	if c.Forward.ClientID == "" {
		c.Forward.ClientID = "dynfw-client"
	}
	if c.Forward.Format == "" {
		c.Forward.Format = FormatJSON
	}
}

func (c *Config) Validate() error {
	errs := make([]error, 0, 4)
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, errors.NotValidf("config: port=%d", c.Port))
	}
	if c.TopicPrefix == "" {
		errs = append(errs, errors.NotValidf("config: topic_prefix empty"))
	}
	if c.Report.Preview < 0 {
		errs = append(errs, errors.NotValidf("config: report.preview=%d", c.Report.Preview))
	}
	if c.Forward.Enable {
		if c.Forward.MqttBroker == "" {
			errs = append(errs, errors.NotValidf("config: forward.mqtt_broker empty"))
		}
		switch c.Forward.Format {
		case FormatJSON, FormatMsgpack:
		default:
			errs = append(errs, errors.NotValidf("config: forward.format=%s", c.Forward.Format))
		}
		if c.Forward.Qos < 0 || c.Forward.Qos > 2 {
			errs = append(errs, errors.NotValidf("config: forward.qos=%d", c.Forward.Qos))
		}
	}
	return helpers.FoldErrors(errs)
}

func (c *Config) ReportEnabled() bool { return c.Report.Enable == nil || *c.Report.Enable }

func (c *Config) StatInterval() time.Duration {
	if c.StatIntervalSec < 0 {
		return 0
	}
	return helpers.IntSecondDefault(c.StatIntervalSec, DefaultStatInterval)
}

func (c *Config) DownloadTimeout() time.Duration {
	return helpers.IntSecondDefault(c.Cert.DownloadTimeoutSec, DefaultDownloadTimeout)
}

// ServerCertPath is where downloaded certificate is stored.
func (c *Config) ServerCertPath() string {
	if c.Cert.File != "" {
		return c.Cert.File
	}
	return filepath.Join(c.IdentityDir, certfetch.FileName)
}

// NeedDownload reports whether server certificate comes from download_url.
func (c *Config) NeedDownload() bool { return c.Cert.File == "" || c.Cert.Download }

func (c *Config) Subscription() channel.Subscription {
	return channel.Subscription{Host: c.Server, Port: c.Port, TopicPrefix: c.TopicPrefix}
}

func (c *Config) String() string {
	return fmt.Sprintf("server=%s port=%d prefix=%q identity_dir=%s cert.file=%s cert.download_url=%s forward=%v",
		c.Server, c.Port, c.TopicPrefix, c.IdentityDir, c.Cert.File, c.Cert.DownloadURL, c.Forward.Enable)
}

func (c *Config) read(log *log2.Log, fs FullReader, source Source, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		*errs = append(*errs, errors.Errorf("config duplicate source=%s", source.Name))
		return
	}
	log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
		}
		return
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		// content not printed, may contain forward.password
		err = errors.Annotatef(err, "config unmarshal source=%s", source.Name)
		*errs = append(*errs, err)
		return
	}

	var includes []Source
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

// Read parses names in order, later values override earlier.
// Missing values are filled with defaults, result is validated.
func Read(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		panic("code error config.Read() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{includeSeen: make(map[string]struct{})}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, Source{Name: name}, &errs)
	}
	if err := helpers.FoldErrors(errs); err != nil {
		return c, err
	}
	c.SetDefaults()
	return c, c.Validate()
}
