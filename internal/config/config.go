// Package config holds the configuration of the atpd daemon.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ftl/m2mb-atp/profile"
	"github.com/ftl/m2mb-atp/sms"
	"github.com/ftl/m2mb-atp/v250"
)

const (
	ProductName       = "atpd"
	DefaultConfigPath = "/etc/" + ProductName + "/config.toml"
	DefaultProfile    = "/var/lib/" + ProductName + "/profile.toml"
	DefaultListen     = "127.0.0.1:2323"
)

type Config struct {
	Debug bool `toml:"debug"`
	// Trace is the file the AT traffic is written to, "-" for stderr.
	Trace          string              `toml:"trace,omitempty"`
	ReleaseTimeout Duration            `toml:"release_timeout"`
	Serial         SerialConfig        `toml:"serial"`
	Listen         ListenConfig        `toml:"listen"`
	Profile        ProfileConfig       `toml:"profile"`
	SMS            SMSConfig           `toml:"sms"`
	Identification v250.Identification `toml:"identification"`
}

type SerialConfig struct {
	// Port is the device file of the serial port, empty disables the serial instance.
	Port string `toml:"port,omitempty"`
	// Detect selects the serial port by its description if no port is given.
	Detect      string `toml:"detect,omitempty"`
	Baud        uint   `toml:"baud,omitempty"`
	FlowControl bool   `toml:"flow_control"`
}

func (c SerialConfig) Enabled() bool {
	return c.Port != "" || c.Detect != ""
}

type ListenConfig struct {
	// Address is the TCP address, empty disables the TCP instances.
	Address        string `toml:"address,omitempty"`
	MaxConnections int    `toml:"max_connections"`
}

type ProfileConfig struct {
	// Path of the profile file, empty keeps the profiles only in memory.
	Path   string `toml:"path,omitempty"`
	Format string `toml:"format,omitempty"`
}

type SMSConfig struct {
	Capacity  int    `toml:"capacity"`
	OwnNumber string `toml:"own_number,omitempty"`
}

// Default returns the configuration used for everything the config file does not contain.
func Default() *Config {
	return &Config{
		ReleaseTimeout: Duration(30 * time.Second),
		Listen: ListenConfig{
			Address:        DefaultListen,
			MaxConnections: 8,
		},
		Profile: ProfileConfig{
			Path:   DefaultProfile,
			Format: "toml",
		},
		SMS: SMSConfig{
			Capacity: sms.DefaultCapacity,
		},
		Identification: v250.DefaultIdentification,
	}
}

// Load reads the configuration from the given TOML file on top of the defaults. A missing file is
// accepted if acceptMissing is set.
func Load(path string, acceptMissing bool) (*Config, error) {
	result := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && acceptMissing:
		return result, result.Verify()
	case err != nil:
		return nil, err
	}

	if err := toml.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	if err := result.Verify(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save writes the configuration as TOML file.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Verify checks that the configuration is usable.
func (c *Config) Verify() error {
	if !c.Serial.Enabled() && c.Listen.Address == "" {
		return fmt.Errorf("neither a serial port nor a listen address is configured")
	}
	if c.Listen.MaxConnections < 0 {
		return fmt.Errorf("invalid maximum number of connections: %d", c.Listen.MaxConnections)
	}
	if c.Profile.Path != "" {
		if _, err := profile.NewFile(c.Profile.Format, c.Profile.Path); err != nil {
			return err
		}
	}
	if c.ReleaseTimeout < 0 {
		return fmt.Errorf("invalid release timeout: %s", c.ReleaseTimeout.Value())
	}
	if c.SMS.Capacity < 0 {
		return fmt.Errorf("invalid message storage capacity: %d", c.SMS.Capacity)
	}
	return nil
}

// CLIFlags override single values of the config file.
type CLIFlags struct {
	ConfigPath string
	Debug      bool
	Trace      string
	SerialPort string
	Listen     string
}

// ParseCLIFlags parses the command line arguments, without the program name.
func ParseCLIFlags(args []string) (CLIFlags, error) {
	result := CLIFlags{}
	flags := flag.NewFlagSet(ProductName, flag.ContinueOnError)

	flags.StringVar(&result.ConfigPath, "config", DefaultConfigPath, "relative or absolute path to the config file")
	flags.BoolVar(&result.Debug, "debug", false, "enable debug logging")
	flags.StringVar(&result.Trace, "trace", "", "write the AT traffic to the given file, - for stderr")
	flags.StringVar(&result.SerialPort, "port", "", "serve an AT instance on the given serial port")
	flags.StringVar(&result.Listen, "listen", "", "serve AT instances on the given TCP address")

	err := flags.Parse(args)
	return result, err
}

// Apply the flags that were set to the configuration.
func (f CLIFlags) Apply(c *Config) {
	if f.Debug {
		c.Debug = true
	}
	if f.Trace != "" {
		c.Trace = f.Trace
	}
	if f.SerialPort != "" {
		c.Serial.Port = f.SerialPort
	}
	if f.Listen != "" {
		c.Listen.Address = f.Listen
	}
}

// Duration is a time.Duration written as text, e.g. "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	x, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(x)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Value() time.Duration {
	return time.Duration(d)
}
