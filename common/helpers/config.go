package helpers

import (
	"io/ioutil"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DBNum    int    `yaml:"dbNum"`
	// how many log lines to keep for clients that connect mid-stream
	BacklogLines int64 `yaml:"backlogLines"`
}

type HttpAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Realm    string `yaml:"realm"`
}

/**
Enabled is true only if both a username and a password are configured
*/
func (c HttpAuthConfig) Enabled() bool {
	return c.Username != "" && c.Password != ""
}

type Config struct {
	Namespace   string `yaml:"namespace"`
	CronJobName string `yaml:"cronjobName"`
	KubeConfig  string `yaml:"kubeconfig"`
	Port        int    `yaml:"port"`

	StartPodTimeoutSeconds         int `yaml:"startPodTimeoutSeconds"`
	LogStreamRequestTimeoutSeconds int `yaml:"logStreamRequestTimeoutSeconds"`
	TerminationTimeoutSeconds      int `yaml:"terminationTimeoutSeconds"`

	PollIntervalMillis            int `yaml:"pollIntervalMillis"`
	StreamBackoffMillis           int `yaml:"streamBackoffMillis"`
	TerminationPollIntervalMillis int `yaml:"terminationPollIntervalMillis"`

	CorsAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	StaticPath         string   `yaml:"staticPath"`
	IndexPath          string   `yaml:"indexPath"`

	Redis    RedisConfig    `yaml:"redis"`
	HttpAuth HttpAuthConfig `yaml:"httpAuth"`
}

/**
returns a Config populated with the values the service uses when nothing else is provided
*/
func DefaultConfig() *Config {
	return &Config{
		Namespace:                      "ddbmetadata-qa",
		CronJobName:                    "ddbmetadata-qa",
		Port:                           8080,
		StartPodTimeoutSeconds:         120,
		LogStreamRequestTimeoutSeconds: 10,
		TerminationTimeoutSeconds:      300,
		PollIntervalMillis:             1000,
		StreamBackoffMillis:            3000,
		TerminationPollIntervalMillis:  2000,
		CorsAllowedOrigins:             []string{"*"},
		StaticPath:                     "public",
		IndexPath:                      "public/index.html",
		Redis: RedisConfig{
			BacklogLines: 500,
		},
		HttpAuth: HttpAuthConfig{
			Realm: "metadata-qa",
		},
	}
}

/**
reads yaml config from the given file over the top of the defaults
*/
func ReadConfig(configFile string) (*Config, error) {
	configBytes, readErr := ioutil.ReadFile(configFile)
	if readErr != nil {
		log.Printf("Could not read config from '%s': %s\n", configFile, readErr)
		return nil, readErr
	}

	conf := DefaultConfig()

	err := yaml.Unmarshal(configBytes, conf)
	if err != nil {
		log.Printf("Could not understand config from '%s': %s\n", configFile, err)
		return nil, err
	}
	return conf, nil
}

/**
every field is a pointer so that we can tell "not set" apart from a zero value
*/
type environmentOverrides struct {
	Namespace                      *string `mapstructure:"NAMESPACE"`
	CronJobName                    *string `mapstructure:"CRONJOB_NAME"`
	KubeConfig                     *string `mapstructure:"KUBECONFIG"`
	Port                           *int    `mapstructure:"PORT"`
	StartPodTimeoutSeconds         *int    `mapstructure:"START_POD_TIMEOUT_SECONDS"`
	LogStreamRequestTimeoutSeconds *int    `mapstructure:"LOG_STREAM_REQUEST_TIMEOUT_SECONDS"`
	TerminationTimeoutSeconds      *int    `mapstructure:"TERMINATION_TIMEOUT_SECONDS"`
	CorsAllowedOrigins             *string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	StaticPath                     *string `mapstructure:"STATIC_PATH"`
	IndexPath                      *string `mapstructure:"INDEX_PATH"`
	RedisAddress                   *string `mapstructure:"REDIS_ADDRESS"`
	RedisPassword                  *string `mapstructure:"REDIS_PASSWORD"`
	RedisDB                        *int    `mapstructure:"REDIS_DB"`
	HttpAuthUsername               *string `mapstructure:"HTTPAUTH_USERNAME"`
	HttpAuthPassword               *string `mapstructure:"HTTPAUTH_PASSWORD"`
	HttpAuthRealm                  *string `mapstructure:"HTTPAUTH_REALM"`
}

/**
turns a list of KEY=value strings (as from os.Environ) into a map
*/
func environToMap(environ []string) map[string]interface{} {
	rtn := make(map[string]interface{}, len(environ))
	for _, entry := range environ {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		rtn[parts[0]] = parts[1]
	}
	return rtn
}

/**
parses the CORS_ALLOWED_ORIGINS format: either "*" or a comma-separated list
*/
func ParseAllowedOrigins(value string) []string {
	if strings.TrimSpace(value) == "*" {
		return []string{"*"}
	}
	rtn := make([]string, 0)
	for _, origin := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			rtn = append(rtn, trimmed)
		}
	}
	return rtn
}

/**
applies environment variable overrides to the given config. `environ` is in the format of os.Environ().
numeric values are converted from strings; a value that can't be converted is an error.
*/
func ApplyEnvironment(conf *Config, environ []string) error {
	var overrides environmentOverrides
	decoder, setupErr := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &overrides,
	})
	if setupErr != nil {
		return setupErr
	}
	decodeErr := decoder.Decode(environToMap(environ))
	if decodeErr != nil {
		log.Printf("ERROR ApplyEnvironment could not understand environment overrides: %s", decodeErr)
		return decodeErr
	}

	setString(&conf.Namespace, overrides.Namespace)
	setString(&conf.CronJobName, overrides.CronJobName)
	setString(&conf.KubeConfig, overrides.KubeConfig)
	setInt(&conf.Port, overrides.Port)
	setInt(&conf.StartPodTimeoutSeconds, overrides.StartPodTimeoutSeconds)
	setInt(&conf.LogStreamRequestTimeoutSeconds, overrides.LogStreamRequestTimeoutSeconds)
	setInt(&conf.TerminationTimeoutSeconds, overrides.TerminationTimeoutSeconds)
	setString(&conf.StaticPath, overrides.StaticPath)
	setString(&conf.IndexPath, overrides.IndexPath)
	setString(&conf.Redis.Address, overrides.RedisAddress)
	setString(&conf.Redis.Password, overrides.RedisPassword)
	setInt(&conf.Redis.DBNum, overrides.RedisDB)
	setString(&conf.HttpAuth.Username, overrides.HttpAuthUsername)
	setString(&conf.HttpAuth.Password, overrides.HttpAuthPassword)
	setString(&conf.HttpAuth.Realm, overrides.HttpAuthRealm)
	if overrides.CorsAllowedOrigins != nil {
		conf.CorsAllowedOrigins = ParseAllowedOrigins(*overrides.CorsAllowedOrigins)
	}
	return nil
}

func setString(target *string, value *string) {
	if value != nil {
		*target = *value
	}
}

func setInt(target *int, value *int) {
	if value != nil {
		*target = *value
	}
}

/**
loads configuration from the given yaml file (if the path is not empty) and then applies the process environment
*/
func LoadConfig(configFile string) (*Config, error) {
	var conf *Config
	if configFile == "" {
		conf = DefaultConfig()
	} else {
		var readErr error
		conf, readErr = ReadConfig(configFile)
		if readErr != nil {
			return nil, readErr
		}
	}

	envErr := ApplyEnvironment(conf, os.Environ())
	if envErr != nil {
		return nil, envErr
	}
	return conf, nil
}

func (c *Config) StartPodTimeout() time.Duration {
	return time.Duration(c.StartPodTimeoutSeconds) * time.Second
}

func (c *Config) LogStreamRequestTimeout() time.Duration {
	return time.Duration(c.LogStreamRequestTimeoutSeconds) * time.Second
}

func (c *Config) TerminationTimeout() time.Duration {
	return time.Duration(c.TerminationTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

func (c *Config) StreamBackoff() time.Duration {
	return time.Duration(c.StreamBackoffMillis) * time.Millisecond
}

func (c *Config) TerminationPollInterval() time.Duration {
	return time.Duration(c.TerminationPollIntervalMillis) * time.Millisecond
}
