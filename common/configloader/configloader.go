// common/configloader/configloader.go
package configloader

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load fills cfgPtr from registered defaults, an optional YAML file and
// environment variables, then calls Validate() when cfgPtr implements it.
// Hooks run after the built-in ones: durations, comma lists, booleans and
// encoding.TextUnmarshaler fields.
//
// envPrefix is prepended to upper-cased keys with dots replaced by
// underscores: "kafka.brokers" → "TASTY_STREAMER_KAFKA_BROKERS".
func Load(path, envPrefix string, cfgPtr interface{}, hooks ...DecodeHook) error {
	v := viper.New()

	// Env-only keys are visible to AllSettings only when a default exists.
	for key, val := range getDefaults() {
		v.SetDefault(key, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("configloader: read config %q: %w", path, err)
		}
	}

	if err := decode(v.AllSettings(), cfgPtr, hooks...); err != nil {
		return fmt.Errorf("configloader: decode failed: %w", err)
	}

	if val, ok := cfgPtr.(interface{ Validate() error }); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("configloader: validation failed: %w", err)
		}
	}
	return nil
}
