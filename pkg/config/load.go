package config

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/viper"
)

// Settings file sections.
const (
	sectionDefault  = "default"
	sectionSessions = "sessions"
)

// EnvPrefix prefixes environment overrides of default settings, e.g.
// FIX_DEFAULT_RECONNECTINTERVAL.
const EnvPrefix = "FIX"

// Load reads session settings from a YAML, JSON or TOML file; the format
// follows the file extension.
//
// Layout:
//
//	default:
//	  ConnectionType: initiator
//	  ReconnectInterval: 30
//	sessions:
//	  - BeginString: FIX.4.4
//	    SenderCompID: BUY
//	    TargetCompID: SELL
//	    SocketConnectHost: 127.0.0.1
//	    SocketConnectPort: 9878
//
// Every session dictionary has the defaults merged in.
func Load(path string) (*SessionSettings, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, NewError("read "+path, err)
	}
	return fromViper(v)
}

// LoadReader reads session settings in the given format ("yaml", "json",
// "toml") from r.
func LoadReader(r io.Reader, format string) (*SessionSettings, error) {
	v := newViper()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, NewError("read settings", err)
	}
	return fromViper(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func fromViper(v *viper.Viper) (*SessionSettings, error) {
	s := NewSessionSettings()

	defaults := NewDictionary()
	for key := range v.GetStringMap(sectionDefault) {
		// Read through viper so environment overrides apply.
		defaults.Set(key, v.GetString(sectionDefault+"."+key))
	}
	s.SetDefaults(defaults)

	raw := v.Get(sectionSessions)
	if raw == nil {
		return s, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, NewError("sessions must be a list", ErrInvalidSetting)
	}

	for i, item := range list {
		d, err := toDictionary(item)
		if err != nil {
			return nil, NewError(fmt.Sprintf("session %d", i), err)
		}
		d.Merge(defaults)
		id, err := IDFromDictionary(d)
		if err != nil {
			return nil, NewError(fmt.Sprintf("session %d", i), err)
		}
		if err := s.Set(id, d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func toDictionary(item any) (*Dictionary, error) {
	d := NewDictionary()
	switch m := item.(type) {
	case map[string]any:
		for k, val := range m {
			d.Set(k, scalar(val))
		}
	case map[any]any:
		for k, val := range m {
			d.Set(fmt.Sprint(k), scalar(val))
		}
	default:
		return nil, fmt.Errorf("%w: session entry must be a mapping", ErrInvalidSetting)
	}
	return d, nil
}

func scalar(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return "Y"
		}
		return "N"
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
