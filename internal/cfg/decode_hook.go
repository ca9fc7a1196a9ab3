package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

func hookFunc() mapstructure.DecodeHookFuncType {
	return func(f reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		s := data.(string)
		switch t {
		case reflect.TypeOf(Octal(0)):
			return strconv.ParseInt(s, 8, 32)
		case reflect.TypeOf(Codec("")):
			v := Codec(strings.ToLower(s))
			if v != CodecPlain && v != CodecAuthenticated {
				return nil, fmt.Errorf("invalid codec: %s", s)
			}
			return v, nil
		case reflect.TypeOf(LogSeverity("")):
			level := strings.ToUpper(s)
			if !isValidSeverity(level) {
				return nil, fmt.Errorf("invalid log severity: %s", s)
			}
			return level, nil
		default:
			return data, nil
		}
	}
}

// DecodeHook composes the scalar hooks above with mapstructure's built-in
// TextUnmarshaler support, so YAML-sourced config values go through the
// same UnmarshalText methods as flag values do.
func DecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		hookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}
