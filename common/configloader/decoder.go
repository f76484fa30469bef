package configloader

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// DecodeHook converts a raw setting into a field type the default hooks
// cannot reach, e.g. a flag set built from a list of names.
type DecodeHook = mapstructure.DecodeHookFuncType

func decode(input map[string]interface{}, target interface{}, extra ...DecodeHook) error {
	hooks := []mapstructure.DecodeHookFunc{
		mapstructure.StringToTimeDurationHookFunc(),
		stringToTrimmedSliceHook,
		mapstructure.TextUnmarshallerHookFunc(),
		stringToBoolHook,
	}
	for _, h := range extra {
		hooks = append(hooks, h)
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     target,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(hooks...),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// stringToTrimmedSliceHook splits env lists on commas. "a, b," yields
// [a b]; inner spaces of an item are kept.
func stringToTrimmedSliceHook(f, t reflect.Type, data interface{}) (interface{}, error) {
	if f.Kind() != reflect.String || t.Kind() != reflect.Slice {
		return data, nil
	}
	return SplitList(data.(string)), nil
}

// SplitList splits a comma separated setting, dropping empty items.
func SplitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func stringToBoolHook(f, t reflect.Kind, data interface{}) (interface{}, error) {
	if f == reflect.String && t == reflect.Bool {
		return strconv.ParseBool(data.(string))
	}
	return data, nil
}
