package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/fanfetch/pkg/errors"
)

var durationType = reflect.TypeOf(time.Duration(0))

// sections are the scalar sections reachable through GetValue and SetValue.
func (c *Config) sections() map[string]reflect.Value {
	return map[string]reflect.Value{
		"settings": reflect.ValueOf(&c.Settings).Elem(),
		"network":  reflect.ValueOf(&c.Network).Elem(),
		"cache":    reflect.ValueOf(&c.Cache).Elem(),
	}
}

func (c *Config) field(key string) (reflect.Value, error) {
	if key == "requires" {
		return reflect.ValueOf(&c.Requires).Elem(), nil
	}
	section, name, ok := strings.Cut(key, ".")
	if !ok {
		return reflect.Value{}, errors.Wrapf(errors.ErrUnknownConfigKey, "%s", key)
	}
	sv, ok := c.sections()[section]
	if !ok {
		return reflect.Value{}, errors.Wrapf(errors.ErrUnknownConfigKey, "%s", key)
	}
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		if yamlKey(st.Field(i)) == name {
			return sv.Field(i), nil
		}
	}
	return reflect.Value{}, errors.Wrapf(errors.ErrUnknownConfigKey, "%s", key)
}

func yamlKey(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

// SetValue sets a configuration value by dotted key, e.g. "network.http_timeout".
// Lists take comma separated values. The result is not validated.
func (c *Config) SetValue(key, value string) error {
	fv, err := c.field(key)
	if err != nil {
		return err
	}
	if err := setFromString(fv, value); err != nil {
		return errors.Wrapf(errors.ErrConfigValue, "%s=%q: %v", key, value, err)
	}
	return nil
}

func setFromString(fv reflect.Value, value string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		fv.SetInt(int64(d))
		return nil
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Slice:
		var items []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		fv.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported kind %s", fv.Kind())
	}
	return nil
}

// GetValue returns a configuration value by dotted key.
func (c *Config) GetValue(key string) (string, error) {
	fv, err := c.field(key)
	if err != nil {
		return "", err
	}
	return formatValue(fv), nil
}

func formatValue(fv reflect.Value) string {
	if fv.Type() == durationType {
		return time.Duration(fv.Int()).String()
	}
	switch fv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(fv.Bool())
	case reflect.Int, reflect.Int64:
		return strconv.FormatInt(fv.Int(), 10)
	case reflect.Slice:
		parts := make([]string, fv.Len())
		for i := range parts {
			parts[i] = fmt.Sprint(fv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(fv.Interface())
	}
}

// ToMap flattens the scalar settings into dotted keys for display.
func (c *Config) ToMap() map[string]string {
	result := map[string]string{"requires": c.Requires}
	for name, sv := range c.sections() {
		st := sv.Type()
		for i := 0; i < st.NumField(); i++ {
			if key := yamlKey(st.Field(i)); key != "" {
				result[name+"."+key] = formatValue(sv.Field(i))
			}
		}
	}
	return result
}

// Keys returns the keys of ToMap in sorted order.
func (c *Config) Keys() []string {
	m := c.ToMap()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
