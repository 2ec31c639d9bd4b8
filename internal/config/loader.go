package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Lookup resolves one configuration key. It has the shape of os.LookupEnv.
type Lookup func(key string) (string, bool)

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with an explicit source. Every malformed or missing key
// is reported, not only the first.
func LoadFrom(lookup Lookup) (*Config, error) {
	cfg := &Config{}

	l := &loader{lookup: lookup}
	l.walk(reflect.ValueOf(cfg).Elem())
	if len(l.errs) > 0 {
		return nil, fmt.Errorf("config load: %w", errors.Join(l.errs...))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// loader fills tagged struct fields. Tags:
//
//	env      primary key
//	envAlt   fallback key, consulted when env is unset or empty
//	default  value used when neither key is set
//	required fail when no value results
//	unit     "bytes" accepts KB/MB/GB and KiB/MiB/GiB suffixes
type loader struct {
	lookup Lookup
	errs   []error
}

func (l *loader) walk(v reflect.Value) {
	t := v.Type()
	for i := range t.NumField() {
		field, fv := t.Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct && field.Type != timeType {
			l.walk(fv)
			continue
		}

		key := field.Tag.Get("env")
		if key == "" {
			continue
		}
		raw, ok := l.resolve(field)
		if !ok {
			if field.Tag.Get("required") == "true" {
				l.errs = append(l.errs, fmt.Errorf("%s is required", key))
			}
			continue
		}
		if err := assign(fv, raw, field.Tag.Get("unit")); err != nil {
			l.errs = append(l.errs, fmt.Errorf("%s=%q: %w", key, raw, err))
		}
	}
}

func (l *loader) resolve(field reflect.StructField) (string, bool) {
	for _, key := range []string{field.Tag.Get("env"), field.Tag.Get("envAlt")} {
		if key == "" {
			continue
		}
		if v, ok := l.lookup(key); ok && v != "" {
			return v, true
		}
	}
	def := field.Tag.Get("default")
	return def, def != ""
}

func assign(fv reflect.Value, raw, unit string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))

	case unit == "bytes":
		n, err := ParseByteSize(raw)
		if err != nil {
			return err
		}
		fv.SetInt(n)

	default:
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(raw)
		case reflect.Int, reflect.Int32, reflect.Int64:
			n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			fv.SetInt(n)
		case reflect.Bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("invalid boolean: %w", err)
			}
			fv.SetBool(b)
		case reflect.Slice:
			if fv.Type().Elem().Kind() != reflect.String {
				return fmt.Errorf("unsupported slice of %s", fv.Type().Elem().Kind())
			}
			fv.Set(reflect.ValueOf(splitList(raw)))
		default:
			return fmt.Errorf("unsupported field kind %s", fv.Kind())
		}
	}
	return nil
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var byteUnits = []struct {
	suffix string
	mult   int64
}{
	// longest suffixes first so "MiB" is not read as "B"
	{"KiB", 1 << 10}, {"MiB", 1 << 20}, {"GiB", 1 << 30},
	{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
	{"B", 1},
}

// ParseByteSize parses "20971520", "20MiB" or "512 KB". Units are case
// sensitive.
func ParseByteSize(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	mult := int64(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			s, mult = strings.TrimSpace(strings.TrimSuffix(s, u.suffix)), u.mult
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid byte size %q", raw)
	}
	if n > (1<<63-1)/mult {
		return 0, fmt.Errorf("byte size %q overflows", raw)
	}
	return n * mult, nil
}
