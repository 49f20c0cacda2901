// Package config holds session settings: a defaults dictionary plus one
// dictionary per session, loaded from YAML/JSON/TOML files through viper.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Dictionary is a case-insensitive set of string settings. It is not safe
// for concurrent mutation; dictionaries handed out by SessionSettings are
// meant to be read.
type Dictionary struct {
	data map[string]string
}

// NewDictionary creates an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{data: make(map[string]string)}
}

// DictionaryFrom creates a dictionary from key/value pairs.
func DictionaryFrom(values map[string]string) *Dictionary {
	d := NewDictionary()
	for k, v := range values {
		d.Set(k, v)
	}
	return d
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Set stores value under key.
func (d *Dictionary) Set(key, value string) {
	d.data[normalize(key)] = value
}

// SetInt stores an integer value.
func (d *Dictionary) SetInt(key string, value int) {
	d.Set(key, strconv.Itoa(value))
}

// SetBool stores a boolean as Y or N.
func (d *Dictionary) SetBool(key string, value bool) {
	if value {
		d.Set(key, "Y")
	} else {
		d.Set(key, "N")
	}
}

// Has reports whether key is present.
func (d *Dictionary) Has(key string) bool {
	_, ok := d.data[normalize(key)]
	return ok
}

// Remove deletes key.
func (d *Dictionary) Remove(key string) {
	delete(d.data, normalize(key))
}

// Len returns the number of settings.
func (d *Dictionary) Len() int {
	return len(d.data)
}

// Keys returns the normalized keys in sorted order.
func (d *Dictionary) Keys() []string {
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value of key or ErrMissingSetting.
func (d *Dictionary) String(key string) (string, error) {
	v, ok := d.data[normalize(key)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingSetting, key)
	}
	return v, nil
}

// StringDefault returns the value of key, or def when absent.
func (d *Dictionary) StringDefault(key, def string) string {
	if v, ok := d.data[normalize(key)]; ok {
		return v
	}
	return def
}

// Int returns the value of key as an integer.
func (d *Dictionary) Int(key string) (int, error) {
	v, err := d.String(key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidSetting, key, v)
	}
	return n, nil
}

// IntDefault returns the integer value of key, or def when absent.
func (d *Dictionary) IntDefault(key string, def int) (int, error) {
	if !d.Has(key) {
		return def, nil
	}
	return d.Int(key)
}

// Bool returns the value of key as a boolean. Y/N, true/false and 1/0 are
// accepted.
func (d *Dictionary) Bool(key string) (bool, error) {
	v, err := d.String(key)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "y", "yes", "true", "1":
		return true, nil
	case "n", "no", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalidSetting, key, v)
}

// BoolDefault returns the boolean value of key, or def when absent.
func (d *Dictionary) BoolDefault(key string, def bool) (bool, error) {
	if !d.Has(key) {
		return def, nil
	}
	return d.Bool(key)
}

// Seconds returns an integer-seconds setting as a duration, or def when
// absent.
func (d *Dictionary) Seconds(key string, def time.Duration) (time.Duration, error) {
	if !d.Has(key) {
		return def, nil
	}
	n, err := d.Int(key)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidSetting, key)
	}
	return time.Duration(n) * time.Second, nil
}

// Merge copies every setting of other that d does not have yet.
func (d *Dictionary) Merge(other *Dictionary) {
	if other == nil {
		return
	}
	for k, v := range other.data {
		if _, ok := d.data[k]; !ok {
			d.data[k] = v
		}
	}
}

// Clone returns an independent copy.
func (d *Dictionary) Clone() *Dictionary {
	c := NewDictionary()
	for k, v := range d.data {
		c.data[k] = v
	}
	return c
}
