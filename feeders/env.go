package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

var durationType = reflect.TypeOf(time.Duration(0))

// AffixedEnvFeeder populates struct fields tagged `env:"NAME"` from
// environment variables named PREFIX_NAME_SUFFIX. Nested structs are walked.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string

	lookup func(string) (string, bool)
}

// NewAffixedEnvFeeder creates an AffixedEnvFeeder with the given prefix and suffix.
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed reads environment variables into structure, which must be a pointer to a struct.
func (f AffixedEnvFeeder) Feed(structure any) error {
	rt := reflect.TypeOf(structure)
	if rt == nil || rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	if f.lookup == nil {
		f.lookup = os.LookupEnv
	}
	return f.fillStruct(reflect.ValueOf(structure).Elem())
}

func (f AffixedEnvFeeder) fillStruct(rv reflect.Value) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)

		switch {
		case field.Kind() == reflect.Struct:
			if err := f.fillStruct(field); err != nil {
				return err
			}
		case field.Kind() == reflect.Pointer && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
			if err := f.fillStruct(field.Elem()); err != nil {
				return err
			}
		default:
			tag, ok := fieldType.Tag.Lookup("env")
			if !ok {
				continue
			}
			if err := f.setFromEnv(field, tag); err != nil {
				return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
			}
		}
	}
	return nil
}

func (f AffixedEnvFeeder) envName(tag string) string {
	name := strings.ToUpper(tag)
	if f.Prefix != "" {
		name = strings.ToUpper(f.Prefix) + "_" + name
	}
	if f.Suffix != "" {
		name = name + "_" + strings.ToUpper(f.Suffix)
	}
	return name
}

func (f AffixedEnvFeeder) setFromEnv(field reflect.Value, tag string) error {
	value, ok := f.lookup(f.envName(tag))
	if !ok || value == "" {
		return nil
	}
	if !field.CanSet() {
		return ErrEnvFieldNotSettable
	}
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("cannot convert string '%s' to time.Duration: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}
	converted, err := cast.FromType(value, field.Type())
	if err != nil {
		return fmt.Errorf("cannot convert value to type %v: %w", field.Type(), err)
	}
	field.Set(reflect.ValueOf(converted).Convert(field.Type()))
	return nil
}
