// Package flagx binds cobra flags to request structs, the way gin binds
// request bodies.
//
//	type queryFlags struct {
//	    Vector []float32 `flag:"vector" usage:"query vector"`
//	    TopK   int       `flag:"top-k,k" default:"10"`
//	}
//
//	var req queryFlags
//	flagx.MustBind(cmd, &req)      // while building the command
//	err := flagx.Parse(cmd, &req)  // inside RunE
//
// Tags: flag is "name" or "name,short"; default and usage are optional;
// required:"true" marks the flag required.
package flagx

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var durationType = reflect.TypeOf(time.Duration(0))

type field struct {
	index    int
	name     string
	short    string
	usage    string
	def      string
	required bool
	typ      reflect.Type
}

func fieldsOf(target any) (reflect.Value, []field, error) {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return reflect.Value{}, nil, fmt.Errorf("target must be a pointer to struct")
	}
	v = v.Elem()
	t := v.Type()

	var fields []field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		tag := sf.Tag.Get("flag")
		if tag == "" || !sf.IsExported() {
			continue
		}
		name, short, _ := strings.Cut(tag, ",")
		fields = append(fields, field{
			index:    i,
			name:     name,
			short:    short,
			usage:    sf.Tag.Get("usage"),
			def:      sf.Tag.Get("default"),
			required: sf.Tag.Get("required") == "true",
			typ:      sf.Type,
		})
	}
	return v, fields, nil
}

// Bind registers one local flag per tagged field
func Bind(cmd *cobra.Command, target any) error {
	_, fields, err := fieldsOf(target)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if err := register(cmd.Flags(), f); err != nil {
			return fmt.Errorf("bind flag %s: %w", f.name, err)
		}
		if f.required {
			if err := cmd.MarkFlagRequired(f.name); err != nil {
				return err
			}
		}
	}
	return nil
}

// MustBind is Bind for command constructors; a bad struct is a programming error
func MustBind(cmd *cobra.Command, target any) {
	if err := Bind(cmd, target); err != nil {
		panic(err)
	}
}

func register(fs *pflag.FlagSet, f field) error {
	if f.typ == durationType {
		def, err := parseDefault(f.def, time.ParseDuration)
		if err != nil {
			return err
		}
		fs.DurationP(f.name, f.short, def, f.usage)
		return nil
	}

	switch f.typ.Kind() {
	case reflect.String:
		fs.StringP(f.name, f.short, f.def, f.usage)
	case reflect.Int:
		def, err := parseDefault(f.def, strconv.Atoi)
		if err != nil {
			return err
		}
		fs.IntP(f.name, f.short, def, f.usage)
	case reflect.Bool:
		def, err := parseDefault(f.def, strconv.ParseBool)
		if err != nil {
			return err
		}
		fs.BoolP(f.name, f.short, def, f.usage)
	case reflect.Float64:
		def, err := parseDefault(f.def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
		if err != nil {
			return err
		}
		fs.Float64P(f.name, f.short, def, f.usage)
	case reflect.Slice:
		switch f.typ.Elem().Kind() {
		case reflect.String:
			fs.StringSliceP(f.name, f.short, nil, f.usage)
		case reflect.Float32:
			fs.Float32SliceP(f.name, f.short, nil, f.usage)
		default:
			return fmt.Errorf("unsupported slice element type: %s", f.typ.Elem().Kind())
		}
	default:
		return fmt.Errorf("unsupported field type: %s", f.typ.Kind())
	}
	return nil
}

func parseDefault[T any](s string, parse func(string) (T, error)) (T, error) {
	var zero T
	if s == "" {
		return zero, nil
	}
	v, err := parse(s)
	if err != nil {
		return zero, fmt.Errorf("invalid default %q: %w", s, err)
	}
	return v, nil
}

// Parse copies the parsed flag values into target
func Parse(cmd *cobra.Command, target any) error {
	v, fields, err := fieldsOf(target)
	if err != nil {
		return err
	}
	fs := cmd.Flags()
	for _, f := range fields {
		val, err := lookup(fs, f)
		if err != nil {
			return fmt.Errorf("parse flag %s: %w", f.name, err)
		}
		v.Field(f.index).Set(reflect.ValueOf(val).Convert(f.typ))
	}
	return nil
}

func lookup(fs *pflag.FlagSet, f field) (any, error) {
	if f.typ == durationType {
		return fs.GetDuration(f.name)
	}
	switch f.typ.Kind() {
	case reflect.String:
		return fs.GetString(f.name)
	case reflect.Int:
		return fs.GetInt(f.name)
	case reflect.Bool:
		return fs.GetBool(f.name)
	case reflect.Float64:
		return fs.GetFloat64(f.name)
	case reflect.Slice:
		if f.typ.Elem().Kind() == reflect.Float32 {
			return fs.GetFloat32Slice(f.name)
		}
		return fs.GetStringSlice(f.name)
	}
	return nil, fmt.Errorf("unsupported field type: %s", f.typ.Kind())
}
