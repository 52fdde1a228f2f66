// Package common holds configuration, logging and small shared helpers.
//
// Configuration strings may reference KV entries with {key-name}; for example
// client_secret = "{fitbit-client-secret}" resolves against variables.toml once
// storage is open. Unresolved references are left in place and logged.
package common

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"
)

// keyRefPattern matches {key-name} references (alphanumerics, hyphen, underscore)
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ReplaceKeyReferences substitutes every {key-name} in input with its value from kvMap.
func ReplaceKeyReferences(input string, kvMap map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}

	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]
		if value, exists := kvMap[keyName]; exists {
			return value
		}
		logger.Warn().
			Str("reference", match).
			Str("key", keyName).
			Msg("Unresolved key reference - key not found in KV store")
		return match
	})
}

// ReplaceInStruct walks a struct pointer and replaces references in string fields,
// string slices, string maps and nested structs.
func ReplaceInStruct(v interface{}, kvMap map[string]string, logger arbor.ILogger) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr {
		return fmt.Errorf("ReplaceInStruct requires a pointer, got %T", v)
	}

	val = val.Elem()
	if val.Kind() != reflect.Struct {
		return fmt.Errorf("ReplaceInStruct requires a struct pointer, got pointer to %v", val.Kind())
	}

	return replaceInStructValue(val, kvMap, logger)
}

func replaceInStructValue(val reflect.Value, kvMap map[string]string, logger arbor.ILogger) error {
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		field := val.Field(i)
		name := typ.Field(i).Name

		if !field.CanSet() {
			continue
		}

		switch field.Kind() {
		case reflect.String:
			if replaced := ReplaceKeyReferences(field.String(), kvMap, logger); replaced != field.String() {
				field.SetString(replaced)
				logger.Debug().Str("field", name).Msg("Replaced key reference in config field")
			}

		case reflect.Struct:
			if err := replaceInStructValue(field, kvMap, logger); err != nil {
				return fmt.Errorf("failed to replace in nested struct field '%s': %w", name, err)
			}

		case reflect.Ptr:
			if !field.IsNil() && field.Elem().Kind() == reflect.Struct {
				if err := replaceInStructValue(field.Elem(), kvMap, logger); err != nil {
					return fmt.Errorf("failed to replace in pointer field '%s': %w", name, err)
				}
			}

		case reflect.Slice:
			if field.Type().Elem().Kind() != reflect.String {
				continue
			}
			for j := 0; j < field.Len(); j++ {
				elem := field.Index(j)
				elem.SetString(ReplaceKeyReferences(elem.String(), kvMap, logger))
			}

		case reflect.Map:
			if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String || field.IsNil() {
				continue
			}
			mapVal := field.Interface().(map[string]string)
			for key, value := range mapVal {
				mapVal[key] = ReplaceKeyReferences(value, kvMap, logger)
			}
		}
	}

	return nil
}
