/**
 * @description
 * StringArray column type.
 * Stores ordered string lists as PostgreSQL TEXT[] (array literal format) and
 * falls back to a TEXT column holding the same literal on other dialects.
 *
 * @dependencies
 * - gorm.io/gorm
 */

package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// StringArray is a helper type to handle string arrays in Postgres (TEXT[])
type StringArray []string

// GormDBDataType picks the column type per dialect so AutoMigrate works on Postgres and SQLite.
func (StringArray) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return a.parsePostgresArray(string(v))
	case string:
		return a.parsePostgresArray(v)
	default:
		return errors.New("type assertion failed for StringArray")
	}
}

// parsePostgresArray parses the one-dimensional array literal format: {a,"b, c","d \"e\""}
func (a *StringArray) parsePostgresArray(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		*a = StringArray{}
		return nil
	}
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return fmt.Errorf("invalid array literal %q", s)
	}
	body := s[1 : len(s)-1]

	result := make(StringArray, 0, strings.Count(body, ",")+1)
	var current strings.Builder
	inQuotes, quoted := false, false

	for i := 0; i < len(body); i++ {
		ch := body[i]
		switch {
		case ch == '\\' && inQuotes:
			if i+1 >= len(body) {
				return fmt.Errorf("dangling escape in array literal %q", s)
			}
			i++
			current.WriteByte(body[i])
		case ch == '"':
			inQuotes = !inQuotes
			quoted = true
		case ch == ',' && !inQuotes:
			result = append(result, finishElement(current.String(), quoted))
			current.Reset()
			quoted = false
		default:
			current.WriteByte(ch)
		}
	}
	if inQuotes {
		return fmt.Errorf("unterminated quote in array literal %q", s)
	}
	result = append(result, finishElement(current.String(), quoted))

	*a = result
	return nil
}

func finishElement(raw string, quoted bool) string {
	if quoted {
		return raw
	}
	return strings.TrimSpace(raw)
}

// Value implements the driver.Valuer interface
// Every element is quoted so commas and braces inside labels survive a round trip.
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}

	quoted := make([]string, len(a))
	for i, v := range a {
		escaped := strings.ReplaceAll(v, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		quoted[i] = `"` + escaped + `"`
	}
	return "{" + strings.Join(quoted, ",") + "}", nil
}

// MarshalJSON renders a nil array as [] so clients always receive a list.
func (a StringArray) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}
