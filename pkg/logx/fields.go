package logx

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Field adds one key to an event. Later fields with the same key win in
// console output.
type Field func(e *zerolog.Event)

// Keys shared across components so log queries can join on them.
const (
	KeyComponent = "comp"
	KeyUser      = "user_id"
	KeySymbol    = "symbol"
	KeySource    = "source"
	KeyCycle     = "cycle"
	KeyAlert     = "alert_id"
)

func Component(name string) Field { return String(KeyComponent, name) }
func User(id int64) Field         { return Int64(KeyUser, id) }
func Symbol(sym string) Field     { return String(KeySymbol, sym) }
func Source(id string) Field      { return String(KeySource, id) }
func Cycle(id string) Field       { return String(KeyCycle, id) }
func AlertID(id int64) Field      { return Int64(KeyAlert, id) }

func String(k, v string) Field          { return func(e *zerolog.Event) { e.Str(k, v) } }
func Strings(k string, v []string) Field { return func(e *zerolog.Event) { e.Strs(k, v) } }
func Int(k string, v int) Field          { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field      { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Bool(k string, v bool) Field        { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Float64(k string, v float64) Field  { return func(e *zerolog.Event) { e.Float64(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

// Stringer logs v.String(), e.g. a decimal quote, without float rounding.
func Stringer(k string, v fmt.Stringer) Field {
	return func(e *zerolog.Event) { e.Stringer(k, v) }
}

// Err adds err under "err". A nil error adds nothing.
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}
