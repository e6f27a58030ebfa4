// Package rules runs an optional Lua script that can reject records
// before they are added or updated.
//
// The script may define a global function:
//
//	function validate(record)
//	  if record.teaQuantity > 50 then
//	    return "more than 50 teas in a day"
//	  end
//	end
//
// record has the fields date (RFC 3339 string), teaQuantity,
// samosaQuantity and snacksQuantity. Returning a string or false rejects
// the record; returning nothing or true accepts it.
package rules

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/zot/supplies/internal/supply"
)

// ErrRejected is returned when the script rejects a record.
var ErrRejected = errors.New("rejected by rules")

// Script is a loaded rules script. It is safe for concurrent use.
type Script struct {
	mu    sync.Mutex
	state *lua.LState
	fn    lua.LValue
	name  string
}

// Load runs the script at path.
func Load(path string) (*Script, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("load rules %s: %w", path, err)
	}
	return newScript(L, path), nil
}

// LoadString runs script source held in memory.
func LoadString(name, src string) (*Script, error) {
	L := lua.NewState()
	if err := L.DoString(src); err != nil {
		L.Close()
		return nil, fmt.Errorf("load rules %s: %w", name, err)
	}
	return newScript(L, name), nil
}

func newScript(L *lua.LState, name string) *Script {
	return &Script{state: L, fn: L.GetGlobal("validate"), name: name}
}

// HasValidate reports whether the script defines validate.
func (s *Script) HasValidate() bool {
	return s.fn.Type() == lua.LTFunction
}

// Validate passes fields to the script's validate function.
func (s *Script) Validate(fields supply.Fields) error {
	if !s.HasValidate() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	L := s.state
	record := L.NewTable()
	L.SetField(record, "date", lua.LString(fields.Date.Format(time.RFC3339Nano)))
	L.SetField(record, "teaQuantity", lua.LNumber(fields.Tea))
	L.SetField(record, "samosaQuantity", lua.LNumber(fields.Samosa))
	L.SetField(record, "snacksQuantity", lua.LNumber(fields.Snacks))

	if err := L.CallByParam(lua.P{Fn: s.fn, NRet: 1, Protect: true}, record); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRejected, s.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	switch v := ret.(type) {
	case lua.LString:
		return fmt.Errorf("%w: %s", ErrRejected, string(v))
	case lua.LBool:
		if !bool(v) {
			return fmt.Errorf("%w: %s returned false", ErrRejected, s.name)
		}
	}
	return nil
}

// Close releases the Lua state.
func (s *Script) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Close()
}
