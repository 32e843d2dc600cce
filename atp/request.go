package atp

import (
	"fmt"
	"strconv"
	"strings"
)

// Param is one comma separated parameter of a command.
type Param struct {
	Value   string
	Quoted  bool
	Present bool
}

func (p Param) String() string {
	if !p.Present {
		return ""
	}
	if p.Quoted {
		return strconv.Quote(p.Value)
	}
	return p.Value
}

// Request describes one dispatched command.
type Request struct {
	Instance int
	// Name is the upper case command mnemonic including its prefix, e.g. +CMGS, #LOOP, E, &W, S3.
	Name   string
	Type   CmdType
	Params []Param
	// Raw is the command as it appeared on the command line, without the leading AT.
	Raw string
}

func (r *Request) String() string {
	return fmt.Sprintf("%d:%s %s %q", r.Instance, r.Name, r.Type, r.Raw)
}

// Len returns the number of parameters, including empty ones.
func (r *Request) Len() int {
	return len(r.Params)
}

// Present reports if the i-th parameter was given.
func (r *Request) Present(i int) bool {
	return i >= 0 && i < len(r.Params) && r.Params[i].Present
}

// Text returns the i-th parameter, or defaultValue if it is not present.
func (r *Request) Text(i int, defaultValue string) string {
	if !r.Present(i) {
		return defaultValue
	}
	return r.Params[i].Value
}

// Int returns the i-th parameter as integer, or defaultValue if it is not present.
func (r *Request) Int(i int, defaultValue int) (int, error) {
	if !r.Present(i) {
		return defaultValue, nil
	}
	if r.Params[i].Quoted {
		return 0, fmt.Errorf("parameter %d of %s is a string", i+1, r.Name)
	}
	result, err := strconv.Atoi(r.Params[i].Value)
	if err != nil {
		return 0, fmt.Errorf("parameter %d of %s: %w", i+1, r.Name, err)
	}
	return result, nil
}

// IntInRange returns the i-th parameter as integer, it must lie within [min, max].
func (r *Request) IntInRange(i int, defaultValue, min, max int) (int, error) {
	result, err := r.Int(i, defaultValue)
	if err != nil {
		return 0, err
	}
	if result < min || result > max {
		return 0, fmt.Errorf("parameter %d of %s out of range %d-%d: %d", i+1, r.Name, min, max, result)
	}
	return result, nil
}

// Is reports if the request has the given name.
func (r *Request) Is(name string) bool {
	return strings.EqualFold(r.Name, name)
}
