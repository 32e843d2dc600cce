package atp

import (
	"errors"
	"strings"

	"github.com/ftl/m2mb-atp/profile"
)

// Profile parameters read by every AT instance
const (
	ParamEcho       = "E"
	ParamVerbose    = "V"
	ParamQuiet      = "Q"
	ParamEscapeChar = "S2"
	ParamCR         = "S3"
	ParamLF         = "S4"
	ParamBS         = "S5"
	// ParamGuardTime is the escape sequence guard time in 1/50 s.
	ParamGuardTime = "S12"
	ParamErrorMode = "+CMEE"
	ParamCharset   = "+CSCS"
)

type paramDefinition struct {
	name         string
	defaultValue string
	scope        profile.Scope
	opts         []profile.Option
}

var paramDefinitions = []paramDefinition{
	{ParamEcho, "1", profile.Instance, []profile.Option{profile.WithRange(0, 1)}},
	{ParamVerbose, "1", profile.Instance, []profile.Option{profile.WithRange(0, 1)}},
	{ParamQuiet, "0", profile.Instance, []profile.Option{profile.WithRange(0, 1)}},
	{ParamEscapeChar, "43", profile.Instance, []profile.Option{profile.WithRange(0, 255)}},
	{ParamCR, "13", profile.Instance, []profile.Option{profile.WithRange(0, 127)}},
	{ParamLF, "10", profile.Instance, []profile.Option{profile.WithRange(0, 127)}},
	{ParamBS, "8", profile.Instance, []profile.Option{profile.WithRange(0, 127)}},
	{ParamGuardTime, "50", profile.Instance, []profile.Option{profile.WithRange(0, 255)}},
	{ParamErrorMode, "0", profile.Common, []profile.Option{profile.WithRange(0, 2)}},
	{ParamCharset, CharsetIRA, profile.Instance, []profile.Option{profile.WithValidator(validateCharset)}},
}

// DefineParams defines the parameters the parser reads in the given profile store. Parameters that
// are already defined are left untouched.
func DefineParams(store *profile.Store) error {
	for _, p := range paramDefinitions {
		err := store.Define(p.name, p.defaultValue, p.scope, p.opts...)
		if err != nil && !errors.Is(err, profile.ErrAlreadyDefined) {
			return err
		}
	}
	return nil
}

func validateCharset(value string) (string, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(value))
	if !ValidCharset(sanitized) {
		return "", profile.ErrInvalidValue
	}
	return sanitized, nil
}
