// Package v250 implements the basic command set of [V.250] and the general commands of [27.007]
// on top of the ATP profile store.
//
// References:
//
//	[V.250] ITU-T V.250 Serial asynchronous automatic dialling and control
//	[27.007] 3GPP TS 27.007 AT command set for User Equipment
package v250

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ftl/m2mb-atp/atp"
	"github.com/ftl/m2mb-atp/profile"
)

// Identification is reported by I, +GMI, +GMM, +GMR and +GSN.
type Identification struct {
	Manufacturer string `toml:"manufacturer"`
	Model        string `toml:"model"`
	Revision     string `toml:"revision"`
	Serial       string `toml:"serial"`
}

// DefaultIdentification is used for all fields that are not set.
var DefaultIdentification = Identification{
	Manufacturer: "Telit",
	Model:        "M2MB ATP",
	Revision:     "1.0.0",
	Serial:       "000000000000000",
}

func (i Identification) withDefaults() Identification {
	result := i
	if result.Manufacturer == "" {
		result.Manufacturer = DefaultIdentification.Manufacturer
	}
	if result.Model == "" {
		result.Model = DefaultIdentification.Model
	}
	if result.Revision == "" {
		result.Revision = DefaultIdentification.Revision
	}
	if result.Serial == "" {
		result.Serial = DefaultIdentification.Serial
	}
	return result
}

type sParameter struct {
	param string
	min   int
	max   int
}

// sParameters lists the S-parameters according to [V.250] 6.2
var sParameters = map[string]sParameter{
	atp.ParamEscapeChar: {atp.ParamEscapeChar, 0, 255},
	atp.ParamCR:         {atp.ParamCR, 0, 127},
	atp.ParamLF:         {atp.ParamLF, 0, 127},
	atp.ParamBS:         {atp.ParamBS, 0, 127},
	atp.ParamGuardTime:  {atp.ParamGuardTime, 0, 255},
}

// Register all commands of this package with the given ATP.
func Register(a *atp.ATP, info Identification) error {
	c := &commands{
		store: a.Profile(),
		info:  info.withDefaults(),
	}

	handlers := map[string]func(*atp.Instance, *atp.Request) atp.Result{
		"E":      c.flag(atp.ParamEcho),
		"V":      c.flag(atp.ParamVerbose),
		"Q":      c.flag(atp.ParamQuiet),
		"&F":     c.factoryDefaults,
		"&W":     c.storeProfile,
		"Z":      c.resetProfile,
		"&V":     c.showConfiguration,
		"I":      c.identification,
		"+GMI":   c.infoCommand(func(i Identification) string { return i.Manufacturer }),
		"+GMM":   c.infoCommand(func(i Identification) string { return i.Model }),
		"+GMR":   c.infoCommand(func(i Identification) string { return i.Revision }),
		"+GSN":   c.infoCommand(func(i Identification) string { return i.Serial }),
		"+CGMI":  c.infoCommand(func(i Identification) string { return i.Manufacturer }),
		"+CGMM":  c.infoCommand(func(i Identification) string { return i.Model }),
		"+CGMR":  c.infoCommand(func(i Identification) string { return i.Revision }),
		"+CGSN":  c.infoCommand(func(i Identification) string { return i.Serial }),
		"+CMEE":  c.errorMode,
		"+CSCS":  c.charset,
		"+CLAC":  c.listCommands(a),
		"#CMDLS": c.listCommands(a),
	}
	for name, param := range sParameters {
		handlers[name] = c.sParameter(param)
	}

	for name, handler := range handlers {
		if err := a.RegisterFunc(name, callback(handler)); err != nil {
			return fmt.Errorf("cannot register %s: %w", name, err)
		}
	}
	return nil
}

// callback adapts a function that handles a command completely within its CallbackInd.
func callback(f func(*atp.Instance, *atp.Request) atp.Result) func(*atp.Instance, atp.Event) {
	return func(instance *atp.Instance, event atp.Event) {
		if event.Kind != atp.CallbackInd {
			return
		}
		instance.Release(event.Request, f(instance, event.Request))
	}
}

type commands struct {
	store *profile.Store
	info  Identification
}

// flag handles basic commands with a 0/1 argument, e.g. E, V, Q. The command without argument
// is the same as argument 0 according to [V.250] 5.3.1.
func (c *commands) flag(param string) func(*atp.Instance, *atp.Request) atp.Result {
	return func(instance *atp.Instance, request *atp.Request) atp.Result {
		switch request.Type {
		case atp.NoParams:
			return c.set(request.Instance, param, "0", atp.ResultError)
		case atp.Set:
			value, err := request.IntInRange(0, 0, 0, 1)
			if err != nil {
				return atp.ResultError
			}
			return c.set(request.Instance, param, strconv.Itoa(value), atp.ResultError)
		case atp.Read:
			value, err := c.store.Get(request.Instance, param)
			if err != nil {
				return atp.ResultError
			}
			instance.MsgOut(value)
			return atp.ResultOK
		case atp.Test:
			instance.MsgOut(fmt.Sprintf("%s: (0,1)", param))
			return atp.ResultOK
		default:
			return atp.ResultError
		}
	}
}

// sParameter handles the S-parameters according to [V.250] 5.3.2.
func (c *commands) sParameter(reg sParameter) func(*atp.Instance, *atp.Request) atp.Result {
	return func(instance *atp.Instance, request *atp.Request) atp.Result {
		switch request.Type {
		case atp.Set:
			if !request.Present(0) {
				return atp.ResultError
			}
			value, err := request.IntInRange(0, 0, reg.min, reg.max)
			if err != nil {
				return atp.ResultError
			}
			return c.set(request.Instance, reg.param, strconv.Itoa(value), atp.ResultError)
		case atp.Read:
			value, err := c.store.GetInt(request.Instance, reg.param)
			if err != nil {
				return atp.ResultError
			}
			instance.MsgOut(fmt.Sprintf("%03d", value))
			return atp.ResultOK
		case atp.Test:
			instance.MsgOut(fmt.Sprintf("%s: (%d-%d)", reg.param, reg.min, reg.max))
			return atp.ResultOK
		default:
			return atp.ResultError
		}
	}
}

func (c *commands) set(instance int, param string, value string, failure atp.Result) atp.Result {
	if err := c.store.Set(instance, param, value); err != nil {
		return failure
	}
	return atp.ResultOK
}

// profileIndex reads the optional profile number of &F, &W and Z.
func profileIndex(request *atp.Request, max int) (int, bool) {
	switch request.Type {
	case atp.NoParams:
		return 0, true
	case atp.Set:
		value, err := request.IntInRange(0, 0, 0, max)
		if err != nil {
			return 0, false
		}
		return value, true
	default:
		return 0, false
	}
}

var (
	userSlots = []profile.Index{profile.First, profile.Second}
	baseSlots = []profile.Index{profile.BaseFirst, profile.BaseSecond}
)

// factoryDefaults restores the factory profile, &F according to [V.250] 6.1.2
func (c *commands) factoryDefaults(_ *atp.Instance, request *atp.Request) atp.Result {
	if _, ok := profileIndex(request, 0); !ok {
		return atp.ResultError
	}
	if err := c.store.Restore(request.Instance, profile.BaseFirst); err != nil {
		return atp.ResultError
	}
	return atp.ResultOK
}

// storeProfile stores the active profile into one of the user profiles, &W<n>
func (c *commands) storeProfile(_ *atp.Instance, request *atp.Request) atp.Result {
	n, ok := profileIndex(request, len(userSlots)-1)
	if !ok {
		return atp.ResultError
	}
	if err := c.store.Save(request.Instance, userSlots[n]); err != nil {
		return atp.ResultError
	}
	return atp.ResultOK
}

// resetProfile restores one of the user profiles, Z<n> according to [V.250] 6.1.1. An empty user
// profile falls back to its base profile.
func (c *commands) resetProfile(_ *atp.Instance, request *atp.Request) atp.Result {
	n, ok := profileIndex(request, len(userSlots)-1)
	if !ok {
		return atp.ResultError
	}
	err := c.store.Restore(request.Instance, userSlots[n])
	if errors.Is(err, profile.ErrEmptySlot) {
		err = c.store.Restore(request.Instance, baseSlots[n])
	}
	if err != nil {
		return atp.ResultError
	}
	return atp.ResultOK
}

// showConfiguration lists the active profile, &V
func (c *commands) showConfiguration(instance *atp.Instance, request *atp.Request) atp.Result {
	if request.Type != atp.NoParams {
		return atp.ResultError
	}
	for _, value := range c.store.List(request.Instance) {
		instance.MsgOut(fmt.Sprintf("%s: %s", value.Name, value.Value))
	}
	return atp.ResultOK
}

// identification reports product information, I<n> according to [V.250] 6.1.3
func (c *commands) identification(instance *atp.Instance, request *atp.Request) atp.Result {
	n := 0
	switch request.Type {
	case atp.NoParams:
	case atp.Set:
		var err error
		n, err = request.Int(0, 0)
		if err != nil {
			return atp.ResultError
		}
	default:
		return atp.ResultError
	}

	switch n {
	case 0:
		instance.MsgOut(c.info.Model)
	case 1:
		instance.MsgOut(c.info.Manufacturer)
	case 3:
		instance.MsgOut(c.info.Revision)
	case 4:
		instance.MsgOut(c.info.Serial)
	default:
		return atp.ResultError
	}
	return atp.ResultOK
}

// infoCommand reports one field of the identification, +GMI, +GMM, +GMR and +GSN according to [V.250] 6.1.4ff
func (c *commands) infoCommand(field func(Identification) string) func(*atp.Instance, *atp.Request) atp.Result {
	return func(instance *atp.Instance, request *atp.Request) atp.Result {
		switch request.Type {
		case atp.Exec:
			instance.MsgOut(field(c.info))
			return atp.ResultOK
		case atp.Test:
			return atp.ResultOK
		default:
			return atp.ResultError
		}
	}
}

// errorMode controls the error result codes, +CMEE according to [27.007] 9.1
func (c *commands) errorMode(instance *atp.Instance, request *atp.Request) atp.Result {
	switch request.Type {
	case atp.Set:
		value, err := request.IntInRange(0, 0, 0, 2)
		if err != nil {
			return atp.CMEResult(atp.CMEIncorrectParameters)
		}
		return c.set(request.Instance, atp.ParamErrorMode, strconv.Itoa(value), atp.CMEResult(atp.CMEIncorrectParameters))
	case atp.Read:
		value, err := c.store.Get(request.Instance, atp.ParamErrorMode)
		if err != nil {
			return atp.CMEResult(atp.CMEUnknown)
		}
		instance.MsgOut(fmt.Sprintf("+CMEE: %s", value))
		return atp.ResultOK
	case atp.Test:
		instance.MsgOut("+CMEE: (0-2)")
		return atp.ResultOK
	default:
		return atp.CMEResult(atp.CMEOperationNotSupported)
	}
}

// charset selects the TE character set, +CSCS according to [27.007] 5.5
func (c *commands) charset(instance *atp.Instance, request *atp.Request) atp.Result {
	switch request.Type {
	case atp.Set:
		value := request.Text(0, atp.CharsetIRA)
		return c.set(request.Instance, atp.ParamCharset, value, atp.CMEResult(atp.CMEIncorrectParameters))
	case atp.Read:
		value, err := c.store.Get(request.Instance, atp.ParamCharset)
		if err != nil {
			return atp.CMEResult(atp.CMEUnknown)
		}
		instance.MsgOut(fmt.Sprintf("+CSCS: %q", value))
		return atp.ResultOK
	case atp.Test:
		charsets := atp.Charsets()
		quoted := make([]string, len(charsets))
		for i, charset := range charsets {
			quoted[i] = strconv.Quote(charset)
		}
		instance.MsgOut(fmt.Sprintf("+CSCS: (%s)", strings.Join(quoted, ",")))
		return atp.ResultOK
	default:
		return atp.CMEResult(atp.CMEOperationNotSupported)
	}
}

// listCommands reports all registered commands, +CLAC according to [27.007] 8.37
func (c *commands) listCommands(a *atp.ATP) func(*atp.Instance, *atp.Request) atp.Result {
	return func(instance *atp.Instance, request *atp.Request) atp.Result {
		switch request.Type {
		case atp.Exec:
			for _, name := range a.Commands() {
				instance.MsgOut("AT" + name)
			}
			return atp.ResultOK
		case atp.Test:
			return atp.ResultOK
		default:
			return atp.CMEResult(atp.CMEOperationNotSupported)
		}
	}
}
