// Package sms implements the text mode short message commands of [27.005] on top of the ATP.
// Message text is entered through the SMS text input mode of the AT instance.
//
// References:
//
//	[27.005] 3GPP TS 27.005 Use of DTE-DCE interface for Short Message Service (SMS) and Cell Broadcast Service (CBS)
package sms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ftl/m2mb-atp/atp"
	"github.com/ftl/m2mb-atp/profile"
)

// ParamFormat is the message format selected with +CMGF, 0 is PDU mode, 1 is text mode.
const ParamFormat = "+CMGF"

// Message formats
const (
	PDUMode  = 0
	TextMode = 1
)

// Address types according to [27.005] 3.1 <toda>
const (
	NationalAddress      = 129
	InternationalAddress = 145
)

// maximum text length of a single message in characters
const (
	maxTextLength     = 160
	maxUCS2TextLength = 70
)

const memoryName = "ME"

// Option configures the short message commands.
type Option func(*commands)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *commands) {
		c.log = logger
	}
}

// WithOwnNumber makes messages sent to the given number arrive in the storage as received messages,
// announced with +CMTI on all instances.
func WithOwnNumber(number string) Option {
	return func(c *commands) {
		c.ownNumber = number
	}
}

type commands struct {
	atp       *atp.ATP
	store     *profile.Store
	storage   *Storage
	ownNumber string
	log       *zap.Logger
}

// Register the short message commands with the given ATP.
func Register(a *atp.ATP, storage *Storage, opts ...Option) error {
	c := &commands{
		atp:     a,
		store:   a.Profile(),
		storage: storage,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	err := c.store.Define(ParamFormat, strconv.Itoa(PDUMode), profile.Instance, profile.WithRange(PDUMode, TextMode))
	if err != nil && !errors.Is(err, profile.ErrAlreadyDefined) {
		return err
	}

	handlers := map[string]atp.Handler{
		"+CMGF": atp.HandlerFunc(c.format),
		"+CMGS": &textEntry{commands: c, send: true},
		"+CMGW": &textEntry{commands: c, send: false},
		"+CMSS": atp.HandlerFunc(c.sendStored),
		"+CMGL": atp.HandlerFunc(c.list),
		"+CMGR": atp.HandlerFunc(c.read),
		"+CMGD": atp.HandlerFunc(c.delete),
	}
	for name, handler := range handlers {
		if err := a.Register(name, handler); err != nil {
			return fmt.Errorf("cannot register %s: %w", name, err)
		}
	}
	return nil
}

func cms(code atp.CMS) atp.Result {
	return atp.CMSResult(code)
}

func (c *commands) textMode(instance int) bool {
	format, err := c.store.GetInt(instance, ParamFormat)
	return err == nil && format == TextMode
}

func (c *commands) charset(instance int) string {
	result, err := c.store.Get(instance, atp.ParamCharset)
	if err != nil {
		return atp.CharsetIRA
	}
	return result
}

// encode converts a string into the TE character set of the instance.
func (c *commands) encode(instance int, s string) string {
	result, err := atp.EncodeText(c.charset(instance), s)
	if err != nil {
		c.log.Debug("cannot encode text", zap.Error(err))
		return s
	}
	return string(result)
}

// address reads an address parameter and its optional type, e.g. +CMGS="<da>"[,<toda>].
func (c *commands) address(request *atp.Request, i int) (string, int, error) {
	raw := request.Text(i, "")
	if raw == "" {
		return "", 0, fmt.Errorf("missing address")
	}
	address, err := atp.DecodeText(c.charset(request.Instance), []byte(raw))
	if err != nil {
		return "", 0, err
	}
	defaultType := NationalAddress
	if strings.HasPrefix(address, "+") {
		defaultType = InternationalAddress
	}
	addressType, err := request.Int(i+1, defaultType)
	if err != nil {
		return "", 0, err
	}
	if addressType != NationalAddress && addressType != InternationalAddress {
		return "", 0, fmt.Errorf("unsupported address type %d", addressType)
	}
	return address, addressType, nil
}

// format selects the message format, +CMGF according to [27.005] 3.2.3
func (c *commands) format(instance *atp.Instance, event atp.Event) {
	if event.Kind != atp.CallbackInd {
		return
	}
	request := event.Request

	switch request.Type {
	case atp.Set:
		value, err := request.IntInRange(0, PDUMode, PDUMode, TextMode)
		if err != nil {
			instance.Release(request, atp.ResultError)
			return
		}
		if err := c.store.SetInt(request.Instance, ParamFormat, value); err != nil {
			instance.Release(request, atp.ResultError)
			return
		}
	case atp.Read:
		value, _ := c.store.Get(request.Instance, ParamFormat)
		instance.MsgOut("+CMGF: " + value)
	case atp.Test:
		instance.MsgOut("+CMGF: (0,1)")
	default:
		instance.Release(request, atp.ResultError)
		return
	}
	instance.Release(request, atp.ResultOK)
}

// textEntry handles +CMGS and +CMGW according to [27.005] 3.5.1 and 3.5.3: the command enters the
// SMS text input mode, Ctrl-Z sends or stores the message, ESC cancels it.
type textEntry struct {
	*commands
	send bool
}

func (h *textEntry) Handle(instance *atp.Instance, event atp.Event) {
	request := event.Request
	switch {
	case event.Kind == atp.CallbackInd:
		result, enter := h.start(request)
		if !enter {
			instance.Release(request, result)
			return
		}
		if err := instance.ChangeInputMode(request, atp.InputModeSMSText); err != nil {
			h.log.Error("cannot enter text mode", zap.Error(err))
			instance.Release(request, cms(atp.CMSMEFailure))
		}
	case event.Delegation == atp.DataInd:
		h.complete(instance, request, event.Text)
	case event.Delegation == atp.EscapeInd:
		h.log.Debug("message entry cancelled", zap.Stringer("request", request))
		instance.Release(request, atp.ResultOK)
	case event.Delegation == atp.CloseConInd:
		h.log.Debug("connection closed during message entry", zap.Stringer("request", request))
	}
}

func (h *textEntry) start(request *atp.Request) (atp.Result, bool) {
	switch request.Type {
	case atp.Test:
		return atp.ResultOK, false
	case atp.Set:
	case atp.Exec:
		if h.send {
			return cms(atp.CMSInvalidTextModeParameter), false
		}
	default:
		return atp.ResultError, false
	}
	if !h.textMode(request.Instance) {
		return cms(atp.CMSOperationNotSupported), false
	}
	if request.Type == atp.Set {
		if _, _, err := h.address(request, 0); err != nil {
			h.log.Debug("invalid destination", zap.Stringer("request", request), zap.Error(err))
			return cms(atp.CMSInvalidTextModeParameter), false
		}
	}
	return atp.ResultOK, true
}

func (h *textEntry) complete(instance *atp.Instance, request *atp.Request, text string) {
	maxLength := maxTextLength
	if strings.EqualFold(h.charset(request.Instance), atp.CharsetUCS2) {
		maxLength = maxUCS2TextLength
	}
	if utf8.RuneCountInString(text) > maxLength {
		instance.Release(request, cms(atp.CMSInvalidTextModeParameter))
		return
	}

	var destination string
	addressType := NationalAddress
	if request.Type == atp.Set {
		destination, addressType, _ = h.address(request, 0)
	}

	if !h.send {
		message, err := h.storage.Write(destination, addressType, text)
		if err != nil {
			instance.Release(request, cms(atp.CMSMemoryFull))
			return
		}
		instance.MsgOut(fmt.Sprintf("+CMGW: %d", message.Index))
		instance.Release(request, atp.ResultOK)
		return
	}

	message, err := h.storage.Send(destination, addressType, text)
	if err != nil {
		instance.Release(request, cms(atp.CMSMemoryFull))
		return
	}
	h.log.Info("message sent", zap.Stringer("message", message))
	instance.MsgOut(fmt.Sprintf("+CMGS: %d", message.Reference))
	instance.Release(request, atp.ResultOK)
	h.loopBack(message)
}

// loopBack delivers a message sent to the own number as received message.
func (c *commands) loopBack(message Message) {
	if c.ownNumber == "" || message.Address != c.ownNumber {
		return
	}
	received, err := c.storage.Receive(message.Address, message.AddressType, message.Text)
	if err != nil {
		c.log.Warn("cannot receive message", zap.Error(err))
		return
	}
	c.atp.Unsolicited(fmt.Sprintf("+CMTI: %q,%d", memoryName, received.Index))
}

// sendStored sends a message from the storage, +CMSS according to [27.005] 3.5.2
func (c *commands) sendStored(instance *atp.Instance, event atp.Event) {
	if event.Kind != atp.CallbackInd {
		return
	}
	request := event.Request

	switch request.Type {
	case atp.Test:
		instance.Release(request, atp.ResultOK)
		return
	case atp.Set:
	default:
		instance.Release(request, atp.ResultError)
		return
	}
	if !c.textMode(request.Instance) {
		instance.Release(request, cms(atp.CMSOperationNotSupported))
		return
	}
	index, err := request.Int(0, 0)
	if err != nil || !request.Present(0) {
		instance.Release(request, cms(atp.CMSInvalidMemoryIndex))
		return
	}
	var destination string
	var addressType int
	if request.Present(1) {
		destination, addressType, err = c.address(request, 1)
		if err != nil {
			instance.Release(request, cms(atp.CMSInvalidTextModeParameter))
			return
		}
	}

	message, err := c.storage.SendStored(index, destination, addressType)
	if err != nil {
		instance.Release(request, cms(atp.CMSInvalidMemoryIndex))
		return
	}
	instance.MsgOut(fmt.Sprintf("+CMSS: %d", message.Reference))
	instance.Release(request, atp.ResultOK)
	c.loopBack(message)
}

// list reports the stored messages, +CMGL according to [27.005] 3.4.2
func (c *commands) list(instance *atp.Instance, event atp.Event) {
	if event.Kind != atp.CallbackInd {
		return
	}
	request := event.Request

	if request.Type == atp.Test {
		names := []string{"REC UNREAD", "REC READ", "STO UNSENT", "STO SENT", "ALL"}
		quoted := make([]string, len(names))
		for i, name := range names {
			quoted[i] = strconv.Quote(name)
		}
		instance.MsgOut(fmt.Sprintf("+CMGL: (%s)", strings.Join(quoted, ",")))
		instance.Release(request, atp.ResultOK)
		return
	}
	if request.Type != atp.Set && request.Type != atp.Exec {
		instance.Release(request, atp.ResultError)
		return
	}
	if !c.textMode(request.Instance) {
		instance.Release(request, cms(atp.CMSOperationNotSupported))
		return
	}
	status, err := StatusByName(request.Text(0, RecUnread.String()))
	if err != nil {
		instance.Release(request, cms(atp.CMSInvalidTextModeParameter))
		return
	}

	for _, message := range c.storage.List(status) {
		if message.Status == RecUnread {
			c.storage.Read(message.Index)
		}
		instance.MsgOut(fmt.Sprintf("+CMGL: %d,%q,%q%s", message.Index, message.Status, c.encode(request.Instance, message.Address), c.timestamp(message)))
		instance.MsgOut(c.encode(request.Instance, message.Text))
	}
	instance.Release(request, atp.ResultOK)
}

// read reports one stored message, +CMGR according to [27.005] 3.4.3
func (c *commands) read(instance *atp.Instance, event atp.Event) {
	if event.Kind != atp.CallbackInd {
		return
	}
	request := event.Request

	switch request.Type {
	case atp.Test:
		instance.Release(request, atp.ResultOK)
		return
	case atp.Set:
	default:
		instance.Release(request, atp.ResultError)
		return
	}
	if !c.textMode(request.Instance) {
		instance.Release(request, cms(atp.CMSOperationNotSupported))
		return
	}
	index, err := request.Int(0, 0)
	if err != nil {
		instance.Release(request, cms(atp.CMSInvalidMemoryIndex))
		return
	}
	message, err := c.storage.Read(index)
	if err != nil {
		instance.Release(request, cms(atp.CMSInvalidMemoryIndex))
		return
	}

	instance.MsgOut(fmt.Sprintf("+CMGR: %q,%q%s", message.Status, c.encode(request.Instance, message.Address), c.timestamp(message)))
	instance.MsgOut(c.encode(request.Instance, message.Text))
	instance.Release(request, atp.ResultOK)
}

// delete removes stored messages, +CMGD according to [27.005] 3.5.4
func (c *commands) delete(instance *atp.Instance, event atp.Event) {
	if event.Kind != atp.CallbackInd {
		return
	}
	request := event.Request

	switch request.Type {
	case atp.Test:
		indexes := c.storage.Indexes()
		values := make([]string, len(indexes))
		for i, index := range indexes {
			values[i] = strconv.Itoa(index)
		}
		instance.MsgOut(fmt.Sprintf("+CMGD: (%s),(0-4)", strings.Join(values, ",")))
		instance.Release(request, atp.ResultOK)
		return
	case atp.Set:
	default:
		instance.Release(request, atp.ResultError)
		return
	}

	flag, err := request.IntInRange(1, int(DeleteIndex), int(DeleteIndex), int(DeleteAll))
	if err != nil {
		instance.Release(request, cms(atp.CMSInvalidTextModeParameter))
		return
	}
	if DeleteFlag(flag) != DeleteIndex {
		deleted := c.storage.DeleteByFlag(DeleteFlag(flag))
		c.log.Debug("messages deleted", zap.Int("flag", flag), zap.Int("count", deleted))
		instance.Release(request, atp.ResultOK)
		return
	}

	index, err := request.Int(0, 0)
	if err != nil || !request.Present(0) {
		instance.Release(request, cms(atp.CMSInvalidMemoryIndex))
		return
	}
	if err := c.storage.Delete(index); err != nil {
		instance.Release(request, cms(atp.CMSInvalidMemoryIndex))
		return
	}
	instance.Release(request, atp.ResultOK)
}

// timestamp formats the trailing ",[<alpha>],<scts>" fields of received messages. Stored messages
// have no service centre time stamp, so the optional fields are omitted.
func (c *commands) timestamp(message Message) string {
	if message.Status != RecUnread && message.Status != RecRead {
		return ""
	}
	return ",," + strconv.Quote(FormatTimestamp(message.Time))
}

// FormatTimestamp formats a time stamp as "yy/MM/dd,hh:mm:ss±zz" according to [27.005] 3.1,
// the time zone is given in quarters of an hour.
func FormatTimestamp(t time.Time) string {
	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%s%c%02d", t.Format("06/01/02,15:04:05"), sign, offset/(15*60))
}
