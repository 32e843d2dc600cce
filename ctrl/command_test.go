package ctrl

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/m2mb-atp/atp"
	"github.com/ftl/m2mb-atp/com"
	"github.com/ftl/m2mb-atp/sms"
	"github.com/ftl/m2mb-atp/v250"
)

type fakeRequester map[string][]string

func (r fakeRequester) Request(_ context.Context, request string) ([]string, error) {
	responses, ok := r[request]
	if !ok {
		return nil, fmt.Errorf("unexpected request %s", request)
	}
	return responses, nil
}

func (r fakeRequester) SendText(ctx context.Context, request string, text string) ([]string, error) {
	return r.Request(ctx, request+"|"+text)
}

func TestCommandBuilders(t *testing.T) {
	tt := []struct {
		actual   string
		expected string
	}{
		{SetErrorMode(ErrorsVerbose), "AT+CMEE=2"},
		{SetCharset("ucs2"), `AT+CSCS="UCS2"`},
		{SetMessageFormat(TextFormat), "AT+CMGF=1"},
		{SaveProfile(1), "AT&W1"},
		{RestoreProfile(0), "ATZ0"},
		{DeleteMessage(3), "AT+CMGD=3"},
	}
	for _, tc := range tt {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.actual)
		})
	}
}

func TestErrorModeByName(t *testing.T) {
	mode, err := ErrorModeByName(" verbose")
	require.NoError(t, err)
	assert.Equal(t, ErrorsVerbose, mode)
	assert.Equal(t, "NUMERIC", ErrorsNumeric.String())

	_, err = ErrorModeByName("LOUD")
	assert.Error(t, err)
}

func TestRequestErrorMode(t *testing.T) {
	tt := []struct {
		desc     string
		response []string
		expected ErrorMode
		invalid  bool
	}{
		{"numeric", []string{"+CMEE: 1"}, ErrorsNumeric, false},
		{"verbose", []string{" +CMEE: 2 "}, ErrorsVerbose, false},
		{"no response", []string{}, 0, true},
		{"unexpected", []string{"+CSCS: 1"}, 0, true},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			requester := fakeRequester{"AT+CMEE?": tc.response}

			actual, err := RequestErrorMode(context.Background(), requester)

			if tc.invalid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestListMessagesResponse(t *testing.T) {
	requester := fakeRequester{`AT+CMGL="ALL"`: {
		`+CMGL: 1,"REC READ","+4912345",,"26/10/18,12:30:00+00"`,
		"hello, world",
		`+CMGL: 2,"STO UNSENT","0815"`,
		"",
	}}

	actual, err := ListMessages(context.Background(), requester, "all")

	require.NoError(t, err)
	assert.Equal(t, []Message{
		{Index: 1, Status: "REC READ", Address: "+4912345", Timestamp: "26/10/18,12:30:00+00", Text: "hello, world"},
		{Index: 2, Status: "STO UNSENT", Address: "0815"},
	}, actual)
}

func TestSendMessageResponse(t *testing.T) {
	requester := fakeRequester{
		`AT+CMGS="0815"|hello`: {"+CMGS: 42"},
		`AT+CMGS="0816"|hello`: {"+CMGW: 1"},
	}

	reference, err := SendMessage(context.Background(), requester, "0815", "hello")
	require.NoError(t, err)
	assert.Equal(t, 42, reference)

	_, err = SendMessage(context.Background(), requester, "0816", "hello")
	assert.Error(t, err)
}

func TestParseNewMessageIndication(t *testing.T) {
	index, err := ParseNewMessageIndication(`+CMTI: "ME",7`)
	require.NoError(t, err)
	assert.Equal(t, 7, index)

	_, err = ParseNewMessageIndication(`+CMTI: ME`)
	assert.Error(t, err)
}

func TestAgainstParser(t *testing.T) {
	a, err := atp.New()
	require.NoError(t, err)
	require.NoError(t, v250.Register(a, v250.Identification{Model: "LE910C4"}))
	require.NoError(t, sms.Register(a, sms.NewStorage(10)))

	dte, dce := net.Pipe()
	_, err = a.Serve(context.Background(), 0, dce)
	require.NoError(t, err)
	client := com.New(dte)
	defer func() {
		a.Close()
		dte.Close()
		<-client.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.ATs(ctx, SetErrorMode(ErrorsNumeric), SetCharset("IRA"), SetMessageFormat(TextFormat)))

	mode, err := RequestErrorMode(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, ErrorsNumeric, mode)

	charset, err := RequestCharset(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, "IRA", charset)

	identification, err := RequestIdentification(ctx, client)
	require.NoError(t, err)
	assert.Equal(t, Identification{Manufacturer: "Telit", Model: "LE910C4", Revision: v250.DefaultIdentification.Revision, Serial: v250.DefaultIdentification.Serial}, identification)

	reference, err := SendMessage(ctx, client, "+4912345", "hello")
	require.NoError(t, err)
	assert.Equal(t, 0, reference)

	messages, err := ListMessages(ctx, client, "ALL")
	require.NoError(t, err)
	assert.Equal(t, []Message{{Index: 1, Status: "STO SENT", Address: "+4912345", Text: "hello"}}, messages)

	message, err := ReadMessage(ctx, client, 1)
	require.NoError(t, err)
	assert.Equal(t, messages[0], message)

	require.NoError(t, client.ATs(ctx, DeleteMessage(1)))
	messages, err = ListMessages(ctx, client, "ALL")
	require.NoError(t, err)
	assert.Empty(t, messages)

	_, err = ReadMessage(ctx, client, 1)
	var resultErr *atp.FinalResultError
	require.ErrorAs(t, err, &resultErr)
	assert.Equal(t, atp.CMSError, resultErr.Result.Final)
	assert.Equal(t, int(atp.CMSInvalidMemoryIndex), resultErr.Result.Code)
}
