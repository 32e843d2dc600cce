package atp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidName(t *testing.T) {
	tt := []struct {
		name  string
		valid bool
	}{
		{"+CMGS", true},
		{"#loop", true},
		{"$GPSP", true},
		{"+CGDCONT", true},
		{"+C.X/Y:Z_1", true},
		{"E", true},
		{"&W", true},
		{"S3", true},
		{"S123", true},
		{"S1234", false},
		{"", false},
		{"+", false},
		{"+1A", false},
		{"CMGS", false},
		{"&", false},
		{"EE", false},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidName(tc.name))
		})
	}
}

func TestParseCommandLine(t *testing.T) {
	tt := []struct {
		desc     string
		body     string
		expected []Request
	}{
		{
			desc:     "empty",
			body:     "",
			expected: []Request{},
		},
		{
			desc:     "exec",
			body:     "+CGMI",
			expected: []Request{{Name: "+CGMI", Type: Exec, Raw: "+CGMI"}},
		},
		{
			desc:     "read",
			body:     "+cmee?",
			expected: []Request{{Name: "+CMEE", Type: Read, Raw: "+cmee?"}},
		},
		{
			desc:     "test",
			body:     "+CMEE=?",
			expected: []Request{{Name: "+CMEE", Type: Test, Raw: "+CMEE=?"}},
		},
		{
			desc: "set with params",
			body: `+CMGS="+49 123",145`,
			expected: []Request{{Name: "+CMGS", Type: Set, Raw: `+CMGS="+49 123",145`, Params: []Param{
				{Value: "+49 123", Quoted: true, Present: true},
				{Value: "145", Present: true},
			}}},
		},
		{
			desc: "omitted params",
			body: "+X=,2,",
			expected: []Request{{Name: "+X", Type: Set, Raw: "+X=,2,", Params: []Param{
				{},
				{Value: "2", Present: true},
				{},
			}}},
		},
		{
			desc: "escaped string",
			body: `+X="a\22b\5Cc"`,
			expected: []Request{{Name: "+X", Type: Set, Raw: `+X="a\22b\5Cc"`, Params: []Param{
				{Value: `a"b\c`, Quoted: true, Present: true},
			}}},
		},
		{
			desc: "concatenated extended commands",
			body: `+CMEE=2;+CSCS="UCS2";#LOOP`,
			expected: []Request{
				{Name: "+CMEE", Type: Set, Raw: "+CMEE=2", Params: []Param{{Value: "2", Present: true}}},
				{Name: "+CSCS", Type: Set, Raw: `+CSCS="UCS2"`, Params: []Param{{Value: "UCS2", Quoted: true, Present: true}}},
				{Name: "#LOOP", Type: Exec, Raw: "#LOOP"},
			},
		},
		{
			desc: "semicolon inside a string",
			body: `+X="a;b";+Y`,
			expected: []Request{
				{Name: "+X", Type: Set, Raw: `+X="a;b"`, Params: []Param{{Value: "a;b", Quoted: true, Present: true}}},
				{Name: "+Y", Type: Exec, Raw: "+Y"},
			},
		},
		{
			desc: "basic commands",
			body: "E0v1&W0Z",
			expected: []Request{
				{Name: "E", Type: Set, Raw: "E0", Params: []Param{{Value: "0", Present: true}}},
				{Name: "V", Type: Set, Raw: "v1", Params: []Param{{Value: "1", Present: true}}},
				{Name: "&W", Type: Set, Raw: "&W0", Params: []Param{{Value: "0", Present: true}}},
				{Name: "Z", Type: NoParams, Raw: "Z"},
			},
		},
		{
			desc: "basic read and test",
			body: "E?Q=?",
			expected: []Request{
				{Name: "E", Type: Read, Raw: "E?"},
				{Name: "Q", Type: Test, Raw: "Q=?"},
			},
		},
		{
			desc: "S registers",
			body: "S3?S12=20S2=?",
			expected: []Request{
				{Name: "S3", Type: Read, Raw: "S3?"},
				{Name: "S12", Type: Set, Raw: "S12=20", Params: []Param{{Value: "20", Present: true}}},
				{Name: "S2", Type: Test, Raw: "S2=?"},
			},
		},
		{
			desc: "leading zeros of S registers",
			body: "S03=13",
			expected: []Request{
				{Name: "S3", Type: Set, Raw: "S03=13", Params: []Param{{Value: "13", Present: true}}},
			},
		},
		{
			desc: "basic and extended",
			body: "E1+CMEE=1",
			expected: []Request{
				{Name: "E", Type: Set, Raw: "E1", Params: []Param{{Value: "1", Present: true}}},
				{Name: "+CMEE", Type: Set, Raw: "+CMEE=1", Params: []Param{{Value: "1", Present: true}}},
			},
		},
		{
			desc: "dial",
			body: "D+491234;",
			expected: []Request{
				{Name: "D", Type: Set, Raw: "D+491234", Params: []Param{{Value: "+491234", Present: true}}},
			},
		},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			actual, err := parseCommandLine(0, tc.body)

			require.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
		})
	}
}

func TestParseCommandLine_Instance(t *testing.T) {
	actual, err := parseCommandLine(3, "+X;+Y")

	require.NoError(t, err)
	require.Len(t, actual, 2)
	assert.Equal(t, 3, actual[0].Instance)
	assert.Equal(t, 3, actual[1].Instance)
}

func TestParseCommandLine_SyntaxErrors(t *testing.T) {
	tt := []struct {
		desc string
		body string
	}{
		{"unknown character", "!"},
		{"missing semicolon", "+CMEE?E1"},
		{"garbage after read", "+CMEE?x"},
		{"unterminated string", `+X="abc`},
		{"characters after string", `+X="abc"d`},
		{"quote within value", `+X=a"b"`},
		{"incomplete escape", `+X="\4"`},
		{"invalid escape", `+X="\ZZ"`},
		{"S without number", "S=3"},
		{"ampersand only", "&"},
		{"invalid extended name", "+1"},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := parseCommandLine(0, tc.body)

			assert.ErrorIs(t, err, ErrSyntax)
		})
	}
}

func TestHasATPrefix(t *testing.T) {
	assert.True(t, hasATPrefix("AT"))
	assert.True(t, hasATPrefix("at+cmee?"))
	assert.True(t, hasATPrefix("aT"))
	assert.False(t, hasATPrefix("A"))
	assert.False(t, hasATPrefix("XAT"))
}

func TestRequestParams(t *testing.T) {
	request := Request{Name: "+X", Params: []Param{
		{Value: "12", Present: true},
		{},
		{Value: "abc", Quoted: true, Present: true},
		{Value: "x1", Present: true},
	}}

	assert.Equal(t, 4, request.Len())
	assert.True(t, request.Present(0))
	assert.False(t, request.Present(1))
	assert.False(t, request.Present(7))

	value, err := request.Int(0, 5)
	assert.NoError(t, err)
	assert.Equal(t, 12, value)
	value, err = request.Int(1, 5)
	assert.NoError(t, err)
	assert.Equal(t, 5, value)
	_, err = request.Int(2, 5)
	assert.Error(t, err)
	_, err = request.Int(3, 5)
	assert.Error(t, err)
	_, err = request.IntInRange(0, 0, 0, 10)
	assert.Error(t, err)

	assert.Equal(t, "abc", request.Text(2, ""))
	assert.Equal(t, "def", request.Text(1, "def"))
	assert.Equal(t, `"abc"`, request.Params[2].String())
	assert.True(t, request.Is("+x"))
}
