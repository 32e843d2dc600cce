package com

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemory_Read(t *testing.T) {
	tt := []struct {
		desc     string
		in       []string
		bufLen   int
		expected []string
	}{
		{"short", []string{"AT\r"}, 10, []string{"AT\r"}},
		{"exact", []string{"ATE0\r"}, 5, []string{"ATE0\r"}},
		{"split", []string{"AT+CMEE?\r"}, 4, []string{"AT+C", "MEE?", "\r"}},
		{"appended", []string{"AT", "I\r"}, 10, []string{"ATI\r"}},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			rw := NewInMemory()
			for _, s := range tc.in {
				rw.Send(s)
			}
			buf := make([]byte, tc.bufLen)

			for _, expected := range tc.expected {
				n, err := rw.Read(buf)

				assert.NoError(t, err)
				assert.Equal(t, expected, string(buf[0:n]))
			}
			assert.True(t, rw.IsReadEmpty())
		})
	}
}

func TestInMemory_ReadClose(t *testing.T) {
	rw := NewInMemory()

	go func() {
		time.Sleep(time.Millisecond)
		rw.Close()
	}()

	buf := make([]byte, 10)
	n, err := rw.Read(buf)

	assert.Equal(t, io.EOF, err)
	assert.Equal(t, 0, n)
	assert.True(t, rw.Closed())
	assert.NoError(t, rw.Close(), "closing twice is fine")
}

func TestInMemory_ReadLater(t *testing.T) {
	rw := NewInMemory()

	go func() {
		time.Sleep(time.Millisecond)
		rw.Send("AT\r")
	}()

	buf := make([]byte, 10)
	n, err := rw.Read(buf)

	assert.NoError(t, err)
	assert.Equal(t, "AT\r", string(buf[0:n]))
}

func TestInMemory_CloseWhenEmpty(t *testing.T) {
	rw := NewInMemory()
	rw.Send("ATZ\r")
	rw.CloseWhenEmpty(true)
	buf := make([]byte, 2)

	n, err := rw.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "AT", string(buf[0:n]))
	assert.False(t, rw.Closed())

	n, err = rw.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Z\r", string(buf[0:n]))
	assert.True(t, rw.Closed())

	_, err = rw.Read(buf)
	assert.Equal(t, io.EOF, err)
}

func TestInMemory_Write(t *testing.T) {
	rw := NewInMemory()

	n, err := rw.Write([]byte("\r\nOK\r\n"))

	assert.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "\r\nOK\r\n", string(rw.Written()))
	assert.True(t, rw.WrittenContains("OK"))

	written := rw.Written()
	written[2] = 'X'
	assert.Equal(t, "\r\nOK\r\n", string(rw.Written()), "Written returns a copy")

	rw.ClearWrite()
	assert.Equal(t, "", string(rw.Written()))

	rw.Close()
	_, err = rw.Write([]byte("ERROR"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestInMemory_WaitUntilWritten(t *testing.T) {
	rw := NewInMemory()
	written := make(chan struct{})
	go func() {
		rw.WaitUntilWritten()
		close(written)
	}()

	time.Sleep(time.Millisecond)
	rw.Write([]byte("AT\r\n"))

	select {
	case <-written:
	case <-time.After(time.Second):
		t.Fatal("WaitUntilWritten did not return")
	}
	rw.WaitUntilWritten()

	rw.ClearWrite()
	go func() {
		time.Sleep(time.Millisecond)
		rw.Close()
	}()
	rw.WaitUntilWritten()
	assert.True(t, rw.Closed())
}
