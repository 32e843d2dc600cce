package sms

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusByName(t *testing.T) {
	tt := []struct {
		value    string
		expected Status
		invalid  bool
	}{
		{"REC UNREAD", RecUnread, false},
		{"rec read", RecRead, false},
		{" STO UNSENT ", StoUnsent, false},
		{"STO SENT", StoSent, false},
		{"ALL", All, false},
		{"UNREAD", 0, true},
	}
	for _, tc := range tt {
		t.Run(tc.value, func(t *testing.T) {
			actual, err := StatusByName(tc.value)
			if tc.invalid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, actual)
			assert.Equal(t, tc.expected, StatusesByName[actual.String()])
		})
	}
}

func TestStorage_WriteAndSend(t *testing.T) {
	storage := NewStorage(3)

	written, err := storage.Write("+4912345", InternationalAddress, "first")
	require.NoError(t, err)
	assert.Equal(t, 1, written.Index)
	assert.Equal(t, StoUnsent, written.Status)

	sent, err := storage.Send("0815", NationalAddress, "second")
	require.NoError(t, err)
	assert.Equal(t, 2, sent.Index)
	assert.Equal(t, StoSent, sent.Status)
	assert.Equal(t, 0, sent.Reference)

	resent, err := storage.SendStored(1, "", 0)
	require.NoError(t, err)
	assert.Equal(t, StoSent, resent.Status)
	assert.Equal(t, 1, resent.Reference)
	assert.Equal(t, "+4912345", resent.Address)

	redirected, err := storage.SendStored(1, "0816", NationalAddress)
	require.NoError(t, err)
	assert.Equal(t, "0816", redirected.Address)
	assert.Equal(t, 2, redirected.Reference)

	_, err = storage.SendStored(3, "", 0)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestStorage_ReferenceWrapsAround(t *testing.T) {
	storage := NewStorage(1)
	storage.nextReference = 255

	first, err := storage.Send("0815", NationalAddress, "text")
	require.NoError(t, err)
	second, err := storage.SendStored(first.Index, "", 0)
	require.NoError(t, err)

	assert.Equal(t, 255, first.Reference)
	assert.Equal(t, 0, second.Reference)
}

func TestStorage_Full(t *testing.T) {
	storage := NewStorage(2)
	_, err := storage.Write("1", NationalAddress, "a")
	require.NoError(t, err)
	_, err = storage.Receive("2", NationalAddress, "b")
	require.NoError(t, err)

	_, err = storage.Write("3", NationalAddress, "c")
	assert.ErrorIs(t, err, ErrMemoryFull)

	require.NoError(t, storage.Delete(1))
	reused, err := storage.Write("3", NationalAddress, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, reused.Index, "the first free index is reused")
}

func TestStorage_Read(t *testing.T) {
	storage := NewStorage(0)
	assert.Equal(t, DefaultCapacity, storage.Capacity())
	received, err := storage.Receive("+4912345", InternationalAddress, "hello")
	require.NoError(t, err)

	first, err := storage.Read(received.Index)
	require.NoError(t, err)
	assert.Equal(t, RecUnread, first.Status)

	second, err := storage.Read(received.Index)
	require.NoError(t, err)
	assert.Equal(t, RecRead, second.Status)

	_, err = storage.Read(42)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestStorage_List(t *testing.T) {
	storage := NewStorage(10)
	storage.Receive("1", NationalAddress, "unread")
	storage.Write("2", NationalAddress, "unsent")
	storage.Send("3", NationalAddress, "sent")
	storage.Receive("4", NationalAddress, "read")
	storage.Read(4)

	texts := func(messages []Message) []string {
		result := make([]string, len(messages))
		for i, message := range messages {
			result[i] = message.Text
		}
		return result
	}

	assert.Equal(t, []string{"unread", "unsent", "sent", "read"}, texts(storage.List(All)))
	assert.Equal(t, []string{"unread"}, texts(storage.List(RecUnread)))
	assert.Equal(t, []string{"read"}, texts(storage.List(RecRead)))
	assert.Equal(t, []string{"sent"}, texts(storage.List(StoSent)))
	assert.Equal(t, []int{1, 2, 3, 4}, storage.Indexes())
}

func TestStorage_DeleteByFlag(t *testing.T) {
	tt := []struct {
		flag      DeleteFlag
		remaining []int
	}{
		{DeleteIndex, []int{1, 2, 3, 4}},
		{DeleteRead, []int{1, 2, 3}},
		{DeleteReadAndSent, []int{1, 2}},
		{DeleteReadSentAndUnsent, []int{1}},
		{DeleteAll, []int{}},
	}
	for _, tc := range tt {
		t.Run(tc.flag.String(), func(t *testing.T) {
			storage := NewStorage(10)
			storage.Receive("1", NationalAddress, "unread")
			storage.Write("2", NationalAddress, "unsent")
			storage.Send("3", NationalAddress, "sent")
			storage.Receive("4", NationalAddress, "read")
			storage.Read(4)

			deleted := storage.DeleteByFlag(tc.flag)

			assert.Equal(t, tc.remaining, storage.Indexes())
			assert.Equal(t, 4-len(tc.remaining), deleted)
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	tt := []struct {
		value    time.Time
		expected string
	}{
		{time.Date(2026, 10, 18, 9, 5, 3, 0, time.UTC), "26/10/18,09:05:03+00"},
		{time.Date(2026, 1, 2, 23, 59, 0, 0, time.FixedZone("CEST", 2*60*60)), "26/01/02,23:59:00+08"},
		{time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("NST", -(3*60*60+30*60))), "26/01/02,03:04:05-14"},
	}
	for _, tc := range tt {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatTimestamp(tc.value))
		})
	}
}
