package sms

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Storage errors
var (
	ErrMemoryFull   = errors.New("message storage full")
	ErrInvalidIndex = errors.New("invalid message index")
)

// Status of a stored message according to [27.005] 3.1
type Status byte

// All message states
const (
	RecUnread Status = iota
	RecRead
	StoUnsent
	StoSent
	// All is only used to select messages.
	All
)

// StatusesByName maps all message states by their text mode representation
var StatusesByName = map[string]Status{
	"REC UNREAD": RecUnread,
	"REC READ":   RecRead,
	"STO UNSENT": StoUnsent,
	"STO SENT":   StoSent,
	"ALL":        All,
}

// StatusByName returns the Status with the given name
func StatusByName(name string) (Status, error) {
	sanitized := strings.ToUpper(strings.TrimSpace(name))
	result, ok := StatusesByName[sanitized]
	if !ok {
		return 0, fmt.Errorf("invalid message status %s", name)
	}
	return result, nil
}

func (s Status) String() string {
	for k, v := range StatusesByName {
		if v == s {
			return k
		}
	}
	return "UNKNOWN"
}

// Matches reports if a message with status s is selected by the given status.
func (s Status) Matches(selection Status) bool {
	return selection == All || selection == s
}

// Message is a short message in the message storage.
type Message struct {
	Index int
	// Reference is the message reference <mr> assigned when the message was sent.
	Reference int
	Status    Status
	// Address is the destination, or the originator of a received message.
	Address string
	// AddressType is the type of address <toda>, 145 for international numbers, 129 otherwise.
	AddressType int
	Text        string
	Time        time.Time
}

func (m Message) String() string {
	return fmt.Sprintf("%d %s %s %q", m.Index, m.Status, m.Address, m.Text)
}

// Storage is the message storage of the device, shared by all AT instances.
type Storage struct {
	mu            sync.Mutex
	capacity      int
	messages      map[int]Message
	nextReference int
	now           func() time.Time
}

// DefaultCapacity is the number of messages a storage holds by default.
const DefaultCapacity = 50

// NewStorage creates an empty storage for the given number of messages.
func NewStorage(capacity int) *Storage {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Storage{
		capacity: capacity,
		messages: make(map[int]Message),
		now:      time.Now,
	}
}

// Capacity returns the number of messages the storage can hold.
func (s *Storage) Capacity() int {
	return s.capacity
}

// Write stores an unsent message in the first free slot.
func (s *Storage) Write(destination string, addressType int, text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(Message{
		Status:      StoUnsent,
		Address:     destination,
		AddressType: addressType,
		Text:        text,
	})
}

// Receive stores an incoming message as unread.
func (s *Storage) Receive(origin string, addressType int, text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(Message{
		Status:      RecUnread,
		Address:     origin,
		AddressType: addressType,
		Text:        text,
	})
}

// Send records a message sent directly with +CMGS and returns it with its message reference.
func (s *Storage) Send(destination string, addressType int, text string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, err := s.add(Message{
		Status:      StoSent,
		Address:     destination,
		AddressType: addressType,
		Text:        text,
	})
	if err != nil {
		return Message{}, err
	}
	return s.markSent(message.Index), nil
}

// SendStored sends the stored message with the given index, optionally to another destination.
func (s *Storage) SendStored(index int, destination string, addressType int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messages[index]
	if !ok {
		return Message{}, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if destination != "" {
		message.Address = destination
		message.AddressType = addressType
		s.messages[index] = message
	}
	return s.markSent(index), nil
}

func (s *Storage) add(message Message) (Message, error) {
	if len(s.messages) >= s.capacity {
		return Message{}, ErrMemoryFull
	}
	for i := 1; i <= s.capacity; i++ {
		if _, ok := s.messages[i]; !ok {
			message.Index = i
			break
		}
	}
	message.Time = s.now()
	s.messages[message.Index] = message
	return message, nil
}

func (s *Storage) markSent(index int) Message {
	message := s.messages[index]
	message.Status = StoSent
	message.Reference = s.nextReference
	s.nextReference = (s.nextReference + 1) % 256
	s.messages[index] = message
	return message
}

// Get returns the message with the given index.
func (s *Storage) Get(index int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[index]
	if !ok {
		return Message{}, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	return message, nil
}

// Read returns the message with the given index and marks it as read. The returned message
// carries the status before reading.
func (s *Storage) Read(index int) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[index]
	if !ok {
		return Message{}, fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if message.Status == RecUnread {
		read := message
		read.Status = RecRead
		s.messages[index] = read
	}
	return message, nil
}

// List returns all messages with the given status, ordered by index.
func (s *Storage) List(status Status) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Message, 0, len(s.messages))
	for _, message := range s.messages {
		if message.Status.Matches(status) {
			result = append(result, message)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})
	return result
}

// Indexes returns the indexes of all stored messages in ascending order.
func (s *Storage) Indexes() []int {
	messages := s.List(All)
	result := make([]int, len(messages))
	for i, message := range messages {
		result[i] = message.Index
	}
	return result
}

// Delete removes the message with the given index.
func (s *Storage) Delete(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[index]; !ok {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	delete(s.messages, index)
	return nil
}

// DeleteFlag selects the messages removed by +CMGD according to [27.005] 3.5.4
type DeleteFlag int

// All delete flags
const (
	DeleteIndex DeleteFlag = iota
	DeleteRead
	DeleteReadAndSent
	DeleteReadSentAndUnsent
	DeleteAll
)

func (f DeleteFlag) String() string {
	switch f {
	case DeleteIndex:
		return "index"
	case DeleteRead:
		return "read"
	case DeleteReadAndSent:
		return "read and sent"
	case DeleteReadSentAndUnsent:
		return "read, sent and unsent"
	case DeleteAll:
		return "all"
	default:
		return fmt.Sprintf("flag %d", int(f))
	}
}

// DeleteByFlag removes all messages selected by the flag. Messages with other states are kept.
func (s *Storage) DeleteByFlag(flag DeleteFlag) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	selected := func(status Status) bool {
		switch flag {
		case DeleteRead:
			return status == RecRead
		case DeleteReadAndSent:
			return status == RecRead || status == StoSent
		case DeleteReadSentAndUnsent:
			return status != RecUnread
		case DeleteAll:
			return true
		default:
			return false
		}
	}

	deleted := 0
	for index, message := range s.messages {
		if selected(message.Status) {
			delete(s.messages, index)
			deleted++
		}
	}
	return deleted
}
