package ctrl

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

func firstResponse(ctx context.Context, requester Requester, request string, pattern *regexp.Regexp) ([]string, error) {
	responses, err := requester.Request(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(responses) < 1 {
		return nil, fmt.Errorf("no response received")
	}
	response := strings.TrimSpace(responses[0])
	parts := pattern.FindStringSubmatch(response)
	if parts == nil {
		return nil, fmt.Errorf("unexpected response: %s", responses[0])
	}
	return parts, nil
}

// SetErrorMode according to [27.007] 9.1
func SetErrorMode(mode ErrorMode) string {
	return fmt.Sprintf("AT+CMEE=%d", mode)
}

var requestErrorModeResponse = regexp.MustCompile(`^\+CMEE: (\d)$`)

// RequestErrorMode reads the current error mode according to [27.007] 9.1
func RequestErrorMode(ctx context.Context, requester Requester) (ErrorMode, error) {
	parts, err := firstResponse(ctx, requester, "AT+CMEE?", requestErrorModeResponse)
	if err != nil {
		return 0, err
	}
	result, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return ErrorMode(result), nil
}

// SetCharset selects the TE character set according to [27.007] 5.5
func SetCharset(charset string) string {
	return fmt.Sprintf("AT+CSCS=%q", strings.ToUpper(charset))
}

var requestCharsetResponse = regexp.MustCompile(`^\+CSCS: "([^"]*)"$`)

// RequestCharset reads the current TE character set according to [27.007] 5.5
func RequestCharset(ctx context.Context, requester Requester) (string, error) {
	parts, err := firstResponse(ctx, requester, "AT+CSCS?", requestCharsetResponse)
	if err != nil {
		return "", err
	}
	return parts[1], nil
}

// RequestIdentification reads manufacturer, model, revision and serial number according to [27.007] 5.1-5.4
func RequestIdentification(ctx context.Context, requester Requester) (Identification, error) {
	var result Identification
	fields := []struct {
		request string
		value   *string
	}{
		{"AT+CGMI", &result.Manufacturer},
		{"AT+CGMM", &result.Model},
		{"AT+CGMR", &result.Revision},
		{"AT+CGSN", &result.Serial},
	}
	for _, field := range fields {
		responses, err := requester.Request(ctx, field.request)
		if err != nil {
			return Identification{}, err
		}
		if len(responses) < 1 {
			return Identification{}, fmt.Errorf("no response received for %s", field.request)
		}
		*field.value = strings.TrimSpace(responses[0])
	}
	return result, nil
}

// SaveProfile stores the current settings in the given user profile according to [V.250] 6.1.x
func SaveProfile(index int) string {
	return fmt.Sprintf("AT&W%d", index)
}

// RestoreProfile restores the settings of the given user profile according to [V.250] 6.1.1
func RestoreProfile(index int) string {
	return fmt.Sprintf("ATZ%d", index)
}

// SetMessageFormat according to [27.005] 3.2.3
func SetMessageFormat(format MessageFormat) string {
	return fmt.Sprintf("AT+CMGF=%d", format)
}

var sendMessageResponse = regexp.MustCompile(`^\+CMGS: (\d+)$`)

// SendMessage sends a text mode short message according to [27.005] 3.5.1 and returns the message reference.
func SendMessage(ctx context.Context, sender TextSender, destination string, text string) (int, error) {
	request := fmt.Sprintf("AT+CMGS=%q", destination)
	responses, err := sender.SendText(ctx, request, text)
	if err != nil {
		return 0, err
	}
	if len(responses) < 1 {
		return 0, fmt.Errorf("no response received")
	}
	parts := sendMessageResponse.FindStringSubmatch(strings.TrimSpace(responses[0]))
	if parts == nil {
		return 0, fmt.Errorf("unexpected response: %s", responses[0])
	}
	return strconv.Atoi(parts[1])
}

var listMessagesResponse = regexp.MustCompile(`^\+CMGL: (\d+),"([^"]*)","([^"]*)"(?:,[^,]*,"([^"]*)")?$`)

// ListMessages reads all messages with the given status, e.g. "ALL" or "REC UNREAD", according to [27.005] 3.4.2
func ListMessages(ctx context.Context, requester Requester, status string) ([]Message, error) {
	responses, err := requester.Request(ctx, fmt.Sprintf("AT+CMGL=%q", strings.ToUpper(status)))
	if err != nil {
		return nil, err
	}

	result := make([]Message, 0, len(responses)/2)
	for i := 0; i < len(responses); i++ {
		parts := listMessagesResponse.FindStringSubmatch(strings.TrimSpace(responses[i]))
		if parts == nil {
			return nil, fmt.Errorf("unexpected response: %s", responses[i])
		}
		index, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, err
		}
		message := Message{
			Index:     index,
			Status:    parts[2],
			Address:   parts[3],
			Timestamp: parts[4],
		}
		if i+1 < len(responses) {
			i++
			message.Text = responses[i]
		}
		result = append(result, message)
	}
	return result, nil
}

var readMessageResponse = regexp.MustCompile(`^\+CMGR: "([^"]*)","([^"]*)"(?:,[^,]*,"([^"]*)")?$`)

// ReadMessage reads the message with the given index according to [27.005] 3.4.3
func ReadMessage(ctx context.Context, requester Requester, index int) (Message, error) {
	responses, err := requester.Request(ctx, fmt.Sprintf("AT+CMGR=%d", index))
	if err != nil {
		return Message{}, err
	}
	if len(responses) < 2 {
		return Message{}, fmt.Errorf("incomplete response received")
	}
	parts := readMessageResponse.FindStringSubmatch(strings.TrimSpace(responses[0]))
	if parts == nil {
		return Message{}, fmt.Errorf("unexpected response: %s", responses[0])
	}
	return Message{
		Index:     index,
		Status:    parts[1],
		Address:   parts[2],
		Timestamp: parts[3],
		Text:      responses[1],
	}, nil
}

// DeleteMessage according to [27.005] 3.5.4
func DeleteMessage(index int) string {
	return fmt.Sprintf("AT+CMGD=%d", index)
}

var newMessageIndication = regexp.MustCompile(`^\+CMTI: "([^"]*)",(\d+)$`)

// ParseNewMessageIndication parses the unsolicited +CMTI result code according to [27.005] 3.4.1
// and returns the index of the new message.
func ParseNewMessageIndication(line string) (int, error) {
	parts := newMessageIndication.FindStringSubmatch(strings.TrimSpace(line))
	if parts == nil {
		return 0, fmt.Errorf("unexpected indication: %s", line)
	}
	return strconv.Atoi(parts[2])
}
