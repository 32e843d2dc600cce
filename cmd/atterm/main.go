// atterm is an interactive terminal for AT interfaces on a serial port or a TCP connection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/ftl/m2mb-atp/atp"
	"github.com/ftl/m2mb-atp/com"
	"github.com/ftl/m2mb-atp/ctrl"
	"github.com/ftl/m2mb-atp/serial"
)

const (
	commandPrompt = "AT> "
	textPrompt    = "> "
	timeout       = 10 * time.Second
)

func main() {
	port := flag.String("port", "", "serial port of the AT interface")
	baud := flag.Uint("baud", serial.DefaultBaudRate, "baud rate of the serial port")
	detect := flag.String("detect", "", "use the first serial port whose description contains this text")
	address := flag.String("tcp", "", "TCP address of the AT interface")
	trace := flag.Bool("trace", false, "trace all communication to stderr")
	flag.Parse()

	device, err := open(*port, *baud, *detect, *address)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer device.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          commandPrompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	var options []com.Option
	if *trace {
		options = append(options, com.WithTrace(rl.Stderr()))
	}
	t := &terminal{
		rl:     rl,
		client: com.New(device, options...),
	}
	t.client.AddIndication("+CMTI:", 0, t.newMessage)
	t.run()
}

func open(port string, baud uint, detect string, address string) (io.ReadWriteCloser, error) {
	switch {
	case address != "":
		return net.Dial("tcp", address)
	case port == "" && detect != "":
		var err error
		port, err = serial.FindPortName(detect)
		if err != nil {
			return nil, err
		}
	case port == "":
		return nil, errors.New("either -port, -detect or -tcp is required")
	}
	return serial.Open(serial.Port{PortName: port, BaudRate: baud})
}

type terminal struct {
	rl     *readline.Instance
	client *com.COM
}

func (t *terminal) run() {
	t.printHelp()
	for {
		line, err := t.rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil || t.client.Closed() {
			return
		}

		input := strings.TrimSpace(line)
		switch {
		case input == "":
			continue
		case input == ":quit" || input == ":q":
			return
		case input == ":" || input == ":help":
			t.printHelp()
		case strings.HasPrefix(input, ":"):
			t.builtin(strings.Fields(input[1:]))
		default:
			t.at(input)
		}
	}
}

func (t *terminal) printHelp() {
	fmt.Fprintln(t.rl.Stdout(), `Enter AT command lines, AT+CMGS and AT+CMGW prompt for the message text.
Builtin commands:
  :id                       show the device identification
  :send <number> <text...>  send a short message in text mode
  :list [status]            list the stored messages, default ALL
  :read <index>             read a stored message
  :quit                     exit`)
}

func (t *terminal) at(input string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	upper := strings.ToUpper(input)
	var lines []string
	var err error
	if strings.HasPrefix(upper, "AT+CMGS=") || strings.HasPrefix(upper, "AT+CMGW") {
		text, textErr := t.readText()
		if textErr != nil {
			return
		}
		lines, err = t.client.SendText(ctx, input, text)
	} else {
		lines, err = t.client.AT(ctx, input)
	}

	for _, line := range lines {
		fmt.Fprintln(t.rl.Stdout(), line)
	}
	t.printResult(err)
}

func (t *terminal) readText() (string, error) {
	t.rl.SetPrompt(textPrompt)
	defer t.rl.SetPrompt(commandPrompt)
	return t.rl.Readline()
}

func (t *terminal) printResult(err error) {
	var resultErr *atp.FinalResultError
	switch {
	case err == nil:
		fmt.Fprintln(t.rl.Stdout(), "OK")
	case errors.As(err, &resultErr):
		fmt.Fprintln(t.rl.Stdout(), resultErr.Line)
	default:
		fmt.Fprintf(t.rl.Stdout(), "error: %v\n", err)
	}
}

func (t *terminal) builtin(args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch args[0] {
	case "id":
		identification, err := ctrl.RequestIdentification(ctx, t.client)
		if err != nil {
			t.printResult(err)
			return
		}
		fmt.Fprintf(t.rl.Stdout(), "%s %s revision %s serial %s\n", identification.Manufacturer, identification.Model, identification.Revision, identification.Serial)
	case "send":
		if len(args) < 3 {
			fmt.Fprintln(t.rl.Stdout(), "usage: :send <number> <text...>")
			return
		}
		if err := t.client.ATs(ctx, ctrl.SetMessageFormat(ctrl.TextFormat)); err != nil {
			t.printResult(err)
			return
		}
		reference, err := ctrl.SendMessage(ctx, t.client, args[1], strings.Join(args[2:], " "))
		if err != nil {
			t.printResult(err)
			return
		}
		fmt.Fprintf(t.rl.Stdout(), "message sent, reference %d\n", reference)
	case "list":
		status := "ALL"
		if len(args) > 1 {
			status = strings.Join(args[1:], " ")
		}
		messages, err := ctrl.ListMessages(ctx, t.client, status)
		if err != nil {
			t.printResult(err)
			return
		}
		for _, message := range messages {
			t.printMessage(message)
		}
	case "read":
		if len(args) != 2 {
			fmt.Fprintln(t.rl.Stdout(), "usage: :read <index>")
			return
		}
		index, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(t.rl.Stdout(), "invalid index: %v\n", err)
			return
		}
		message, err := ctrl.ReadMessage(ctx, t.client, index)
		if err != nil {
			t.printResult(err)
			return
		}
		t.printMessage(message)
	default:
		fmt.Fprintf(t.rl.Stdout(), "unknown command: %s\n", args[0])
	}
}

func (t *terminal) printMessage(message ctrl.Message) {
	fmt.Fprintf(t.rl.Stdout(), "%3d %-10s %-16s %s\n    %s\n", message.Index, message.Status, message.Address, message.Timestamp, message.Text)
}

func (t *terminal) newMessage(lines []string) {
	index, err := ctrl.ParseNewMessageIndication(lines[0])
	if err != nil {
		fmt.Fprintln(t.rl.Stdout(), lines[0])
		return
	}
	fmt.Fprintf(t.rl.Stdout(), "new message %d, use :read %d\n", index, index)
}
