package stomp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/luciancaetano/netmon"
)

const (
	// Version is the protocol version offered in CONNECT frames.
	Version = "1.2"

	// MaxFrameSize caps an encoded frame.
	MaxFrameSize = 10 * 1024 * 1024 // 10MB
)

// Client and server commands.
const (
	CmdConnect     = "CONNECT"
	CmdStomp       = "STOMP"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdConnected   = "CONNECTED"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// Well-known header names.
const (
	HdrAcceptVersion = "accept-version"
	HdrHost          = "host"
	HdrLogin         = "login"
	HdrPasscode      = "passcode"
	HdrVersion       = "version"
	HdrMessage       = "message"
	HdrContentLength = "content-length"
	HdrContentType   = "content-type"
	HdrDestination   = "destination"
)

// ErrInvalidFrame is wrapped by every Decode error.
var ErrInvalidFrame = errors.New(netmon.ErrInvalidFrame)

// Header is a single name/value pair. Order is preserved on the wire.
type Header struct {
	Key   string
	Value string
}

// Frame is one STOMP frame.
type Frame struct {
	Command string
	Headers []Header
	Body    string
}

// NewConnect builds a STOMP 1.2 CONNECT frame for the given virtual host and
// credentials.
func NewConnect(host, login, passcode string) *Frame {
	return &Frame{
		Command: CmdStomp,
		Headers: []Header{
			{HdrAcceptVersion, Version},
			{HdrHost, host},
			{HdrLogin, login},
			{HdrPasscode, passcode},
		},
	}
}

// NewError builds an ERROR frame carrying message in its header and body.
func NewError(message, detail string) *Frame {
	return &Frame{
		Command: CmdError,
		Headers: []Header{
			{HdrVersion, Version},
			{HdrContentType, "text/plain"},
			{HdrMessage, message},
		},
		Body: detail,
	}
}

// Get returns the value of the first header named key.
func (f *Frame) Get(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

// Set replaces the first header named key, or appends it.
func (f *Frame) Set(key, value string) {
	for i := range f.Headers {
		if f.Headers[i].Key == key {
			f.Headers[i].Value = value
			return
		}
	}
	f.Headers = append(f.Headers, Header{key, value})
}

// Encode renders the frame, NUL terminator included. A content-length header
// is added when the body is not empty.
func Encode(f *Frame) (string, error) {
	if f.Command == "" {
		return "", errors.New("frame has no command")
	}

	var b strings.Builder
	b.WriteString(f.Command)
	b.WriteByte('\n')

	escape := escapes(f.Command)
	hasLength := false
	for _, h := range f.Headers {
		if h.Key == HdrContentLength {
			hasLength = true
		}
		b.WriteString(escape(h.Key))
		b.WriteByte(':')
		b.WriteString(escape(h.Value))
		b.WriteByte('\n')
	}
	if !hasLength && f.Body != "" {
		fmt.Fprintf(&b, "%s:%d\n", HdrContentLength, len(f.Body))
	}

	b.WriteByte('\n')
	b.WriteString(f.Body)
	b.WriteByte(0)

	if b.Len() > MaxFrameSize {
		return "", fmt.Errorf("frame size %d exceeds maximum %d bytes", b.Len(), MaxFrameSize)
	}
	return b.String(), nil
}

// Decode parses a single frame. Leading heart-beat EOLs and anything after the
// NUL terminator are ignored. When a header is repeated the first value wins.
func Decode(data string) (*Frame, error) {
	if len(data) > MaxFrameSize {
		return nil, fmt.Errorf("%w: size %d exceeds maximum %d bytes", ErrInvalidFrame, len(data), MaxFrameSize)
	}

	data = strings.TrimLeft(data, "\r\n")
	line, rest, ok := cutLine(data)
	if !ok || line == "" {
		return nil, fmt.Errorf("%w: missing command", ErrInvalidFrame)
	}

	f := &Frame{Command: line}
	unescape := unescapes(f.Command)

	for {
		line, rest, ok = cutLine(rest)
		if !ok {
			return nil, fmt.Errorf("%w: unterminated headers", ErrInvalidFrame)
		}
		if line == "" {
			break
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			return nil, fmt.Errorf("%w: malformed header %q", ErrInvalidFrame, line)
		}
		key, err := unescape(key)
		if err != nil {
			return nil, err
		}
		value, err = unescape(value)
		if err != nil {
			return nil, err
		}
		if _, dup := f.Get(key); !dup {
			f.Headers = append(f.Headers, Header{key, value})
		}
	}

	if length, ok := f.Get(HdrContentLength); ok {
		n, err := strconv.Atoi(length)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: bad content-length %q", ErrInvalidFrame, length)
		}
		if len(rest) < n+1 || rest[n] != 0 {
			return nil, fmt.Errorf("%w: body shorter than content-length %d", ErrInvalidFrame, n)
		}
		f.Body = rest[:n]
		return f, nil
	}

	end := strings.IndexByte(rest, 0)
	if end < 0 {
		return nil, fmt.Errorf("%w: missing NUL terminator", ErrInvalidFrame)
	}
	f.Body = rest[:end]
	return f, nil
}

// cutLine splits off one line ending in LF or CRLF.
func cutLine(s string) (line, rest string, ok bool) {
	i := strings.IndexByte(s, '\n')
	if i < 0 {
		return "", s, false
	}
	return strings.TrimSuffix(s[:i], "\r"), s[i+1:], true
}

var (
	escaper   = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)
	unescaper = strings.NewReplacer(`\\`, `\`, `\r`, "\r", `\n`, "\n", `\c`, ":")
)

// CONNECT and CONNECTED frames predate header escaping and are sent verbatim.
func raw(command string) bool {
	return command == CmdConnect || command == CmdConnected
}

func escapes(command string) func(string) string {
	if raw(command) {
		return func(s string) string { return s }
	}
	return escaper.Replace
}

func unescapes(command string) func(string) (string, error) {
	if raw(command) {
		return func(s string) (string, error) { return s, nil }
	}
	return func(s string) (string, error) {
		for i := 0; i < len(s); i++ {
			if s[i] != '\\' {
				continue
			}
			if i+1 == len(s) || !strings.ContainsRune(`\rnc`, rune(s[i+1])) {
				return "", fmt.Errorf("%w: undefined escape in %q", ErrInvalidFrame, s)
			}
			i++
		}
		return unescaper.Replace(s), nil
	}
}
