package stomp

import (
	"errors"
	"strings"
	"testing"
)

// TestEncodeConnect tests the wire form of a CONNECT frame
func TestEncodeConnect(t *testing.T) {
	t.Parallel()

	got, err := Encode(NewConnect("example.com", "guest", "secret"))
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	want := "STOMP\naccept-version:1.2\nhost:example.com\nlogin:guest\npasscode:secret\n\n\x00"
	if got != want {
		t.Errorf("Encode() = %q, want %q", got, want)
	}
	if !strings.HasSuffix(got, "\x00") {
		t.Error("encoded frame must end with a NUL terminator")
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		frame   *Frame
		want    string
		wantErr bool
	}{
		{
			name:  "body adds content-length",
			frame: &Frame{Command: CmdSend, Headers: []Header{{HdrDestination, "/queue/a"}}, Body: "hi"},
			want:  "SEND\ndestination:/queue/a\ncontent-length:2\n\nhi\x00",
		},
		{
			name:  "headers are escaped",
			frame: &Frame{Command: CmdSend, Headers: []Header{{"a:b", "x\ny\\z"}}},
			want:  "SEND\na\\cb:x\\ny\\\\z\n\n\x00",
		},
		{
			name:  "connect headers are not escaped",
			frame: &Frame{Command: CmdConnect, Headers: []Header{{HdrLogin, "a:b"}}},
			want:  "CONNECT\nlogin:a:b\n\n\x00",
		},
		{
			name:  "explicit content-length is kept",
			frame: &Frame{Command: CmdSend, Headers: []Header{{HdrContentLength, "3"}}, Body: "abc"},
			want:  "SEND\ncontent-length:3\n\nabc\x00",
		},
		{
			name:    "missing command",
			frame:   &Frame{},
			wantErr: true,
		},
		{
			name:    "oversize body",
			frame:   &Frame{Command: CmdSend, Body: strings.Repeat("x", MaxFrameSize)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Encode(tt.frame)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Encode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		command string
		headers []Header
		body    string
	}{
		{
			name:    "error frame",
			data:    "ERROR\nmessage:authentication failed\n\nbad credentials\x00",
			command: CmdError,
			headers: []Header{{HdrMessage, "authentication failed"}},
			body:    "bad credentials",
		},
		{
			name:    "crlf line endings and heart-beats",
			data:    "\r\n\nCONNECTED\r\nversion:1.2\r\n\r\n\x00\n",
			command: CmdConnected,
			headers: []Header{{HdrVersion, "1.2"}},
		},
		{
			name:    "content-length allows NUL in body",
			data:    "MESSAGE\ncontent-length:3\n\na\x00b\x00",
			command: CmdMessage,
			headers: []Header{{HdrContentLength, "3"}},
			body:    "a\x00b",
		},
		{
			name:    "repeated header keeps first",
			data:    "MESSAGE\nfoo:1\nfoo:2\n\n\x00",
			command: CmdMessage,
			headers: []Header{{"foo", "1"}},
		},
		{
			name:    "escaped header",
			data:    "MESSAGE\na\\cb:x\\ny\\\\z\n\n\x00",
			command: CmdMessage,
			headers: []Header{{"a:b", "x\ny\\z"}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if f.Command != tt.command {
				t.Errorf("Command = %q, want %q", f.Command, tt.command)
			}
			if len(f.Headers) != len(tt.headers) {
				t.Fatalf("Headers = %v, want %v", f.Headers, tt.headers)
			}
			for i := range tt.headers {
				if f.Headers[i] != tt.headers[i] {
					t.Errorf("Headers[%d] = %v, want %v", i, f.Headers[i], tt.headers[i])
				}
			}
			if f.Body != tt.body {
				t.Errorf("Body = %q, want %q", f.Body, tt.body)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "only command", data: "SEND"},
		{name: "unterminated headers", data: "SEND\nfoo:bar"},
		{name: "header without colon", data: "SEND\nfoo\n\n\x00"},
		{name: "missing NUL", data: "SEND\n\nbody"},
		{name: "bad content-length", data: "SEND\ncontent-length:x\n\n\x00"},
		{name: "short body", data: "SEND\ncontent-length:10\n\nabc\x00"},
		{name: "undefined escape", data: "SEND\nfoo:\\t\n\n\x00"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Decode(tt.data)
			if !errors.Is(err, ErrInvalidFrame) {
				t.Errorf("Decode(%q) error = %v, want %v", tt.data, err, ErrInvalidFrame)
			}
		})
	}
}

func TestFrameSetGet(t *testing.T) {
	t.Parallel()

	f := &Frame{Command: CmdSend}
	f.Set(HdrDestination, "/a")
	f.Set(HdrDestination, "/b")

	if v, ok := f.Get(HdrDestination); !ok || v != "/b" {
		t.Errorf("Get() = %q, %v, want /b, true", v, ok)
	}
	if len(f.Headers) != 1 {
		t.Errorf("len(Headers) = %d, want 1", len(f.Headers))
	}
	if _, ok := f.Get("missing"); ok {
		t.Error("Get(missing) reported present")
	}
}

// TestEncodeDecodeError tests that an ERROR frame survives a round trip
func TestEncodeDecodeError(t *testing.T) {
	t.Parallel()

	data, err := Encode(NewError("authentication failed", "invalid login or passcode"))
	if err != nil {
		t.Fatal(err)
	}

	f, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if f.Command != CmdError {
		t.Errorf("Command = %q, want ERROR", f.Command)
	}
	if msg, _ := f.Get(HdrMessage); msg != "authentication failed" {
		t.Errorf("message header = %q", msg)
	}
	if f.Body != "invalid login or passcode" {
		t.Errorf("Body = %q", f.Body)
	}
}
