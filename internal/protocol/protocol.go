// Package protocol defines the wire format between the snapmark client and
// daemon: a 4-byte little-endian length prefix followed by a JSON payload.
// The size cap is 16 MiB to leave room for base64-encoded images delivered
// through the stdin sentinel. Unknown JSON fields are ignored so older
// daemons keep working with newer clients.
package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize is the hard cap on an encoded message body.
const MaxMessageSize = 16 * 1024 * 1024

// StdinSentinel is the filename value meaning "the image arrives inline".
const StdinSentinel = "-"

const lengthPrefixSize = 4

// ErrConnectionClosed reports that the peer closed the connection before
// delivering a length prefix.
var ErrConnectionClosed = errors.New("connection closed")

// ErrInvalidEncoding reports a payload that is not valid JSON for the
// expected shape.
var ErrInvalidEncoding = errors.New("invalid message encoding")

// TooLargeError reports a message body over MaxMessageSize. The same error
// kind is returned whether the excess is caught at encode time or from a
// declared length prefix at read time.
type TooLargeError struct {
	Size int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("message too large: %d bytes (max %d)", e.Size, MaxMessageSize)
}

// MissingFieldError reports a semantically invalid request, naming the
// offending field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing required field: " + e.Field
}

// Request is what a client sends to the daemon. Fields other than Filename
// are overrides; nil means "inherit the daemon's global default".
type Request struct {
	// Filename is a path to the image, or StdinSentinel for inline data.
	Filename string `json:"filename"`

	OutputFilename       *string  `json:"output_filename,omitempty"`
	CopyCommand          *string  `json:"copy_command,omitempty"`
	InitialTool          *string  `json:"initial_tool,omitempty"`
	Fullscreen           *bool    `json:"fullscreen,omitempty"`
	EarlyExit            *bool    `json:"early_exit,omitempty"`
	CornerRoundness      *float64 `json:"corner_roundness,omitempty"`
	AnnotationSizeFactor *float64 `json:"annotation_size_factor,omitempty"`
	DefaultHideToolbars  *bool    `json:"default_hide_toolbars,omitempty"`
	NoWindowDecoration   *bool    `json:"no_window_decoration,omitempty"`

	// InlinePayload carries the base64-encoded image bytes when Filename is
	// StdinSentinel.
	InlinePayload *string `json:"inline_payload,omitempty"`
}

// NewRequest returns a request with only the required filename set.
func NewRequest(filename string) Request {
	return Request{Filename: filename}
}

// Validate checks semantic requirements. Structural decoding is separate;
// see DecodeRequest.
func (r *Request) Validate() error {
	if r.Filename == "" {
		return &MissingFieldError{Field: "filename"}
	}
	if r.Filename == StdinSentinel && r.InlinePayload == nil {
		return &MissingFieldError{Field: "inline_payload (required when filename is '-')"}
	}
	return nil
}

// Encode serializes the request, enforcing the size cap.
func (r Request) Encode() ([]byte, error) {
	return encodeJSON(r)
}

// DecodeRequest parses request bytes. It performs structural decoding only;
// callers decide when to run Validate.
func DecodeRequest(data []byte) (Request, error) {
	var r Request
	if err := json.Unmarshal(data, &r); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return r, nil
}

// Status is the response outcome.
type Status string

const (
	StatusOk    Status = "ok"
	StatusError Status = "error"
)

// Response is what the daemon sends back. Exactly one of WindowID and
// Message is populated: WindowID on ok (ids start at 1), Message on error.
type Response struct {
	Status   Status `json:"status"`
	WindowID uint64 `json:"window_id,omitempty"`
	Message  string `json:"message,omitempty"`
}

// OkResponse builds a success response carrying the window id.
func OkResponse(windowID uint64) Response {
	return Response{Status: StatusOk, WindowID: windowID}
}

// ErrorResponse builds a failure response carrying a message.
func ErrorResponse(message string) Response {
	return Response{Status: StatusError, Message: message}
}

// Encode serializes the response, enforcing the size cap.
func (r Response) Encode() ([]byte, error) {
	return encodeJSON(r)
}

// DecodeResponse parses response bytes.
func DecodeResponse(data []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	return r, nil
}

func encodeJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	if len(data) > MaxMessageSize {
		return nil, &TooLargeError{Size: len(data)}
	}
	return data, nil
}

// WriteMessage writes the length prefix and body, then flushes if the writer
// supports it, so a synchronous caller observes full delivery on return.
// Oversized bodies fail before any byte is written.
func WriteMessage(w io.Writer, data []byte) error {
	if len(data) > MaxMessageSize {
		return &TooLargeError{Size: len(data)}
	}

	var prefix [lengthPrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(data)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write message body: %w", err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush message: %w", err)
		}
	}
	return nil
}

// ReadMessage reads one length-prefixed message. A peer that closes before
// delivering the prefix yields ErrConnectionClosed; a declared length over
// the cap fails without reading the body.
func ReadMessage(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, ErrConnectionClosed
		}
		return nil, fmt.Errorf("read length prefix: %w", err)
	}

	length := int(binary.LittleEndian.Uint32(prefix[:]))
	if length > MaxMessageSize {
		return nil, &TooLargeError{Size: length}
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}
	return data, nil
}

// WriteRequest frames and writes a request.
func WriteRequest(w io.Writer, req Request) error {
	data, err := req.Encode()
	if err != nil {
		return err
	}
	return WriteMessage(w, data)
}

// ReadRequest reads and structurally decodes one request.
func ReadRequest(r io.Reader) (Request, error) {
	data, err := ReadMessage(r)
	if err != nil {
		return Request{}, err
	}
	return DecodeRequest(data)
}

// WriteResponse frames and writes a response.
func WriteResponse(w io.Writer, resp Response) error {
	data, err := resp.Encode()
	if err != nil {
		return err
	}
	return WriteMessage(w, data)
}

// ReadResponse reads and decodes one response.
func ReadResponse(r io.Reader) (Response, error) {
	data, err := ReadMessage(r)
	if err != nil {
		return Response{}, err
	}
	return DecodeResponse(data)
}
