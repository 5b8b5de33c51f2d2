package wayland

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// headerSize is the object id word plus the size/opcode word
const headerSize = 8

// maxMessageSize is the largest message the wire format can describe
const maxMessageSize = 1<<16 - 1

var order = binary.NativeEndian

// ErrShortMessage is returned when an event payload ends before an argument
var ErrShortMessage = errors.New("wayland: short message")

// Message is a single request or event on the wire
type Message struct {
	Object  uint32
	Opcode  uint16
	Payload []byte
}

// Request builds the payload of an outgoing message
type Request struct {
	object  uint32
	opcode  uint16
	payload []byte
}

// NewRequest starts a request for opcode on object
func NewRequest(object uint32, opcode uint16) *Request {
	return &Request{object: object, opcode: opcode}
}

// Uint appends an unsigned 32-bit argument (also used for object and new_id)
func (r *Request) Uint(v uint32) *Request {
	r.payload = order.AppendUint32(r.payload, v)
	return r
}

// Int appends a signed 32-bit argument
func (r *Request) Int(v int32) *Request {
	return r.Uint(uint32(v))
}

// String appends a NUL terminated string padded to 32 bits
func (r *Request) String(s string) *Request {
	n := len(s) + 1
	r.payload = order.AppendUint32(r.payload, uint32(n))
	r.payload = append(r.payload, s...)
	r.payload = append(r.payload, 0)
	for pad := padding(n); pad > 0; pad-- {
		r.payload = append(r.payload, 0)
	}
	return r
}

// Bytes encodes the request with its header
func (r *Request) Bytes() ([]byte, error) {
	size := headerSize + len(r.payload)
	if size > maxMessageSize {
		return nil, fmt.Errorf("wayland: message of %d bytes exceeds wire limit", size)
	}
	buf := make([]byte, 0, size)
	buf = order.AppendUint32(buf, r.object)
	buf = order.AppendUint32(buf, uint32(size)<<16|uint32(r.opcode))
	return append(buf, r.payload...), nil
}

// ReadMessage reads one message from rd
func ReadMessage(rd io.Reader) (Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(rd, header[:]); err != nil {
		return Message{}, err
	}

	object := order.Uint32(header[0:4])
	word := order.Uint32(header[4:8])
	size := int(word >> 16)
	if size < headerSize {
		return Message{}, fmt.Errorf("wayland: invalid message size %d", size)
	}

	msg := Message{
		Object:  object,
		Opcode:  uint16(word & 0xffff),
		Payload: make([]byte, size-headerSize),
	}
	if _, err := io.ReadFull(rd, msg.Payload); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// WriteMessage encodes msg onto w
func WriteMessage(w io.Writer, msg Message) error {
	req := &Request{object: msg.Object, opcode: msg.Opcode, payload: msg.Payload}
	buf, err := req.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}

// Decoder reads arguments from a message payload in order
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a decoder over the payload of msg
func NewDecoder(msg Message) *Decoder {
	return &Decoder{buf: msg.Payload}
}

// Uint reads an unsigned 32-bit argument
func (d *Decoder) Uint() (uint32, error) {
	if len(d.buf)-d.off < 4 {
		return 0, ErrShortMessage
	}
	v := order.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

// Int reads a signed 32-bit argument
func (d *Decoder) Int() (int32, error) {
	v, err := d.Uint()
	return int32(v), err
}

// String reads a string argument; a zero length decodes as the empty string
func (d *Decoder) String() (string, error) {
	n, err := d.Uint()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	end := d.off + int(n)
	if end > len(d.buf) || d.buf[end-1] != 0 {
		return "", ErrShortMessage
	}
	s := string(d.buf[d.off : end-1])
	d.off = end + padding(int(n))
	if d.off > len(d.buf) {
		return "", ErrShortMessage
	}
	return s, nil
}

func padding(n int) int {
	return (4 - n%4) % 4
}
