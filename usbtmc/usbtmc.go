/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, and exposes a device as an io.ReadWriteCloser so
that it can sit in a comm.Pool underneath scpi.SCPI like any TCP or serial
instrument.

This is a 'minimum viable product' for the bulk transfer mode.  It does not
split messages across transfers, and thus assumes commands fit in the
remote's buffer.  Replies longer than one transfer are read with repeated
requests until the device sets end of message.

To send a message:
1.  Write the 12 byte DEV_DEP_MSG_OUT header
2.  Write your data
3.  Pad the total transmission to a multiple of 4 bytes

To receive a message:
1.  Send a 12 byte REQUEST_DEV_DEP_MSG_IN header on the Out endpoint
2.  Read from the In endpoint and strip the DEV_DEP_MSG_IN header

These are implemented as Write and Read on Device.
*/
package usbtmc

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/nasa-jpl/wavelock/comm"
)

const (
	reserved = 0x00

	msgOut   = 0x01 // DEV_DEP_MSG_OUT
	msgInReq = 0x02 // REQUEST_DEV_DEP_MSG_IN
	msgIn    = 0x02 // DEV_DEP_MSG_IN

	headerSize = 12
	alignment  = 4

	// transferSize is the payload requested per bulk in transfer
	transferSize = 4096

	// DefaultTimeout bounds each bulk transfer when Device.Timeout is zero
	DefaultTimeout = 3 * time.Second
)

var (
	// ErrNoDevice is generated when no device matches the vendor and product ID
	ErrNoDevice = errors.New("no USBTMC device with that vendor and product ID")

	// ErrBadHeader is generated when a bulk in header is malformed or its
	// bTag does not match the request
	ErrBadHeader = errors.New("malformed USBTMC bulk in header")
)

// bTagGen is a concurrent-safe bTag generator.  bTags run 1..255 and wrap,
// never taking the value 0.
type bTagGen struct {
	sync.Mutex

	value byte
}

func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	/* data map by offset:
	0 MsgID
	1 bTag, 2 its inverse, 3 reserved
	4-7 transferSize, LSB first, excluding header and alignment
	8 bit 0 EOM, always set; commands are sent in one transfer
	9-11 reserved
	*/
	var out [headerSize]byte
	out[0] = msgOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// If term is nil the device is told to ignore termination characters.
func encBulkInHeader(tag byte, bufsize int, term *byte) [headerSize]byte {
	var out [headerSize]byte
	out[0] = msgInReq
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if term != nil {
		out[8] = 0x02 // TermCharEnabled
		out[9] = *term
	}
	return out
}

// decBulkInHeader validates a DEV_DEP_MSG_IN header (Table 9) against the
// request tag and returns the payload size and end of message flag
func decBulkInHeader(hdr []byte, tag byte) (size int, eom bool, err error) {
	if len(hdr) < headerSize {
		return 0, false, fmt.Errorf("%w: %d bytes", ErrBadHeader, len(hdr))
	}
	if hdr[0] != msgIn || hdr[1] != tag || hdr[2] != invbTag(tag) {
		return 0, false, fmt.Errorf("%w: id %#x tag %d/%d", ErrBadHeader, hdr[0], hdr[1], tag)
	}
	size = int(binary.LittleEndian.Uint32(hdr[4:8]))
	return size, hdr[8]&0x01 == 1, nil
}

// pad extends b with zeros to a multiple of the alignment
func pad(b []byte) []byte {
	if r := len(b) % alignment; r > 0 {
		b = append(b, make([]byte, alignment-r)...)
	}
	return b
}

// Device is an open USBTMC instrument
type Device struct {
	// Timeout bounds each bulk transfer, DefaultTimeout if zero
	Timeout time.Duration

	// Term, when not nil, asks the device to end replies on this byte
	Term *byte

	tags   bTagGen
	usb    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	done   func()
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint

	pending []byte
}

// Open claims the first device with the given vendor and product ID
func Open(vid, pid uint16) (*Device, error) {
	d := &Device{usb: gousb.NewContext()}
	if err := d.open(vid, pid); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) open(vid, pid uint16) error {
	var err error
	d.device, err = d.usb.OpenDeviceWithVIDPID(gousb.ID(vid), gousb.ID(pid))
	if err != nil {
		return err
	}
	if d.device == nil {
		return fmt.Errorf("%w: %04x:%04x", ErrNoDevice, vid, pid)
	}
	if err = d.device.SetAutoDetach(true); err != nil {
		return err
	}
	d.iface, d.done, err = d.device.DefaultInterface()
	if err != nil {
		return err
	}
	for _, ep := range d.iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn && d.in == nil {
			d.in, err = d.iface.InEndpoint(ep.Number)
		} else if ep.Direction == gousb.EndpointDirectionOut && d.out == nil {
			d.out, err = d.iface.OutEndpoint(ep.Number)
		}
		if err != nil {
			return err
		}
	}
	if d.in == nil || d.out == nil {
		return fmt.Errorf("%w: %04x:%04x has no bulk endpoint pair", ErrNoDevice, vid, pid)
	}
	return nil
}

// ConnMaker returns a comm.CreationFunc opening the device
func ConnMaker(vid, pid uint16) comm.CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		return Open(vid, pid)
	}
}

func (d *Device) context() (context.Context, context.CancelFunc) {
	to := d.Timeout
	if to == 0 {
		to = DefaultTimeout
	}
	return context.WithTimeout(context.Background(), to)
}

// Write sends p as one device dependent message
func (d *Device) Write(p []byte) (int, error) {
	hdr := encBulkOutHeader(d.tags.next(), len(p))
	b := make([]byte, 0, headerSize+len(p)+alignment)
	b = append(b, hdr[:]...)
	b = append(b, p...)
	ctx, cancel := d.context()
	defer cancel()
	if _, err := d.out.WriteContext(ctx, pad(b)); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read fills p with the next reply.  Replies spanning several transfers are
// requested until the device flags end of message; bytes that do not fit in
// p are returned by the next Read.
func (d *Device) Read(p []byte) (int, error) {
	if len(d.pending) > 0 {
		n := copy(p, d.pending)
		d.pending = d.pending[n:]
		return n, nil
	}
	var msg []byte
	for {
		chunk, eom, err := d.transfer()
		if err != nil {
			return 0, err
		}
		msg = append(msg, chunk...)
		if eom {
			break
		}
	}
	n := copy(p, msg)
	d.pending = msg[n:]
	return n, nil
}

func (d *Device) transfer() ([]byte, bool, error) {
	tag := d.tags.next()
	hdr := encBulkInHeader(tag, transferSize, d.Term)
	ctx, cancel := d.context()
	defer cancel()
	if _, err := d.out.WriteContext(ctx, hdr[:]); err != nil {
		return nil, false, err
	}
	buf := make([]byte, headerSize+transferSize+alignment)
	n, err := d.in.ReadContext(ctx, buf)
	if err != nil {
		return nil, false, err
	}
	size, eom, err := decBulkInHeader(buf[:n], tag)
	if err != nil {
		return nil, false, err
	}
	if headerSize+size > n {
		return nil, false, fmt.Errorf("%w: announced %d bytes, got %d", ErrBadHeader, size, n-headerSize)
	}
	return buf[headerSize : headerSize+size], eom, nil
}

// Close releases the interface, the device and the USB context
func (d *Device) Close() error {
	if d.done != nil {
		d.done()
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
	}
	if d.usb != nil {
		if cerr := d.usb.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
