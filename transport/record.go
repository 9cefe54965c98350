/*
Package transport publishes localized tags to the processes consuming them.
Each frame with at least one tag becomes a FrameResult, encoded with msgpack
and sent either over a unix socket, framed with a 4 byte big endian length
prefix, or to an MQTT topic.
*/
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/roboteseo/rodvision/tags"
	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds the payload accepted by ReadFrame
const MaxFrameSize = 1 << 20

// ErrFrameTooLarge is returned by ReadFrame for payloads above MaxFrameSize
var ErrFrameTooLarge = errors.New("frame too large")

// Detection is one tag as sent to consumers.  X and Y are field millimetres
// when the frame was calibrated, otherwise image pixels.  Angle is in
// radians.
type Detection struct {
	ID    int     `msgpack:"id"`
	X     float64 `msgpack:"x"`
	Y     float64 `msgpack:"y"`
	Angle float64 `msgpack:"angle"`
}

// FrameResult groups the detections of one captured frame
type FrameResult struct {
	Sequence   uint64      `msgpack:"seq"`
	Timestamp  time.Time   `msgpack:"ts"`
	SessionID  string      `msgpack:"session"`
	Calibrated bool        `msgpack:"calibrated"`
	Detections []Detection `msgpack:"detections"`
}

// NewFrameResult builds the result for records in record order
func NewFrameResult(seq uint64, ts time.Time, session string, calibrated bool, records []tags.TagRecord) FrameResult {

	dets := make([]Detection, len(records))

	for i, r := range records {
		dets[i] = Detection{ID: r.ID, X: r.X, Y: r.Y, Angle: r.Angle}
	}

	return FrameResult{
		Sequence:   seq,
		Timestamp:  ts,
		SessionID:  session,
		Calibrated: calibrated,
		Detections: dets,
	}
}

// Publisher sends frame results to consumers
type Publisher interface {
	Publish(ctx context.Context, res FrameResult) error
	Close() error
}

// Encode marshals a result to msgpack
func Encode(res FrameResult) ([]byte, error) {

	b, err := msgpack.Marshal(&res)

	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame result: %w", err)
	}

	return b, nil
}

// Decode unmarshals a msgpack result
func Decode(b []byte) (FrameResult, error) {

	var res FrameResult

	if err := msgpack.Unmarshal(b, &res); err != nil {
		return res, fmt.Errorf("failed to unmarshal frame result: %w", err)
	}

	return res, nil
}

// WriteFrame writes payload with its length prefix
func WriteFrame(w io.Writer, payload []byte) error {

	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads one length prefixed payload
func ReadFrame(r io.Reader) ([]byte, error) {

	var prefix [4]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(prefix[:])

	if n > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	payload := make([]byte, n)

	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("failed to read frame payload: %w", err)
	}

	return payload, nil
}

// Multi publishes to every publisher, returning the joined errors
type Multi []Publisher

// Publish sends res to each publisher
func (m Multi) Publish(ctx context.Context, res FrameResult) error {

	var errs []error

	for _, p := range m {
		if err := p.Publish(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Close closes each publisher
func (m Multi) Close() error {

	var errs []error

	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
