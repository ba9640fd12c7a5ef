package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame. Snapshots are bounded by the
// number of tasks in one project, so anything near this limit indicates
// a corrupt or hostile peer.
const MaxFrameSize = 4 << 20

// envelope is the wire form of every message: a kind tag plus the
// kind-specific payload.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WriteClient writes one client->daemon message as a frame.
func WriteClient(w io.Writer, msg ClientMessage) error {
	return writeFrame(w, msg.clientKind(), msg)
}

// WriteServer writes one daemon->client message as a frame.
func WriteServer(w io.Writer, msg ServerMessage) error {
	return writeFrame(w, msg.serverKind(), msg)
}

func writeFrame(w io.Writer, kind string, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	body, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(body))
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readEnvelope reads one raw frame. Errors here are framing corruption;
// callers should close the connection.
func readEnvelope(r io.Reader) (envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return envelope{}, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return envelope{}, fmt.Errorf("frame length %d exceeds limit", n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return envelope{}, fmt.Errorf("read frame body: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	return env, nil
}

// ErrUnknownKind reports a syntactically valid frame whose kind is not
// part of the closed message set. The connection is still usable; the
// daemon replies with a typed error.
type ErrUnknownKind struct {
	Kind string
}

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown message kind %q", e.Kind)
}

func decodePayload[T any](env envelope) (T, error) {
	var msg T
	if len(env.Data) == 0 {
		return msg, nil
	}
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		return msg, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return msg, nil
}

// ReadClient reads one client->daemon message. An *ErrUnknownKind return
// means the frame itself was sound and the connection may keep going.
func ReadClient(r io.Reader) (ClientMessage, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case KindStartSession:
		return decodeClient[StartSession](env)
	case KindStopSession:
		return decodeClient[StopSession](env)
	case KindStopTask:
		return decodeClient[StopTask](env)
	case KindGetSnapshot:
		return decodeClient[GetSnapshot](env)
	case KindSubscribe:
		return decodeClient[Subscribe](env)
	case KindNotifyChanged:
		return decodeClient[NotifyChanged](env)
	case KindPing:
		return decodeClient[Ping](env)
	case KindGetVersion:
		return decodeClient[GetVersion](env)
	case KindShutdown:
		return decodeClient[Shutdown](env)
	case KindTuiRegister:
		return decodeClient[TuiRegister](env)
	case KindTuiUnregister:
		return decodeClient[TuiUnregister](env)
	case KindTuiFocus:
		return decodeClient[TuiFocusChange](env)
	case KindTuiFollow:
		return decodeClient[TuiFollow](env)
	case KindTuiList:
		return decodeClient[TuiList](env)
	default:
		return nil, &ErrUnknownKind{Kind: env.Type}
	}
}

func decodeClient[T ClientMessage](env envelope) (ClientMessage, error) {
	msg, err := decodePayload[T](env)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ReadServer reads one daemon->client message.
func ReadServer(r io.Reader) (ServerMessage, error) {
	env, err := readEnvelope(r)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case KindSnapshot:
		return decodeServer[SnapshotPush](env)
	case KindTuiRegistered:
		return decodeServer[TuiRegistered](env)
	case KindTuiFollowSucceeded:
		return decodeServer[TuiFollowSucceeded](env)
	case KindTuiFollowFailed:
		return decodeServer[TuiFollowFailed](env)
	case KindTuiFocusChanged:
		return decodeServer[TuiFocusChanged](env)
	case KindTuiFollowStopped:
		return decodeServer[TuiFollowStopped](env)
	case KindTuiListReply:
		return decodeServer[TuiListReply](env)
	case KindAck:
		return decodeServer[Ack](env)
	case KindError:
		return decodeServer[Error](env)
	case KindPong:
		return decodeServer[Pong](env)
	case KindVersion:
		return decodeServer[Version](env)
	case KindGoodbye:
		return decodeServer[Goodbye](env)
	default:
		return nil, &ErrUnknownKind{Kind: env.Type}
	}
}

func decodeServer[T ServerMessage](env envelope) (ServerMessage, error) {
	msg, err := decodePayload[T](env)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
