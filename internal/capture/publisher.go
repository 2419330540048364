package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-zeromq/zmq4"

	types "github.com/sebas/hotline/api/types/v1"
)

// SegmentSink receives finished segments. Publish blocks under downstream
// backpressure; an accepted segment is never dropped.
type SegmentSink interface {
	Publish(meta types.SegmentMeta, pcm []byte) error
	Close() error
}

// PushPublisher sends segments over a ZMQ PUSH socket as a two-frame
// multipart message: meta JSON, then raw PCM.
type PushPublisher struct {
	sock zmq4.Socket
}

// NewPushPublisher connects to the ASR worker's PULL endpoint.
func NewPushPublisher(ctx context.Context, endpoint string) (*PushPublisher, error) {
	sock := zmq4.NewPush(ctx)
	if err := sock.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("failed to connect segment push socket to %s: %w", endpoint, err)
	}

	slog.Info("[Publisher] Segment push socket connected", "endpoint", endpoint)
	return &PushPublisher{sock: sock}, nil
}

// Publish implements SegmentSink.
func (p *PushPublisher) Publish(meta types.SegmentMeta, pcm []byte) error {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal segment meta: %w", err)
	}

	msg := zmq4.NewMsgFrom(metaJSON, pcm)
	if err := p.sock.Send(msg); err != nil {
		return fmt.Errorf("failed to push segment: %w", err)
	}
	return nil
}

// Close implements SegmentSink.
func (p *PushPublisher) Close() error {
	return p.sock.Close()
}
