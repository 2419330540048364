package asr

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-zeromq/zmq4"

	types "github.com/sebas/hotline/api/types/v1"
	"github.com/sebas/hotline/internal/media"
)

// EventPublisher delivers recognized events downstream. The PUB channel is
// lossy by design; failures are logged but never retried.
type EventPublisher interface {
	PublishEvent(ev types.ASREvent) error
	Close() error
}

// PubPublisher sends events as single-frame JSON on a ZMQ PUB socket.
type PubPublisher struct {
	sock zmq4.Socket
}

// NewPubPublisher connects the PUB socket to the event router's endpoint.
func NewPubPublisher(ctx context.Context, endpoint string) (*PubPublisher, error) {
	sock := zmq4.NewPub(ctx)
	if err := sock.Dial(endpoint); err != nil {
		return nil, fmt.Errorf("failed to connect event publish socket to %s: %w", endpoint, err)
	}

	slog.Info("[ASR] Event publish socket connected", "endpoint", endpoint)
	return &PubPublisher{sock: sock}, nil
}

// PublishEvent implements EventPublisher.
func (p *PubPublisher) PublishEvent(ev types.ASREvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return p.sock.Send(zmq4.NewMsgFrom(data))
}

// Close implements EventPublisher.
func (p *PubPublisher) Close() error {
	return p.sock.Close()
}

// callState tracks per-call progress between segments.
type callState struct {
	Chunks   int
	Bytes    int
	LastText string
}

// Worker consumes segments, recognizes them and publishes transcript
// events.
type Worker struct {
	allow     *AllowList
	engine    Engine
	pub       EventPublisher
	enableAEC bool

	mu    sync.Mutex
	state map[string]*callState
	pre   map[string]*Preprocessor
}

// NewWorker wires a worker over an engine and a publisher.
func NewWorker(allow *AllowList, engine Engine, pub EventPublisher, enableAEC bool) *Worker {
	return &Worker{
		allow:     allow,
		engine:    engine,
		pub:       pub,
		enableAEC: enableAEC,
		state:     make(map[string]*callState),
		pre:       make(map[string]*Preprocessor),
	}
}

// Run binds the PULL socket and consumes multipart segment messages until
// the context ends.
func (w *Worker) Run(ctx context.Context, inputEndpoint string) error {
	pull := zmq4.NewPull(ctx)
	if err := pull.Listen(inputEndpoint); err != nil {
		return fmt.Errorf("failed to bind segment pull socket on %s: %w", inputEndpoint, err)
	}
	defer pull.Close()

	slog.Info("[ASR] Consuming segments", "endpoint", inputEndpoint)

	for {
		msg, err := pull.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("[ASR] Receive failed", "error", err)
			continue
		}
		w.handleMessage(ctx, msg.Frames)
	}
}

// handleMessage processes one multipart message: meta JSON, PCM, and an
// optional far-end reference frame.
func (w *Worker) handleMessage(ctx context.Context, frames [][]byte) {
	if len(frames) < 2 {
		slog.Warn("[ASR] Dropping short multipart message", "frames", len(frames))
		return
	}

	var meta types.SegmentMeta
	if err := json.Unmarshal(frames[0], &meta); err != nil {
		slog.Warn("[ASR] Dropping segment with malformed meta", "error", err)
		return
	}

	pcm := frames[1]
	var farEnd []byte
	if len(frames) > 2 {
		farEnd = frames[2]
	}

	w.HandleSegment(ctx, meta, pcm, farEnd)
}

// HandleSegment recognizes one segment and publishes its events.
func (w *Worker) HandleSegment(ctx context.Context, meta types.SegmentMeta, pcm, farEnd []byte) {
	if !w.allow.Allowed(meta.PeerIP) {
		return
	}

	key := meta.Key().String()
	st := w.touchState(key, len(pcm))

	if len(pcm) > 0 {
		if text, vadStartMS, ok := w.recognize(ctx, key, pcm, farEnd); ok && text != "" {
			st.LastText = text
			ev := types.ASREvent{
				Type:         types.EventASRUpdate,
				Text:         text,
				PeerIP:       meta.PeerIP,
				Source:       meta.Source,
				UniqueKey:    meta.UniqueKey,
				SSRC:         meta.SSRC,
				VoiceStartTS: meta.StartTS + float64(vadStartMS)/1000.0,
				ChunkStartTS: meta.StartTS,
				OffsetMS:     float64(vadStartMS),
			}
			w.publish(ev)
		}
	}

	if meta.IsFinished {
		w.finishCall(meta)
	}
}

// recognize runs preprocessing, resampling and the engine for one chunk.
func (w *Worker) recognize(ctx context.Context, key string, pcm, farEnd []byte) (string, int, bool) {
	processed := w.preprocessor(key).Process(pcm, farEnd)
	if len(processed) == 0 {
		return "", 0, false
	}

	samples := media.PCM16ToFloat32(media.Upsample8kTo16k(processed))
	res, err := w.engine.Recognize(ctx, samples)
	if err != nil {
		// One failed chunk does not stop the call.
		slog.Error("[ASR] Recognition failed", "call", key, "error", err)
		return "", 0, false
	}
	return res.Text, res.VADStartMS, true
}

// finishCall emits the trailing call_finished event and resets per-call
// state.
func (w *Worker) finishCall(meta types.SegmentMeta) {
	key := meta.Key().String()

	w.mu.Lock()
	st := w.state[key]
	delete(w.state, key)
	if pre, ok := w.pre[key]; ok {
		pre.Reset()
		delete(w.pre, key)
	}
	w.mu.Unlock()

	if st != nil {
		slog.Info("[ASR] Call finished",
			"call", key,
			"chunks", st.Chunks,
			"bytes", st.Bytes,
		)
	}

	w.publish(types.ASREvent{
		Type:         types.EventCallFinished,
		PeerIP:       meta.PeerIP,
		Source:       meta.Source,
		UniqueKey:    meta.UniqueKey,
		SSRC:         meta.SSRC,
		IsFinished:   true,
		VoiceStartTS: meta.EndTS,
		ChunkStartTS: meta.StartTS,
	})
}

func (w *Worker) publish(ev types.ASREvent) {
	if err := w.pub.PublishEvent(ev); err != nil {
		slog.Error("[ASR] Failed to publish event", "type", ev.Type, "call", ev.Key().String(), "error", err)
	}
}

func (w *Worker) touchState(key string, bytes int) *callState {
	w.mu.Lock()
	defer w.mu.Unlock()

	st, ok := w.state[key]
	if !ok {
		st = &callState{}
		w.state[key] = st
	}
	st.Chunks++
	st.Bytes += bytes
	return st
}

func (w *Worker) preprocessor(key string) *Preprocessor {
	w.mu.Lock()
	defer w.mu.Unlock()

	pre, ok := w.pre[key]
	if !ok {
		pre = NewPreprocessor(8000, w.enableAEC)
		w.pre[key] = pre
	}
	return pre
}
