package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/cache"
	"github.com/code-100-precent/LingVoice/pkg/events"
	"github.com/code-100-precent/LingVoice/pkg/llm"
	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/recognizer"
	"github.com/code-100-precent/LingVoice/pkg/resilience"
	"github.com/code-100-precent/LingVoice/pkg/synthesizer"
	"github.com/code-100-precent/LingVoice/pkg/voice/audio"
	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/code-100-precent/LingVoice/pkg/voice/protocol"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type passthrough struct {
	err error
}

func (p passthrough) Normalize(_ context.Context, raw []byte) ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	return raw, nil
}

type fakeSTT struct {
	text    string
	lang    string
	err     error
	block   chan struct{}
	started chan struct{} // signalled once the call is in flight
	deaf    bool          // ignores its context while blocked
	calls   atomic.Int32
}

func (f *fakeSTT) Transcribe(ctx context.Context, wav []byte) (recognizer.Transcript, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil && f.deaf {
		<-f.block
	} else if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return recognizer.Transcript{}, ctx.Err()
		}
	}
	if f.err != nil {
		return recognizer.Transcript{}, f.err
	}
	return recognizer.Transcript{Text: f.text, Language: f.lang}, nil
}

func (f *fakeSTT) Vendor() string { return "fake" }

type fakeTTS struct {
	err  error
	text string
}

func (f *fakeTTS) Synthesize(_ context.Context, text string) ([]byte, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return []byte("RIFF-speech"), nil
}

func (f *fakeTTS) Provider() synthesizer.TTSProvider { return synthesizer.ProviderLocal }

type fakeEngine struct {
	reply string
	err   error
	req   llm.Request
}

func (f *fakeEngine) ProcessMessage(_ context.Context, req llm.Request) (*llm.Result, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Response: f.reply, Reasoning: map[string]any{"model": "fake"}}, nil
}

type storedMessage struct {
	conversationID string
	role           string
	text           string
	at             time.Time
	metadata       map[string]any
}

type fakeStore struct {
	mu        sync.Mutex
	created   int
	touched   int
	owners    map[string]string
	titles    map[string]string
	messages  []storedMessage
	addErr    error
	createErr error
}

func (f *fakeStore) CreateConversation(_ context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	id := fmt.Sprintf("conv-%d", f.created)
	if f.owners == nil {
		f.owners = map[string]string{}
	}
	f.owners[id] = userID
	return id, nil
}

func (f *fakeStore) UpdateTimestamp(_ context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if owner, ok := f.owners[id]; !ok || owner != userID {
		return constants.ErrConversationNotFound
	}
	f.touched++
	return nil
}

func (f *fakeStore) UpdateTitle(_ context.Context, id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.titles == nil {
		f.titles = map[string]string{}
	}
	f.titles[id] = title
	return nil
}

func (f *fakeStore) GenerateTitle(text string) string { return "Voice: " + text }

func (f *fakeStore) AddMessage(_ context.Context, conversationID, userID, role, text string, ts time.Time, metadata map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return "", f.addErr
	}
	f.messages = append(f.messages, storedMessage{conversationID, role, text, ts, metadata})
	return fmt.Sprintf("msg-%d", len(f.messages)), nil
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []protocol.ServerMessage
}

func (r *recordingSender) Send(msg protocol.ServerMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) Close() error { return nil }

// trace renders messages as "kind:detail" for order assertions.
func (r *recordingSender) trace() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		switch v := m.(type) {
		case protocol.StatusMessage:
			msg := ""
			if v.Message != nil {
				msg = *v.Message
			}
			out = append(out, "status:"+v.State+":"+msg)
		case protocol.TranscriptMessage:
			out = append(out, "transcript:"+v.Text+":"+v.Language)
		case protocol.ResponseMessage:
			out = append(out, "response:"+v.Text)
		case protocol.AudioMessage:
			out = append(out, "audio")
		case protocol.ConversationUpdateMessage:
			out = append(out, "conversation:"+v.ConversationID)
		case protocol.ErrorMessage:
			code := ""
			if v.Code != nil {
				code = *v.Code
			}
			out = append(out, "error:"+v.Message+":"+code)
		}
	}
	return out
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(e events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}

type harness struct {
	stt     *fakeSTT
	tts     *fakeTTS
	engine  *fakeEngine
	store   *fakeStore
	cache   cache.Cache
	bus     *recordingBus
	metrics *metrics.Metrics
	sender  *recordingSender
	session *protocol.Session
	orch    *Orchestrator
}

func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	h := &harness{
		stt:     &fakeSTT{text: "hello there", lang: "english"},
		tts:     &fakeTTS{},
		engine:  &fakeEngine{reply: "**Hi!** How can I help?"},
		store:   &fakeStore{},
		cache:   cache.NewLocalCache(cache.LocalConfig{}),
		bus:     &recordingBus{},
		metrics: metrics.NewMetrics("test"),
		sender:  &recordingSender{},
	}
	opt := Options{
		Models:     &Models{STT: h.stt, TTS: h.tts},
		Engine:     h.engine,
		Store:      h.store,
		Normalizer: passthrough{},
		Cache:      h.cache,
		Metrics:    h.metrics,
		Events:     h.bus,
	}
	if mutate != nil {
		mutate(&opt)
	}
	h.orch = NewOrchestrator(opt)
	t.Cleanup(h.orch.pool.Close)

	vad := sessions.NewVADBuffer(sessions.DefaultVADConfig(), opt.Normalizer, nil)
	h.session = protocol.NewSession(context.Background(), &protocol.SessionOption{
		Sender:   h.sender,
		ID:       "u1_1700000000",
		UserID:   "u1",
		VAD:      vad,
		Pipeline: h.orch,
	})
	t.Cleanup(func() { h.session.Close(constants.CloseNormal, "") })
	return h
}

func recording(n int) []byte {
	return bytes.Repeat([]byte{0x01}, n)
}

func TestRun_FullTurn(t *testing.T) {
	h := newHarness(t, nil)

	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"status:processing:" + constants.StatusTranscribing,
		"transcript:hello there:english",
		"status:processing:" + constants.StatusGenerating,
		"conversation:conv-1",
		"response:**Hi!** How can I help?",
		"status:speaking:" + constants.StatusSynthesizing,
		"audio",
		"status:idle:" + constants.StatusReadyForNext,
	}, h.sender.trace())

	assert.Equal(t, "Hi! How can I help?", h.tts.text)
	assert.Equal(t, llm.Request{Text: "hello there", UserID: "u1", MemoryLimit: 2, VoiceMode: true}, h.engine.req)
	assert.Equal(t, "conv-1", h.session.ConversationID())
	assert.Equal(t, "Voice: hello there", h.store.titles["conv-1"])

	require.Len(t, h.store.messages, 2)
	user, assistant := h.store.messages[0], h.store.messages[1]
	assert.Equal(t, RoleUser, user.role)
	assert.Equal(t, map[string]any{"mode": "voice"}, user.metadata)
	assert.Equal(t, RoleAssistant, assistant.role)
	assert.Equal(t, time.Millisecond, assistant.at.Sub(user.at))
	assert.Equal(t, map[string]any{"model": "fake"}, assistant.metadata["reasoning"])

	cached, ok := h.cache.Get(context.Background(), cache.LastReplyKey("u1"))
	require.True(t, ok)
	assert.Equal(t, audio.EncodeBase64([]byte("RIFF-speech")), cached)

	require.Len(t, h.bus.events, 1)
	assert.Equal(t, events.VoiceTurnCompleted, h.bus.events[0].Type)
	assert.Equal(t, metrics.OutcomeCompleted, h.bus.events[0].Data["outcome"])
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeCompleted)))

	snap := h.session.Stats().Snapshot(time.Now())
	assert.Equal(t, int64(1), snap.Transcriptions)
	assert.Equal(t, int64(1), snap.Syntheses)
	assert.Equal(t, 1, snap.Turns)
}

func TestRun_SecondTurnReusesConversation(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))

	assert.Equal(t, 1, h.store.created)
	assert.Equal(t, 1, h.store.touched)
	assert.Len(t, h.store.messages, 4)
}

func TestRun_ForeignConversationStartsNewOne(t *testing.T) {
	h := newHarness(t, nil)
	h.store.owners = map[string]string{"conv-bob": "bob"}
	h.session.SetConversationID("conv-bob")

	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))

	assert.Equal(t, "conv-1", h.session.ConversationID())
	assert.Contains(t, h.sender.trace(), "conversation:conv-1")
	assert.NotContains(t, h.sender.trace(), "error:"+constants.ErrorPersistFailed+":"+constants.CodePersistFailed)
	require.Len(t, h.store.messages, 2)
	for _, m := range h.store.messages {
		assert.Equal(t, "conv-1", m.conversationID)
	}
}

func TestRun_UnknownConversationStartsNewOne(t *testing.T) {
	h := newHarness(t, nil)
	h.session.SetConversationID("does-not-exist")

	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))

	assert.Equal(t, "conv-1", h.session.ConversationID())
	assert.Equal(t, 1, h.store.created)
	assert.Equal(t, 1, h.store.touched)
	assert.Len(t, h.store.messages, 4)
}

func TestRun_OwnConversationContinues(t *testing.T) {
	h := newHarness(t, nil)
	h.store.owners = map[string]string{"conv-mine": "u1"}
	h.session.SetConversationID("conv-mine")

	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))

	assert.Zero(t, h.store.created)
	assert.Equal(t, 1, h.store.touched)
	assert.NotContains(t, h.sender.trace(), "conversation:conv-1")
	require.Len(t, h.store.messages, 2)
	assert.Equal(t, "conv-mine", h.store.messages[0].conversationID)
}

func TestSubmit_TurnSurvivesDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.block = make(chan struct{})
	h.stt.started = make(chan struct{}, 1)

	require.NoError(t, h.orch.SubmitRecording(h.session.Context(), h.session, recording(4000)))
	<-h.stt.started

	// client goes away while STT is still working
	h.session.Close(constants.CloseNormal, "")
	require.Error(t, h.session.Context().Err())

	close(h.stt.block)
	h.orch.Wait()

	assert.Equal(t, "hello there", h.engine.req.Text)
	require.Len(t, h.store.messages, 2)
	assert.Equal(t, RoleUser, h.store.messages[0].role)
	assert.Equal(t, "hello there", h.store.messages[0].text)
	assert.Equal(t, "Hi! How can I help?", h.tts.text)
}

func TestTranscribe_TimeoutReturnsZeroTranscript(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Pool = NewWorkerPool(1, 20*time.Millisecond, nil) })
	h.stt.block = make(chan struct{})
	h.stt.deaf = true

	tr, err := h.orch.transcribe(context.Background(), recording(4000))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, recognizer.Transcript{}, tr)

	// the abandoned job finishes later and must not touch the caller's result
	close(h.stt.block)
}

func TestSubmit_BackToBackTriggersRunOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.block = make(chan struct{})

	require.NoError(t, h.orch.SubmitRecording(context.Background(), h.session, recording(4000)))
	err := h.orch.SubmitRecording(context.Background(), h.session, recording(4000))
	assert.ErrorIs(t, err, constants.ErrPipelineBusy)
	assert.True(t, h.session.Busy())

	close(h.stt.block)
	h.orch.Wait()

	assert.Equal(t, int32(1), h.stt.calls.Load())
	assert.False(t, h.session.Busy())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DroppedTriggers))
}

func TestSubmitBuffer_DetachesBuffer(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.block = make(chan struct{})
	h.session.VAD().AddChunk(recording(500))

	require.NoError(t, h.orch.SubmitBuffer(context.Background(), h.session))
	assert.True(t, h.session.VAD().IsEmpty())

	// audio arriving mid-run starts a fresh buffer
	h.session.VAD().AddChunk(recording(300))
	close(h.stt.block)
	h.orch.Wait()
	assert.Equal(t, 1, h.session.VAD().ChunkCount())
}

func TestRun_EmptyBufferIsTooShort(t *testing.T) {
	h := newHarness(t, nil)
	err := h.orch.Run(context.Background(), h.session, FromBuffer(h.session.VAD()))
	assert.ErrorIs(t, err, constants.ErrAudioTooShort)
	assert.Equal(t, []string{
		"status:processing:" + constants.StatusTranscribing,
		"status:idle:" + constants.StatusTooShort,
	}, h.sender.trace())
	assert.Zero(t, h.stt.calls.Load())
}

func TestRun_ShortRecording(t *testing.T) {
	h := newHarness(t, nil)
	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(1599)))
	assert.ErrorIs(t, err, constants.ErrAudioTooShort)
	assert.Equal(t, "status:idle:"+constants.StatusTooShort, h.sender.trace()[1])
	assert.Zero(t, h.stt.calls.Load())
}

func TestRun_DecodeFailure(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Normalizer = passthrough{err: constants.Wrap(constants.ErrAudioDecode, errors.New("ffmpeg"))}
	})
	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrAudioDecode)
	assert.Equal(t, []string{
		"status:processing:" + constants.StatusTranscribing,
		"status:idle:" + constants.StatusNotDecodable,
	}, h.sender.trace())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.TurnsTotal.WithLabelValues(metrics.OutcomeDecode)))
}

func TestRun_NoSpeech(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.text = "   "
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))
	assert.Equal(t, []string{
		"status:processing:" + constants.StatusTranscribing,
		"status:idle:" + constants.StatusNoSpeech,
	}, h.sender.trace())
	assert.Empty(t, h.store.messages)
}

func TestRun_DefaultLanguage(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.lang = ""
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))
	assert.Contains(t, h.sender.trace(), "transcript:hello there:en")
}

func TestRun_ModelNotReady(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Models = &Models{} })
	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrModelUnavailable)
	assert.Equal(t, []string{
		"status:processing:" + constants.StatusTranscribing,
		"error:" + constants.ErrorSTTUnavailable + ":" + constants.CodeModelUnavailable,
		"status:idle:" + constants.StatusReady,
	}, h.sender.trace())
}

func TestRun_TextOnlyWithoutTTS(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Models = &Models{STT: o.Models.STT} })
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))

	trace := h.sender.trace()
	assert.NotContains(t, trace, "audio")
	assert.Equal(t, "response:**Hi!** How can I help?", trace[len(trace)-2])
	assert.Equal(t, "status:idle:"+constants.StatusReadyForNext, trace[len(trace)-1])
	_, cached := h.cache.Get(context.Background(), cache.LastReplyKey("u1"))
	assert.False(t, cached)
}

func TestRun_UnspeakableReplySkipsTTS(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.reply = "```\ncode only\n```"
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))
	assert.NotContains(t, h.sender.trace(), "audio")
	assert.Empty(t, h.tts.text)
}

func TestRun_TranscriptionError(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.err = errors.New("vendor down")
	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrTranscription)
	assert.Contains(t, h.sender.trace(),
		"error:"+constants.ErrorTranscribeFailed+":"+constants.CodeTranscriptionFailed)
	assert.Equal(t, resilience.StateClosed, h.orch.sttBreaker.State())
}

func TestRun_OpenBreakerReportsModelUnavailable(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Breaker = resilience.Config{MaxFailures: 1, ResetTimeout: time.Hour}
	})
	h.stt.err = errors.New("vendor down")
	_ = h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))

	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrModelUnavailable)
	assert.Equal(t, int32(1), h.stt.calls.Load())
	assert.Contains(t, h.sender.trace(),
		"error:"+constants.ErrorSTTUnavailable+":"+constants.CodeModelUnavailable)
}

func TestRun_TranscriptionTimeout(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Pool = NewWorkerPool(1, 20*time.Millisecond, nil) })
	h.stt.block = make(chan struct{})
	defer close(h.stt.block)

	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrTranscription)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "status:idle:"+constants.StatusReady, h.sender.trace()[len(h.sender.trace())-1])
}

func TestRun_ReasoningFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.err = errors.New("llm 500")
	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrReasoning)
	trace := h.sender.trace()
	assert.Equal(t, "error:"+constants.ErrorNoResponse+":"+constants.CodeReasoningFailed, trace[len(trace)-2])
	assert.Equal(t, "status:idle:"+constants.StatusReady, trace[len(trace)-1])
	assert.Empty(t, h.store.messages)
}

func TestRun_EmptyReplyIsReasoningFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.engine.reply = "  "
	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrReasoning)
}

func TestRun_PersistFailureContinues(t *testing.T) {
	h := newHarness(t, nil)
	h.store.addErr = errors.New("db locked")
	require.NoError(t, h.orch.Run(context.Background(), h.session, FromRecording(recording(4000))))

	trace := h.sender.trace()
	assert.Contains(t, trace, "error:"+constants.ErrorPersistFailed+":"+constants.CodePersistFailed)
	assert.Contains(t, trace, "audio")
	assert.Equal(t, "status:idle:"+constants.StatusReadyForNext, trace[len(trace)-1])
}

func TestRun_SynthesisFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.tts.err = errors.New("espeak missing")
	err := h.orch.Run(context.Background(), h.session, FromRecording(recording(4000)))
	assert.ErrorIs(t, err, constants.ErrSynthesis)
	trace := h.sender.trace()
	assert.Equal(t, "error:"+constants.ErrorSynthesisFailed+":"+constants.CodeSynthesisFailed, trace[len(trace)-2])
	assert.Equal(t, "status:idle:"+constants.StatusReady, trace[len(trace)-1])
}

func TestWorkerPool_BoundsConcurrency(t *testing.T) {
	pool := NewWorkerPool(2, time.Second, nil)
	defer pool.Close()

	var running, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Do(context.Background(), func(context.Context) error {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWorkerPool_PanicAndClose(t *testing.T) {
	pool := NewWorkerPool(1, time.Second, nil)
	err := pool.Do(context.Background(), func(context.Context) error { panic("boom") })
	assert.ErrorContains(t, err, "boom")

	// the worker survives a panic
	assert.NoError(t, pool.Do(context.Background(), func(context.Context) error { return nil }))

	pool.Close()
	assert.ErrorIs(t, pool.Do(context.Background(), func(context.Context) error { return nil }), ErrPoolClosed)
}

func TestModels_Info(t *testing.T) {
	info := (&Models{STT: &fakeSTT{}}).Info()
	assert.Equal(t, ModelInfo{STTVendor: "fake", TTSVendor: "none", STTLoaded: true}, info)
	assert.False(t, (*Models)(nil).Ready())
}
