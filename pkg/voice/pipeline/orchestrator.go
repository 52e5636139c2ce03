package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/code-100-precent/LingVoice/pkg/cache"
	"github.com/code-100-precent/LingVoice/pkg/events"
	"github.com/code-100-precent/LingVoice/pkg/llm"
	"github.com/code-100-precent/LingVoice/pkg/metrics"
	"github.com/code-100-precent/LingVoice/pkg/recognizer"
	"github.com/code-100-precent/LingVoice/pkg/resilience"
	"github.com/code-100-precent/LingVoice/pkg/voice/audio"
	"github.com/code-100-precent/LingVoice/pkg/voice/constants"
	"github.com/code-100-precent/LingVoice/pkg/voice/protocol"
	"github.com/code-100-precent/LingVoice/pkg/voice/sessions"
	"github.com/code-100-precent/LingVoice/pkg/voice/stream"
	"go.uber.org/zap"
)

// Collaborator names used for breakers and metrics
const (
	CollaboratorSTT       = "stt"
	CollaboratorReasoning = "reasoning"
	CollaboratorTTS       = "tts"
	CollaboratorStore     = "store"
)

type Config struct {
	MemoryLimit         int
	MaxSpokenWords      int
	MinRecordingSeconds float64
	BytesPerSecond      int
	LastReplyTTL        time.Duration
}

func DefaultConfig() Config {
	return Config{
		MemoryLimit:         2,
		MaxSpokenWords:      stream.DefaultMaxSpokenWords,
		MinRecordingSeconds: 0.5,
		BytesPerSecond:      3200,
		LastReplyTTL:        10 * time.Minute,
	}
}

// Options wires the orchestrator. Cache, Metrics, Events and Store may be nil.
type Options struct {
	Models     *Models
	Engine     llm.ReasoningEngine
	Store      ConversationStore
	Pool       *WorkerPool
	Normalizer sessions.Normalizer
	Cache      cache.Cache
	Metrics    *metrics.Metrics
	Events     events.Publisher
	Breaker    resilience.Config // template, Name is set per collaborator
	Logger     *zap.Logger
	Config     Config
}

// Orchestrator runs STT, reasoning and TTS for one utterance at a time per
// session. It implements protocol.Pipeline.
type Orchestrator struct {
	models     *Models
	engine     llm.ReasoningEngine
	store      ConversationStore
	pool       *WorkerPool
	normalizer sessions.Normalizer
	cache      cache.Cache
	metrics    *metrics.Metrics
	events     events.Publisher
	logger     *zap.Logger
	config     Config

	sttBreaker *resilience.CircuitBreaker
	llmBreaker *resilience.CircuitBreaker
	ttsBreaker *resilience.CircuitBreaker

	inflight sync.WaitGroup
}

var _ protocol.Pipeline = (*Orchestrator)(nil)

func NewOrchestrator(opt Options) *Orchestrator {
	if opt.Logger == nil {
		opt.Logger = zap.L()
	}
	if opt.Pool == nil {
		opt.Pool = NewWorkerPool(DefaultPoolSize, DefaultJobTimeout, opt.Logger)
	}
	def := DefaultConfig()
	cfg := opt.Config
	if cfg.MemoryLimit <= 0 {
		cfg.MemoryLimit = def.MemoryLimit
	}
	if cfg.MaxSpokenWords <= 0 {
		cfg.MaxSpokenWords = def.MaxSpokenWords
	}
	if cfg.MinRecordingSeconds <= 0 {
		cfg.MinRecordingSeconds = def.MinRecordingSeconds
	}
	if cfg.BytesPerSecond <= 0 {
		cfg.BytesPerSecond = def.BytesPerSecond
	}
	if cfg.LastReplyTTL <= 0 {
		cfg.LastReplyTTL = def.LastReplyTTL
	}
	breaker := func(name string) *resilience.CircuitBreaker {
		c := opt.Breaker
		c.Name = name
		if c.Logger == nil {
			c.Logger = opt.Logger
		}
		return resilience.NewCircuitBreaker(c)
	}
	return &Orchestrator{
		models:     opt.Models,
		engine:     opt.Engine,
		store:      opt.Store,
		pool:       opt.Pool,
		normalizer: opt.Normalizer,
		cache:      opt.Cache,
		metrics:    opt.Metrics,
		events:     opt.Events,
		logger:     opt.Logger,
		config:     cfg,
		sttBreaker: breaker(CollaboratorSTT),
		llmBreaker: breaker(CollaboratorReasoning),
		ttsBreaker: breaker(CollaboratorTTS),
	}
}

func (o *Orchestrator) Models() *Models { return o.models }

func (o *Orchestrator) env() sourceEnv {
	return sourceEnv{
		normalizer:        o.normalizer,
		minRecordingBytes: int(o.config.MinRecordingSeconds * float64(o.config.BytesPerSecond)),
	}
}

func (o *Orchestrator) SubmitBuffer(ctx context.Context, s *protocol.Session) error {
	return o.Submit(ctx, s, FromBuffer(s.VAD()))
}

func (o *Orchestrator) SubmitRecording(ctx context.Context, s *protocol.Session, data []byte) error {
	return o.Submit(ctx, s, FromRecording(data))
}

// Submit takes the session guard and the utterance synchronously, then
// runs the turn in the background. A busy session drops the trigger.
// The turn outlives a disconnect, only the pool timeout bounds STT/TTS.
func (o *Orchestrator) Submit(ctx context.Context, s *protocol.Session, src UtteranceSource) error {
	ctx = context.WithoutCancel(ctx)
	if !s.TryAcquire() {
		if o.metrics != nil {
			o.metrics.RecordDropped()
		}
		return constants.ErrPipelineBusy
	}
	decode, takeErr := src.take(o.env())
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		defer s.Release()
		if err := o.run(ctx, s, decode, takeErr); err != nil {
			s.Logger().Info("[Pipeline] --- turn ended with error", zap.Error(err))
		}
	}()
	return nil
}

// Run is the synchronous form of Submit.
func (o *Orchestrator) Run(ctx context.Context, s *protocol.Session, src UtteranceSource) error {
	ctx = context.WithoutCancel(ctx)
	if !s.TryAcquire() {
		if o.metrics != nil {
			o.metrics.RecordDropped()
		}
		return constants.ErrPipelineBusy
	}
	defer s.Release()
	decode, takeErr := src.take(o.env())
	return o.run(ctx, s, decode, takeErr)
}

// Wait blocks until every background turn has finished.
func (o *Orchestrator) Wait() { o.inflight.Wait() }

// Turn is what one run produced, for logging and the completion event.
type Turn struct {
	Transcript string
	Language   string
	Reply      string
	Spoken     string
	Audio      []byte
	Outcome    string
	Phases     map[string]time.Duration
}

func (t *Turn) observe(phase string, start time.Time) {
	t.Phases[phase] = time.Since(start)
}

func (o *Orchestrator) run(ctx context.Context, s *protocol.Session, decode decodeFunc, takeErr error) error {
	started := time.Now()
	turn := &Turn{Phases: make(map[string]time.Duration)}
	logger := s.Logger()
	defer func() { o.finish(s, turn, started) }()

	if err := s.Transition(sessions.StateProcessing, constants.StatusTranscribing); err != nil {
		logger.Warn("[Pipeline] --- cannot enter processing", zap.Error(err))
	}

	// 1. 提取并解码音频
	if takeErr != nil {
		return o.audioFailed(s, turn, takeErr)
	}
	phase := time.Now()
	wav, err := decode(ctx)
	turn.observe(metrics.PhaseDecode, phase)
	if err != nil {
		return o.audioFailed(s, turn, err)
	}

	// 2. 语音识别
	if !o.models.Ready() {
		turn.Outcome = metrics.OutcomeFailed
		_ = s.SendError(constants.ErrorSTTUnavailable, constants.CodeModelUnavailable)
		s.Reset(constants.StatusReady)
		return constants.ErrModelUnavailable
	}
	phase = time.Now()
	transcript, err := o.transcribe(ctx, wav)
	turn.observe(metrics.PhaseSTT, phase)
	if err != nil {
		turn.Outcome = metrics.OutcomeFailed
		o.collaboratorFailed(CollaboratorSTT)
		message := constants.ErrorTranscribeFailed
		if errors.Is(err, constants.ErrModelUnavailable) {
			message = constants.ErrorSTTUnavailable
		}
		_ = s.SendError(message, constants.CodeOf(err))
		s.Reset(constants.StatusReady)
		return err
	}
	s.Stats().Transcribed()

	text := strings.TrimSpace(transcript.Text)
	if text == "" {
		turn.Outcome = metrics.OutcomeNoSpeech
		s.Reset(constants.StatusNoSpeech)
		return nil
	}
	turn.Transcript = text
	turn.Language = transcript.Language
	if turn.Language == "" {
		turn.Language = constants.DefaultLanguage
	}
	_ = s.SendTranscript(turn.Transcript, turn.Language)

	// 3. 生成回复
	if err := s.Transition(sessions.StateProcessing, constants.StatusGenerating); err != nil {
		logger.Debug("[Pipeline] --- status update skipped", zap.Error(err))
	}
	phase = time.Now()
	result, err := o.reason(ctx, s, text)
	turn.observe(metrics.PhaseReasoning, phase)
	if err != nil {
		turn.Outcome = metrics.OutcomeFailed
		o.collaboratorFailed(CollaboratorReasoning)
		_ = s.SendError(constants.ErrorNoResponse, constants.CodeReasoningFailed)
		s.Reset(constants.StatusReady)
		return err
	}
	turn.Reply = result.Response

	// 4. 保存会话，失败不影响本轮
	if o.store != nil {
		phase = time.Now()
		if err := o.persist(ctx, s, text, result); err != nil {
			o.collaboratorFailed(CollaboratorStore)
			logger.Warn("[Pipeline] --- 保存会话失败", zap.Error(err))
			_ = s.SendError(constants.ErrorPersistFailed, constants.CodePersistFailed)
		}
		turn.observe(metrics.PhasePersist, phase)
	}

	_ = s.SendResponse(turn.Reply)

	// 5. 语音合成
	if !o.models.TTSAvailable() {
		turn.Outcome = metrics.OutcomeTextOnly
		s.Reset(constants.StatusReadyForNext)
		return nil
	}
	turn.Spoken = stream.Sanitize(turn.Reply, o.config.MaxSpokenWords)
	if turn.Spoken == "" {
		logger.Debug("[Pipeline] --- nothing speakable in reply")
		turn.Outcome = metrics.OutcomeTextOnly
		s.Reset(constants.StatusReadyForNext)
		return nil
	}
	if err := s.Transition(sessions.StateSpeaking, constants.StatusSynthesizing); err != nil {
		logger.Debug("[Pipeline] --- cannot enter speaking", zap.Error(err))
	}
	phase = time.Now()
	speech, err := o.synthesize(ctx, turn.Spoken)
	turn.observe(metrics.PhaseTTS, phase)
	if err != nil {
		turn.Outcome = metrics.OutcomeFailed
		o.collaboratorFailed(CollaboratorTTS)
		message := constants.ErrorSynthesisFailed
		if errors.Is(err, constants.ErrModelUnavailable) {
			message = constants.ErrorTTSUnavailable
		}
		_ = s.SendError(message, constants.CodeOf(err))
		s.Reset(constants.StatusReady)
		return err
	}
	s.Stats().Synthesized()
	turn.Audio = speech
	_ = s.SendAudio(speech)
	o.cacheLastReply(ctx, s, speech)

	turn.Outcome = metrics.OutcomeCompleted
	s.Stats().AddLatency(time.Since(started))
	s.Reset(constants.StatusReadyForNext)
	return nil
}

// audioFailed handles the too-short and undecodable outcomes.
func (o *Orchestrator) audioFailed(s *protocol.Session, turn *Turn, err error) error {
	if errors.Is(err, constants.ErrAudioTooShort) {
		turn.Outcome = metrics.OutcomeTooShort
		s.Reset(constants.StatusTooShort)
		return err
	}
	turn.Outcome = metrics.OutcomeDecode
	s.Logger().Warn("[Pipeline] --- 音频解码失败", zap.Error(err))
	s.Reset(constants.StatusNotDecodable)
	return err
}

func (o *Orchestrator) transcribe(ctx context.Context, wav []byte) (recognizer.Transcript, error) {
	var out recognizer.Transcript
	err := o.pool.Do(ctx, func(jctx context.Context) error {
		return o.sttBreaker.Execute(func() error {
			tr, err := o.models.STT.Transcribe(jctx, wav)
			if err != nil {
				return err
			}
			out = tr
			return nil
		})
	})
	// on timeout the job may still be running, out is only safe after done
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		return recognizer.Transcript{}, constants.Wrap(constants.ErrModelUnavailable, err)
	}
	return recognizer.Transcript{}, constants.Wrap(constants.ErrTranscription, err)
}

func (o *Orchestrator) reason(ctx context.Context, s *protocol.Session, text string) (*llm.Result, error) {
	if o.engine == nil {
		return nil, constants.Wrap(constants.ErrReasoning, errors.New("no reasoning engine"))
	}
	var result *llm.Result
	err := o.llmBreaker.Execute(func() error {
		res, err := o.engine.ProcessMessage(ctx, llm.Request{
			Text:        text,
			UserID:      s.UserID(),
			MemoryLimit: o.config.MemoryLimit,
			VoiceMode:   true,
		})
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return nil, constants.Wrap(constants.ErrReasoning, err)
	}
	if result == nil || strings.TrimSpace(result.Response) == "" {
		return nil, constants.Wrap(constants.ErrReasoning, errors.New("empty response"))
	}
	return result, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, text string) ([]byte, error) {
	var out []byte
	err := o.pool.Do(ctx, func(jctx context.Context) error {
		return o.ttsBreaker.Execute(func() error {
			wav, err := o.models.TTS.Synthesize(jctx, text)
			if err != nil {
				return err
			}
			if len(wav) == 0 {
				return errors.New("empty audio")
			}
			out = wav
			return nil
		})
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, constants.Wrap(constants.ErrModelUnavailable, err)
	}
	return nil, constants.Wrap(constants.ErrSynthesis, err)
}

// persist resolves the conversation then stores the user and assistant
// messages, the assistant one a millisecond later so ordering is stable.
// A conversation id the user does not own is dropped for a new one.
func (o *Orchestrator) persist(ctx context.Context, s *protocol.Session, text string, result *llm.Result) error {
	conversationID := s.ConversationID()
	if conversationID != "" {
		err := o.store.UpdateTimestamp(ctx, conversationID, s.UserID())
		switch {
		case errors.Is(err, constants.ErrConversationNotFound):
			s.Logger().Warn("[Pipeline] --- 会话不存在或不属于当前用户，新建会话",
				zap.String("conversation_id", conversationID))
			conversationID = ""
		case err != nil:
			return err
		}
	}
	if conversationID == "" {
		id, err := o.store.CreateConversation(ctx, s.UserID())
		if err != nil {
			return err
		}
		conversationID = id
		s.SetConversationID(id)
		title := o.store.GenerateTitle(text)
		if err := o.store.UpdateTitle(ctx, id, title); err != nil {
			s.Logger().Warn("[Pipeline] --- 更新会话标题失败", zap.Error(err))
		}
		_ = s.SendConversationUpdate(id, title)
	}

	at := s.Now()
	if _, err := o.store.AddMessage(ctx, conversationID, s.UserID(), RoleUser, text, at,
		map[string]any{"mode": constants.MessageOriginVoice}); err != nil {
		return err
	}
	_, err := o.store.AddMessage(ctx, conversationID, s.UserID(), RoleAssistant, result.Response, at.Add(time.Millisecond),
		map[string]any{"mode": constants.MessageOriginVoice, "reasoning": result.Reasoning})
	return err
}

func (o *Orchestrator) cacheLastReply(ctx context.Context, s *protocol.Session, wav []byte) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Set(ctx, cache.LastReplyKey(s.UserID()), audio.EncodeBase64(wav), o.config.LastReplyTTL); err != nil {
		s.Logger().Debug("[Pipeline] --- cache last reply failed", zap.Error(err))
	}
}

func (o *Orchestrator) collaboratorFailed(name string) {
	if o.metrics != nil {
		o.metrics.RecordCollaboratorError(name)
	}
}

func (o *Orchestrator) finish(s *protocol.Session, turn *Turn, started time.Time) {
	total := time.Since(started)
	turn.Phases[metrics.PhaseTotal] = total
	if o.metrics != nil {
		o.metrics.RecordTurn(turn.Outcome)
		for phase, d := range turn.Phases {
			o.metrics.ObservePhase(phase, d)
		}
	}
	s.Logger().Info("[Pipeline] --- turn finished",
		zap.String("outcome", turn.Outcome),
		zap.Duration("total", total),
		zap.Int("reply_chars", len(turn.Reply)),
		zap.Int("audio_bytes", len(turn.Audio)))

	if o.events == nil || turn.Outcome == "" {
		return
	}
	o.events.Publish(events.Event{
		Type:      events.VoiceTurnCompleted,
		Timestamp: s.Now(),
		Source:    constants.VoiceSessionSourceName,
		Data: map[string]interface{}{
			"session_id":      s.ID(),
			"user_id":         s.UserID(),
			"conversation_id": s.ConversationID(),
			"outcome":         turn.Outcome,
			"language":        turn.Language,
			"latency_ms":      total.Milliseconds(),
		},
	})
}
