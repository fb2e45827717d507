package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"eventcam/internal/logger"
	"eventcam/internal/metrics"
	"eventcam/internal/model"
	"eventcam/internal/service/ai"
	"eventcam/internal/service/pump"
	"eventcam/internal/service/recorder"
	"eventcam/internal/service/risk"
)

// ManualLabel is the trigger label of operator-requested recordings.
const ManualLabel = "manual"

var (
	// ErrNoSource is returned by operations that need a connected source.
	ErrNoSource = errors.New("no source connected")
	// ErrNoOpener is returned when a source kind is not wired.
	ErrNoOpener = errors.New("source kind not supported")
)

// CameraRequest selects a local camera.
type CameraRequest struct {
	Index int  `json:"index"`
	CSI   bool `json:"csi"`
}

// Openers open the supported source kinds.
type Openers struct {
	Camera func(req CameraRequest) (pump.Source, error)
	File   func(path string) (pump.Source, error)
	URL    func(url string) (pump.Source, error)
}

// ManagerOptions wires a Manager.
type ManagerOptions struct {
	EventDir        string
	PreSeconds      float64
	PostSeconds     float64
	PreviewInterval int
	DefaultModel    string

	Rules     risk.Rules
	Registry  *ai.Registry
	Openers   Openers
	NewSink   recorder.SinkFactory
	Annotator pump.Annotator
	Publisher pump.Publisher
	Notifier  recorder.Notifier

	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Status describes the connection, the model and the recorder.
type Status struct {
	Connected bool             `json:"connected"`
	Source    string           `json:"source,omitempty"`
	Live      bool             `json:"live"`
	FPS       float64          `json:"fps,omitempty"`
	Interval  string           `json:"interval,omitempty"`
	Model     string           `json:"model"`
	Models    []string         `json:"models"`
	Recorder  *recorder.Status `json:"recorder,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// session is one source connection with its recorder and pump.
type session struct {
	source    pump.Source
	recorder  *recorder.Recorder
	pump      *pump.Pump
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
}

// Manager owns the source connection, the active detector and the pump
// goroutine. Control operations are serialized.
type Manager struct {
	opts      ManagerOptions
	evaluator *risk.Evaluator
	logger    *logger.Logger
	metrics   *metrics.Metrics

	mu        sync.Mutex
	detector  ai.Detector
	modelName string
	session   *session
	lastErr   error
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Registry == nil {
		opts.Registry = ai.NewRegistry()
	}

	m := &Manager{
		opts:      opts,
		evaluator: risk.NewEvaluator(opts.Rules),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		modelName: opts.DefaultModel,
	}
	m.logger.Info("🎬 Manager ready - pre-roll %.1fs, post-roll %.1fs", opts.PreSeconds, opts.PostSeconds)
	return m
}

// ConnectCamera replaces the current source with a local camera.
func (m *Manager) ConnectCamera(req CameraRequest) error {
	if m.opts.Openers.Camera == nil {
		return fmt.Errorf("%w: camera", ErrNoOpener)
	}
	return m.connect(func() (pump.Source, error) { return m.opts.Openers.Camera(req) })
}

// ConnectFile replaces the current source with a video file.
func (m *Manager) ConnectFile(path string) error {
	if m.opts.Openers.File == nil {
		return fmt.Errorf("%w: file", ErrNoOpener)
	}
	return m.connect(func() (pump.Source, error) { return m.opts.Openers.File(path) })
}

// ConnectURL replaces the current source with a network stream.
func (m *Manager) ConnectURL(url string) error {
	if m.opts.Openers.URL == nil {
		return fmt.Errorf("%w: url", ErrNoOpener)
	}
	return m.connect(func() (pump.Source, error) { return m.opts.Openers.URL(url) })
}

func (m *Manager) connect(open func() (pump.Source, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()

	if m.detector == nil {
		if err := m.loadModelLocked(m.modelName); err != nil {
			return err
		}
	}

	source, err := open()
	if err != nil {
		m.lastErr = err
		return err
	}

	rec := recorder.New(recorder.Options{
		Dir:         m.opts.EventDir,
		FPS:         source.FPS(),
		PreSeconds:  m.opts.PreSeconds,
		PostSeconds: m.opts.PostSeconds,
		NewSink:     m.opts.NewSink,
		Notifier:    recorder.NotifierFunc(m.clipSaved),
		Logger:      m.logger,
	})

	m.lastErr = nil
	m.startLocked(&session{source: source, recorder: rec, startedAt: time.Now()})
	m.metrics.SetConnected(true)
	if named, ok := m.opts.Publisher.(interface{ SetSource(string) }); ok {
		named.SetSource(source.Name())
	}
	m.logger.Info("📹 Source connected: %s (%.2f fps, clips at %.2f fps)", source.Name(), source.FPS(), rec.FPS())
	return nil
}

// startLocked builds a pump for s with the current detector and runs it.
func (m *Manager) startLocked(s *session) {
	s.pump = pump.New(pump.Options{
		Source:          s.source,
		Detector:        m.detector,
		Evaluator:       m.evaluator,
		Recorder:        s.recorder,
		Annotator:       m.opts.Annotator,
		Publisher:       m.opts.Publisher,
		PreviewInterval: m.opts.PreviewInterval,
		Metrics:         m.metrics,
		Logger:          m.logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	m.session = s

	go func() {
		err := s.pump.Run(ctx)
		close(done)
		if ctx.Err() == nil {
			m.pumpExited(s, done, err)
		}
	}()
}

// pumpExited tears down a session whose pump ended on its own: end of
// file, a lost live source or a detector failure. done identifies the run,
// since a model switch restarts the same session.
func (m *Manager) pumpExited(s *session, done chan struct{}, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != s || s.done != done {
		return
	}
	m.session = nil
	m.lastErr = err
	m.releaseLocked(s)

	if err != nil {
		m.logger.Error("Source %s stopped: %v", s.source.Name(), err)
	} else {
		m.logger.Info("Source %s finished", s.source.Name())
	}
}

// stopLocked cancels the pump, waits for it and releases the session.
func (m *Manager) stopLocked() {
	s := m.session
	if s == nil {
		return
	}
	m.session = nil
	m.haltLocked(s)
	m.releaseLocked(s)
}

// haltLocked stops the pump of s and drains its recorder.
func (m *Manager) haltLocked(s *session) {
	s.cancel()
	<-s.done
	s.recorder.Stop()
}

func (m *Manager) releaseLocked(s *session) {
	s.recorder.Close()
	if err := s.source.Close(); err != nil {
		m.logger.Warning("Failed to close source %s: %v", s.source.Name(), err)
	}
	m.metrics.SetConnected(false)
	m.metrics.SetRecording(false)
	if named, ok := m.opts.Publisher.(interface{ SetSource(string) }); ok {
		named.SetSource("")
	}
	m.logger.Info("🛑 Source released: %s", s.source.Name())
}

// Disconnect stops the pump, saves an in-flight clip and releases the source.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSource
	}
	m.stopLocked()
	return nil
}

// Trigger starts or extends a manual recording.
func (m *Manager) Trigger() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return ErrNoSource
	}
	return m.session.pump.Trigger(ManualLabel)
}

// SwitchModel activates the named detector. A running source keeps its
// recorder; the pump is stopped, any clip is saved, and the pump restarts
// with the new model.
func (m *Manager) SwitchModel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == m.modelName && m.detector != nil {
		return nil
	}

	next, err := m.openModel(name)
	if err != nil {
		return err
	}

	s := m.session
	if s != nil {
		m.session = nil
		m.haltLocked(s)
	}

	if m.detector != nil {
		if err := m.detector.Close(); err != nil {
			m.logger.Warning("Failed to close model %s: %v", m.modelName, err)
		}
	}
	m.detector = next
	m.modelName = name
	m.logger.Info("🤖 Model switched to %s", name)

	if s != nil {
		m.startLocked(s)
	}
	return nil
}

// ToggleModel switches to the next registered model and returns its name.
func (m *Manager) ToggleModel() (string, error) {
	m.mu.Lock()
	next := m.opts.Registry.Next(m.modelName)
	m.mu.Unlock()

	if next == "" {
		return "", fmt.Errorf("%w: no models registered", ai.ErrUnknownModel)
	}
	return next, m.SwitchModel(next)
}

// LoadModel loads the default model ahead of the first connection.
func (m *Manager) LoadModel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.detector != nil {
		return nil
	}
	return m.loadModelLocked(m.modelName)
}

func (m *Manager) loadModelLocked(name string) error {
	d, err := m.openModel(name)
	if err != nil {
		return err
	}
	m.detector = d
	m.modelName = name
	return nil
}

func (m *Manager) openModel(name string) (ai.Detector, error) {
	d, err := m.opts.Registry.Open(name)
	if err != nil {
		return nil, err
	}
	return ai.Relabel(d, risk.MergeNames(d.Names(), m.opts.Rules.Names)), nil
}

func (m *Manager) clipSaved(event model.Event) {
	m.metrics.ClipsSaved.Add(1)
	if m.opts.Notifier != nil {
		m.opts.Notifier.Notify(event)
	}
}

// Status returns a snapshot of the manager state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := Status{
		Model:  m.modelName,
		Models: m.opts.Registry.Names(),
	}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	if s := m.session; s != nil {
		rs := s.recorder.Status()
		status.Connected = true
		status.Source = s.source.Name()
		status.Live = s.source.Live()
		status.FPS = rs.FPS
		status.Interval = s.pump.TickInterval().String()
		status.Recorder = &rs
	}
	return status
}

// Close disconnects and unloads the model.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopLocked()
	if m.detector != nil {
		m.detector.Close()
		m.detector = nil
	}
	m.logger.Info("🛑 Manager stopped")
}
