package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StatusFunc is notified when a source goes stale or recovers. A stale
// source stops contributing samples but the mixed timeline keeps advancing
// with silence in its place.
type StatusFunc func(source string, active bool)

// MixerConfig controls chunk assembly and per-source gains
type MixerConfig struct {
	SampleRate    int           // output rate (Hz)
	ChunkDuration time.Duration // emitted chunk length
	StaleAfter    time.Duration // silence before a source is reported stale
	RingCapacity  time.Duration // per-source buffering headroom
}

// DefaultMixerConfig returns mixing parameters suitable for speech capture
func DefaultMixerConfig() MixerConfig {
	return MixerConfig{
		SampleRate:    16000,
		ChunkDuration: 100 * time.Millisecond,
		StaleAfter:    2 * time.Second,
		RingCapacity:  1 * time.Second,
	}
}

type mixerSource struct {
	src       Source
	gain      float32
	ring      *Ring
	resampler *Resampler
	channels  int

	mu       sync.Mutex
	lastData time.Time
	active   bool
	started  bool
}

// Mixer combines multiple capture sources into a single mono stream at the
// target rate and emits fixed-duration chunks on a wall-clock tick. Sources
// that fall behind are padded with silence so chunk timing stays real-time.
type Mixer struct {
	config  MixerConfig
	logger  *slog.Logger
	sources []*mixerSource

	onChunk  func(Chunk)
	onStatus StatusFunc

	samplesPerChunk int
	seq             uint64

	mu      sync.Mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

// NewMixer creates a mixer with the given configuration
func NewMixer(config MixerConfig, logger *slog.Logger) *Mixer {
	return &Mixer{
		config:          config,
		logger:          logger,
		samplesPerChunk: int(float64(config.SampleRate) * config.ChunkDuration.Seconds()),
	}
}

// AddSource registers a capture source with its mixing gain. Must be called
// before Start.
func (m *Mixer) AddSource(src Source, gain float32) {
	format := src.Format()
	ringSamples := int(float64(m.config.SampleRate) * m.config.RingCapacity.Seconds())

	m.sources = append(m.sources, &mixerSource{
		src:       src,
		gain:      gain,
		ring:      NewRing(ringSamples),
		resampler: NewResampler(format.SampleRate, m.config.SampleRate),
		channels:  format.Channels,
	})
}

// OnChunk sets the single chunk consumer. Must be called before Start.
func (m *Mixer) OnChunk(fn func(Chunk)) {
	m.onChunk = fn
}

// OnStatus sets the source status callback
func (m *Mixer) OnStatus(fn StatusFunc) {
	m.onStatus = fn
}

// Start opens every registered source and begins emitting chunks. If a
// source fails to open, already-started sources are stopped and a
// *SourceError naming the failed source is returned so the caller can
// retry without it.
func (m *Mixer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("mixer already running")
	}
	if m.onChunk == nil {
		return fmt.Errorf("mixer has no chunk consumer")
	}
	if len(m.sources) == 0 {
		return fmt.Errorf("mixer has no sources")
	}

	now := time.Now()
	for i, ms := range m.sources {
		ms := ms
		err := ms.src.Start(func(samples []float32) {
			mono := DownmixMono(samples, ms.channels)
			converted := ms.resampler.Process(mono)
			ms.ring.Write(converted)

			ms.mu.Lock()
			ms.lastData = time.Now()
			ms.mu.Unlock()
		})
		if err != nil {
			for _, prev := range m.sources[:i] {
				if prev.started {
					prev.src.Stop()
					prev.started = false
				}
			}
			return &SourceError{Source: ms.src.Name(), Err: err}
		}

		ms.started = true
		ms.mu.Lock()
		ms.active = true
		ms.lastData = now
		ms.mu.Unlock()

		m.logger.Info("Audio source started",
			slog.String("source", ms.src.Name()),
			slog.Int("native_rate", ms.src.Format().SampleRate),
			slog.Int("channels", ms.src.Format().Channels))
	}

	m.running = true
	m.seq = 0
	m.done = make(chan struct{})
	m.stopped = make(chan struct{})
	go m.mixLoop()

	return nil
}

// Stop halts capture, emits a final short chunk from any buffered samples,
// and resets the mixer for reuse
func (m *Mixer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.done)
	m.mu.Unlock()

	<-m.stopped

	for _, ms := range m.sources {
		if ms.started {
			if err := ms.src.Stop(); err != nil {
				m.logger.Warn("Failed to stop audio source",
					slog.String("source", ms.src.Name()),
					slog.String("error", err.Error()))
			}
			ms.started = false
		}
		ms.resampler.Reset()
	}

	// Flush whatever arrived between the last tick and source shutdown.
	m.emitChunk(true)
}

// mixLoop assembles one chunk per tick until Stop is called
func (m *Mixer) mixLoop() {
	defer close(m.stopped)

	ticker := time.NewTicker(m.config.ChunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.checkStale()
			m.emitChunk(false)
		}
	}
}

// emitChunk mixes one chunk from the source rings. Sources with too few
// buffered samples contribute silence for the missing tail. When final is
// set, a short chunk covering only the buffered samples is emitted.
func (m *Mixer) emitChunk(final bool) {
	mixed := make([]float32, m.samplesPerChunk)
	scratch := make([]float32, m.samplesPerChunk)
	longest := 0

	for _, ms := range m.sources {
		n := ms.ring.Read(scratch)
		if n > longest {
			longest = n
		}
		for i := 0; i < n; i++ {
			mixed[i] += scratch[i] * ms.gain
		}
	}

	if final {
		if longest == 0 {
			return
		}
		mixed = mixed[:longest]
	}

	for i := range mixed {
		mixed[i] = softClip(mixed[i])
	}

	m.seq++
	m.onChunk(Chunk{
		Samples: mixed,
		Seq:     m.seq,
		Time:    time.Now(),
	})
}

// checkStale flags sources that stopped delivering samples and reports
// recoveries. The mixer keeps running either way.
func (m *Mixer) checkStale() {
	now := time.Now()
	for _, ms := range m.sources {
		ms.mu.Lock()
		fresh := now.Sub(ms.lastData) < m.config.StaleAfter
		changed := fresh != ms.active
		ms.active = fresh
		ms.mu.Unlock()

		if !changed {
			continue
		}

		if fresh {
			m.logger.Info("Audio source recovered", slog.String("source", ms.src.Name()))
		} else {
			m.logger.Warn("Audio source went silent, padding with silence",
				slog.String("source", ms.src.Name()),
				slog.Duration("stale_after", m.config.StaleAfter))
		}

		if m.onStatus != nil {
			m.onStatus(ms.src.Name(), fresh)
		}
	}
}

// Dropped returns the total samples dropped across all source rings
func (m *Mixer) Dropped() uint64 {
	var total uint64
	for _, ms := range m.sources {
		total += ms.ring.Dropped()
	}
	return total
}
