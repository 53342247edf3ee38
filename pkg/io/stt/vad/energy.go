package vad

import (
	"fmt"
	"math"

	"github.com/xpanvictor/voxgate/pkg/Logger"
)

// rmsThresholds maps aggressiveness mode to the minimum RMS amplitude
// (on the int16 scale) of a speech frame.
var rmsThresholds = [4]float64{300, 500, 800, 1200}

// EnergyVAD is an energy-based classifier. A frame is speech when its RMS
// amplitude reaches the mode threshold.
type EnergyVAD struct {
	threshold float64
	logger    *Logger.Logger
}

var _ Classifier = (*EnergyVAD)(nil)

func NewEnergyVAD(cfg Config, logger *Logger.Logger) (*EnergyVAD, error) {
	if cfg.Mode < 0 || cfg.Mode >= len(rmsThresholds) {
		return nil, fmt.Errorf("vad: mode %d out of range", cfg.Mode)
	}
	return &EnergyVAD{threshold: rmsThresholds[cfg.Mode], logger: logger}, nil
}

// NewEnergyFactory returns a Factory producing EnergyVAD instances.
func NewEnergyFactory(cfg Config, logger *Logger.Logger) (Factory, error) {
	if _, err := NewEnergyVAD(cfg, logger); err != nil {
		return nil, err
	}
	return func() Classifier {
		v, _ := NewEnergyVAD(cfg, logger)
		return v
	}, nil
}

// IsSpeech implements Classifier.
func (e *EnergyVAD) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if err := validFrame(frame, sampleRate); err != nil {
		return false, err
	}

	rms := RMS(frame)
	hasVoice := rms >= e.threshold

	if e.logger != nil {
		e.logger.Debugf("VAD: rms=%.1f, threshold=%.0f, hasVoice=%v", rms, e.threshold, hasVoice)
	}
	return hasVoice, nil
}

// RMS returns the root mean square amplitude of 16-bit little-endian PCM.
func RMS(pcm []byte) float64 {
	sampleCount := len(pcm) / 2
	if sampleCount == 0 {
		return 0
	}

	var sum int64
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		sum += int64(sample) * int64(sample)
	}
	return math.Sqrt(float64(sum) / float64(sampleCount))
}
