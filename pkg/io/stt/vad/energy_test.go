package vad

import (
	"errors"
	"math"
	"testing"
)

// tone returns a 16-bit sine frame of n samples at the given peak amplitude.
func tone(n int, amplitude float64) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		s := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		buf[2*i] = byte(uint16(s))
		buf[2*i+1] = byte(uint16(s) >> 8)
	}
	return buf
}

func TestEnergyVADClassifies(t *testing.T) {
	v, err := NewEnergyVAD(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("NewEnergyVAD: %v", err)
	}

	speech, err := v.IsSpeech(tone(320, 8000), 16000)
	if err != nil {
		t.Fatalf("IsSpeech: %v", err)
	}
	if !speech {
		t.Error("loud tone should be speech")
	}

	speech, err = v.IsSpeech(make([]byte, 640), 16000)
	if err != nil {
		t.Fatalf("IsSpeech: %v", err)
	}
	if speech {
		t.Error("digital silence should not be speech")
	}
}

func TestEnergyVADModes(t *testing.T) {
	// ~700 rms sits between the mode 1 and mode 2 thresholds
	frame := tone(320, 1000)

	for mode, want := range []bool{true, true, false, false} {
		v, err := NewEnergyVAD(Config{Mode: mode}, nil)
		if err != nil {
			t.Fatalf("mode %d: %v", mode, err)
		}
		got, err := v.IsSpeech(frame, 16000)
		if err != nil {
			t.Fatalf("mode %d: %v", mode, err)
		}
		if got != want {
			t.Errorf("mode %d: speech = %v, want %v", mode, got, want)
		}
	}

	if _, err := NewEnergyVAD(Config{Mode: 4}, nil); err == nil {
		t.Error("mode 4 should be rejected")
	}
}

func TestEnergyVADRejectsBadInput(t *testing.T) {
	v, _ := NewEnergyVAD(DefaultConfig(), nil)

	tests := []struct {
		name  string
		frame []byte
		rate  int
		want  error
	}{
		{"unsupported rate", make([]byte, 441*2), 44100, ErrUnsupportedRate},
		{"short frame", make([]byte, 100), 16000, ErrUnsupportedFrame},
		{"odd length", make([]byte, 641), 16000, ErrUnsupportedFrame},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.IsSpeech(tt.frame, tt.rate); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	for _, n := range []int{160, 320, 480} {
		if _, err := v.IsSpeech(make([]byte, n*2), 16000); err != nil {
			t.Errorf("%d samples at 16k should be valid: %v", n, err)
		}
	}
}

func TestRMS(t *testing.T) {
	// constant 1000 -> rms 1000
	frame := make([]byte, 8)
	for i := 0; i < 4; i++ {
		frame[2*i] = byte(1000 & 0xFF)
		frame[2*i+1] = byte(1000 >> 8)
	}
	if got := RMS(frame); math.Abs(got-1000) > 0.001 {
		t.Errorf("RMS = %f, want 1000", got)
	}
	if RMS(nil) != 0 {
		t.Error("RMS(nil) should be 0")
	}
}
