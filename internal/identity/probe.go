package identity

import "errors"

// Sentinel probe results.
const (
	CanvasError  = "canvas-error"
	WebGLError   = "webgl-error"
	NoWebGL      = "no-webgl"
	WebGLNoDebug = "webgl-no-debug"
	AudioError   = "audio-error"
)

// ErrUnavailable is returned by a probe whose capability is absent in the
// current environment.
var ErrUnavailable = errors.New("identity: capability unavailable")

// Probe samples one capability-dependent signal. The release func, when
// non-nil, frees whatever the probe acquired and is always invoked, even
// when the probe fails or panics.
type Probe func() (sig string, release func(), err error)

// Probes groups the capability-dependent samplers.
type Probes struct {
	Canvas Probe
	WebGL  Probe
	Audio  Probe
}

// Collect runs the probes and stores their results (or sentinels) on a copy
// of s. A nil probe leaves the corresponding field as reported.
func Collect(s Signals, p Probes) Signals {
	if p.Canvas != nil {
		s.Canvas = sample(p.Canvas, CanvasError, CanvasError)
	}
	if p.WebGL != nil {
		s.WebGL = sample(p.WebGL, NoWebGL, WebGLError)
	}
	if p.Audio != nil {
		s.Audio = sample(p.Audio, AudioError, AudioError)
	}
	return s
}

// Reported wraps an already-sampled value, e.g. one sent by a browser. An
// empty value reports the capability as unavailable.
func Reported(v string) Probe {
	return func() (string, func(), error) {
		if v == "" {
			return "", nil, ErrUnavailable
		}
		return v, nil, nil
	}
}

func sample(p Probe, unavailable, failed string) (out string) {
	var release func()
	defer func() {
		if r := recover(); r != nil {
			out = failed
		}
		if release != nil {
			func() {
				defer func() { _ = recover() }()
				release()
			}()
		}
	}()

	sig, rel, err := p()
	release = rel
	switch {
	case errors.Is(err, ErrUnavailable):
		return unavailable
	case err != nil:
		return failed
	case sig == "":
		return failed
	}
	return sig
}

