package facematch

import (
	"sync"
	"time"
)

// DefaultSessionTTL is used when a verifier is created without a positive TTL.
const DefaultSessionTTL = 2 * time.Minute

// Verification is the state of a multi-frame verification session after one frame.
type Verification struct {
	Decision        MatchDecision `json:"decision"`
	Verified        bool          `json:"verified"`
	Identity        *int64        `json:"identity,omitempty"`
	FramesRemaining int           `json:"frames_remaining"`
	AvgConfidence   float64       `json:"avg_confidence,omitempty"`
	Message         string        `json:"message,omitempty"`
}

type frameResult struct {
	identity   *int64
	confidence float64
}

type verifySession struct {
	frames   []frameResult
	lastSeen time.Time
}

// Verifier confirms an identity only after the last N frames of a session all matched it.
// Sessions idle longer than the TTL are forgotten.
type Verifier struct {
	required int
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*verifySession
}

// NewVerifier creates a verifier requiring `required` consecutive matching frames.
// A non-positive ttl falls back to DefaultSessionTTL.
func NewVerifier(required int, ttl time.Duration) *Verifier {
	if required < 1 {
		required = 1
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Verifier{
		required: required,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*verifySession),
	}
}

// Required returns the number of frames a session needs.
func (v *Verifier) Required() int {
	return v.required
}

// Observe records the decision for one frame of session and reports whether
// the session is now verified. A verified session starts over empty.
func (v *Verifier) Observe(session string, d MatchDecision) Verification {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	v.expireLocked(now)

	s, ok := v.sessions[session]
	if !ok {
		s = &verifySession{}
		v.sessions[session] = s
	}
	s.lastSeen = now

	fr := frameResult{confidence: d.Confidence}
	if d.IsMatch() {
		id := *d.Identity
		fr.identity = &id
	}
	s.frames = append(s.frames, fr)
	if len(s.frames) > v.required {
		s.frames = s.frames[len(s.frames)-v.required:]
	}

	result := Verification{Decision: d}
	if len(s.frames) < v.required {
		result.FramesRemaining = v.required - len(s.frames)
		return result
	}

	first := s.frames[0].identity
	var sum float64
	consistent := first != nil
	for _, f := range s.frames {
		sum += f.confidence
		if f.identity == nil || first == nil || *f.identity != *first {
			consistent = false
		}
	}

	if !consistent {
		result.Message = "recognition was inconsistent across frames, try again"
		return result
	}

	delete(v.sessions, session)
	id := *first
	result.Verified = true
	result.Identity = &id
	result.AvgConfidence = sum / float64(len(s.frames))
	result.Message = "identity confirmed across consecutive frames"
	return result
}

// Reset drops any buffered frames for session.
func (v *Verifier) Reset(session string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.sessions, session)
}

// Sessions returns the number of sessions currently buffered.
func (v *Verifier) Sessions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.expireLocked(v.now())
	return len(v.sessions)
}

func (v *Verifier) expireLocked(now time.Time) {
	for key, s := range v.sessions {
		if now.Sub(s.lastSeen) > v.ttl {
			delete(v.sessions, key)
		}
	}
}
