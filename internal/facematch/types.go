// Package facematch decides which enrolled identity, if any, a face embedding belongs to.
// Everything here is pure: the same query, corpus and policy always produce the same decision.
package facematch

// Outcome is the terminal classification of a recognition attempt.
type Outcome string

const (
	OutcomeMatch      Outcome = "MATCH"       // exactly one identity is confidently nearest
	OutcomeNoMatch    Outcome = "NO_MATCH"    // nearest identity too far or too uncertain
	OutcomeAmbiguous  Outcome = "AMBIGUOUS"   // two distinct identities are too close to call
	OutcomeNoFace     Outcome = "NO_FACE"     // nothing usable was found in the frame
	OutcomeLowQuality Outcome = "LOW_QUALITY" // frame rejected before detection
)

// Reason refines NO_MATCH and NO_FACE outcomes.
type Reason string

const (
	ReasonNoIdentities    Reason = "no_identities_enrolled"
	ReasonDistance        Reason = "distance_above_threshold"
	ReasonConfidence      Reason = "confidence_below_minimum"
	ReasonNoDetection     Reason = "no_face_detected"
	ReasonNoEncoding      Reason = "encoding_failed"
	ReasonQualityRejected Reason = "quality_rejected"
)

// Sample is one active embedding in the corpus the matcher scans.
type Sample struct {
	EmbeddingID int64
	Identity    int64
	Vector      []float64
}

// Policy carries the three gates applied in order: distance, confidence, margin.
type Policy struct {
	Threshold     float64
	MinConfidence float64
	Margin        float64
}

// DefaultPolicy returns the production thresholds.
func DefaultPolicy() Policy {
	return Policy{Threshold: 0.50, MinConfidence: 0.50, Margin: 0.08}
}

// Candidate is an identity together with its best distance to the query.
type Candidate struct {
	Identity int64   `json:"identity"`
	Distance float64 `json:"distance"`
}

// MatchDecision is the result of matching a query against the corpus.
// Identity is set only for MATCH. Best and RunnerUp are set whenever they exist,
// so AMBIGUOUS decisions expose both contenders.
type MatchDecision struct {
	Outcome    Outcome    `json:"outcome"`
	Identity   *int64     `json:"identity,omitempty"`
	Confidence float64    `json:"confidence"`
	Best       *Candidate `json:"best,omitempty"`
	RunnerUp   *Candidate `json:"runner_up,omitempty"`
	Reason     Reason     `json:"reason,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// IsMatch reports whether the decision identifies someone.
func (d MatchDecision) IsMatch() bool {
	return d.Outcome == OutcomeMatch && d.Identity != nil
}

// NoFace builds the decision for frames without a usable face.
func NoFace(reason Reason, message string) MatchDecision {
	return MatchDecision{Outcome: OutcomeNoFace, Reason: reason, Message: message}
}

// LowQuality builds the decision for frames the quality gate rejected.
func LowQuality(message string) MatchDecision {
	return MatchDecision{Outcome: OutcomeLowQuality, Reason: ReasonQualityRejected, Message: message}
}
