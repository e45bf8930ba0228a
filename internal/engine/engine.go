// Package engine wires the quality gate, face locator, aligner, embedder, matcher and
// embedding store into the enrollment and recognition pipelines.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/facegate/internal/align"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facedetect"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/logging"
	"github.com/kozaktomas/facegate/internal/quality"
)

// Embedder turns an aligned face into its embedding. It returns nil without an error
// when the face yields no vector.
type Embedder interface {
	Embed(ctx context.Context, face image.Image) ([]float64, error)
}

// Deps are the collaborators an Engine needs. Landmarks may be nil to disable alignment.
type Deps struct {
	Detector   facedetect.Detector
	Landmarks  facedetect.LandmarkLocator
	Embedder   Embedder
	Store      database.EmbeddingWriter
	Identities database.IdentityReader
	Logger     *zap.Logger
}

// Engine runs enrollment and recognition. It is safe for concurrent use.
type Engine struct {
	policy     config.Policy
	match      facematch.Policy
	gate       *quality.Gate
	locator    *facedetect.Locator
	preparer   *align.Preparer
	embedder   Embedder
	store      database.EmbeddingWriter
	identities database.IdentityReader
	verifier   *facematch.Verifier
	logger     *zap.Logger
}

// New validates policy and builds an Engine.
func New(policy config.Policy, deps Deps) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	switch {
	case deps.Detector == nil:
		return nil, errors.New("engine needs a face detector")
	case deps.Embedder == nil:
		return nil, errors.New("engine needs an embedder")
	case deps.Store == nil:
		return nil, errors.New("engine needs an embedding store")
	case deps.Identities == nil:
		return nil, errors.New("engine needs an identity store")
	}

	return &Engine{
		policy: policy,
		match: facematch.Policy{
			Threshold:     policy.Match.Threshold,
			MinConfidence: policy.Match.MinConfidence,
			Margin:        policy.Match.Margin,
		},
		gate:       quality.NewGate(policy.Quality),
		locator:    facedetect.NewLocator(deps.Detector, policy.Locator),
		preparer:   align.NewPreparer(policy.Enhance, deps.Landmarks),
		embedder:   deps.Embedder,
		store:      deps.Store,
		identities: deps.Identities,
		verifier:   facematch.NewVerifier(policy.Verify.Frames, policy.Verify.SessionTTL),
		logger:     logging.OrNop(deps.Logger),
	}, nil
}

// MatchPolicy returns the thresholds used for decisions.
func (e *Engine) MatchPolicy() facematch.Policy {
	return e.match
}

// Enrollment is the outcome of a successful enroll.
type Enrollment struct {
	EmbeddingID int64          `json:"embedding_id"`
	Identity    int64          `json:"identity"`
	SampleCount int            `json:"sample_count"`
	Method      string         `json:"capture_method"`
	Aligned     bool           `json:"aligned"`
	Quality     quality.Report `json:"quality"`
}

// faceVector is what the shared front half of both pipelines produces.
type faceVector struct {
	report  quality.Report
	vector  []float64
	aligned bool
}

// extract runs quality gate, locator, aligner and embedder. A nil *EnrollmentError
// together with a nil error means vector is set.
func (e *Engine) extract(ctx context.Context, img image.Image) (faceVector, *EnrollmentError, error) {
	out := faceVector{report: e.gate.Assess(img)}
	if !out.report.Acceptable {
		rej := reject(CodeLowQuality, "image quality too low")
		rej.Issues = out.report.Issues
		return out, rej, nil
	}

	face, err := e.locator.Locate(ctx, img)
	if err != nil {
		return out, nil, faceServiceError("locate", err)
	}
	if face == nil {
		return out, reject(CodeNoFace, "no face detected"), nil
	}

	prepared, err := e.preparer.Prepare(ctx, face.Crop)
	if err != nil {
		return out, nil, faceServiceError("align", err)
	}
	out.aligned = prepared.Aligned

	vec, err := e.embedder.Embed(ctx, prepared.Image)
	if err != nil {
		return out, nil, faceServiceError("embed", err)
	}
	if len(vec) == 0 {
		return out, reject(CodeEmbedFailed, "could not compute an encoding for the face"), nil
	}
	if dim := e.policy.Match.EmbeddingDim; len(vec) != dim {
		return out, reject(CodeEmbedFailed, "embedder returned %d dimensions, expected %d", len(vec), dim), nil
	}
	for _, f := range vec {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return out, reject(CodeEmbedFailed, "embedder returned a non-finite value"), nil
		}
	}
	out.vector = vec
	return out, nil, nil
}

// Enroll adds one sample of identity from img.
//
// The identity must exist in the identity store; improvement samples additionally
// require an existing enrollment. A face closer than the recognition threshold to
// another identity's sample is refused as DUPLICATE_FACE; that check and the write
// are one store operation. Cancellation is honored up to the store write, which is
// all-or-nothing.
func (e *Engine) Enroll(ctx context.Context, identity int64, img image.Image, method database.CaptureMethod) (*Enrollment, error) {
	if !method.Valid() {
		return nil, fmt.Errorf("%w: unknown capture method %q", ErrInvalidInput, method)
	}
	log := e.logger.With(logging.Identity(identity), zap.String("capture_method", string(method)))

	exists, err := e.identities.Exists(ctx, identity)
	if err != nil {
		return nil, storeError("identity lookup", err)
	}
	if !exists {
		log.Info("enrollment rejected", zap.String("code", string(CodeUnknownIdentity)))
		return nil, reject(CodeUnknownIdentity, "identity %d does not exist", identity)
	}

	if method == database.CaptureImprovement {
		n, err := e.store.CountActive(ctx, identity)
		if err != nil {
			return nil, storeError("count embeddings", err)
		}
		if n == 0 {
			log.Info("enrollment rejected", zap.String("code", string(CodeNotEnrolled)))
			return nil, reject(CodeNotEnrolled, "identity %d has no enrolled samples to improve", identity)
		}
	}

	fv, rej, err := e.extract(ctx, img)
	if err != nil {
		log.Error("face pipeline failed", zap.Error(err))
		return nil, err
	}
	if rej != nil {
		log.Info("enrollment rejected",
			zap.String("code", string(rej.Code)),
			zap.String("reason", rej.Reason),
			zap.Strings("issues", rej.Issues),
		)
		return nil, rej
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, conflict, err := e.store.AddUnlessConflict(ctx, database.NewEmbedding{
		IdentityID:    identity,
		Vector:        fv.vector,
		QualityScore:  database.Score(float64(fv.report.Score)),
		CaptureMethod: method,
	}, e.match.Threshold)
	if err != nil {
		log.Error("storing embedding failed", zap.Error(err))
		return nil, storeError("add embedding", err)
	}
	if conflict != nil {
		owner := conflict.Identity
		rej := reject(CodeDuplicateFace, "face is already enrolled for identity %d", owner)
		rej.ConflictIdentity = &owner
		log.Warn("enrollment rejected",
			zap.String("code", string(CodeDuplicateFace)),
			zap.Int64("conflict_identity", owner),
			zap.Float64("distance", conflict.Distance),
		)
		return nil, rej
	}

	// the row is committed; report it even if the caller has gone away
	count, err := e.store.CountActive(context.WithoutCancel(ctx), identity)
	if err != nil {
		return nil, storeError("count embeddings", err)
	}

	log.Info("enrolled face",
		zap.Int64("embedding_id", id),
		zap.Int("sample_count", count),
		zap.Int("quality_score", fv.report.Score),
		zap.Bool("aligned", fv.aligned),
	)
	return &Enrollment{
		EmbeddingID: id,
		Identity:    identity,
		SampleCount: count,
		Method:      string(method),
		Aligned:     fv.aligned,
		Quality:     fv.report,
	}, nil
}

// Recognition is a match decision plus the quality report of the frame.
type Recognition struct {
	facematch.MatchDecision
	Quality *quality.Report `json:"quality,omitempty"`
}

// Recognize decides which enrolled identity img shows. Clean non-matches are
// decisions, not errors; only collaborator failures return an error.
func (e *Engine) Recognize(ctx context.Context, img image.Image) (*Recognition, error) {
	fv, rej, err := e.extract(ctx, img)
	if err != nil {
		e.logger.Error("face pipeline failed", zap.Error(err))
		return nil, err
	}
	report := fv.report

	if rej != nil {
		var d facematch.MatchDecision
		switch rej.Code {
		case CodeLowQuality:
			d = facematch.LowQuality(report.Message())
		case CodeNoFace:
			d = facematch.NoFace(facematch.ReasonNoDetection, rej.Reason)
		default:
			d = facematch.NoFace(facematch.ReasonNoEncoding, rej.Reason)
		}
		e.logDecision(d)
		return &Recognition{MatchDecision: d, Quality: &report}, nil
	}

	corpus, err := e.store.AllActive(ctx)
	if err != nil {
		e.logger.Error("loading corpus failed", zap.Error(err))
		return nil, storeError("load corpus", err)
	}

	d := facematch.Match(fv.vector, corpus, e.match)
	e.logDecision(d)
	return &Recognition{MatchDecision: d, Quality: &report}, nil
}

func (e *Engine) logDecision(d facematch.MatchDecision) {
	fields := []zap.Field{
		zap.String("outcome", string(d.Outcome)),
		zap.Float64("confidence", d.Confidence),
	}
	if d.Reason != "" {
		fields = append(fields, zap.String("reason", string(d.Reason)))
	}
	if d.Best != nil {
		fields = append(fields, zap.Int64("best_identity", d.Best.Identity), zap.Float64("best_distance", d.Best.Distance))
	}
	if d.RunnerUp != nil {
		fields = append(fields, zap.Int64("runner_up_identity", d.RunnerUp.Identity), zap.Float64("runner_up_distance", d.RunnerUp.Distance))
	}
	e.logger.Info("match decision", fields...)
}

// VerifiedRecognition is one frame of a multi-frame verification session.
type VerifiedRecognition struct {
	Session string `json:"session"`
	facematch.Verification
	Quality *quality.Report `json:"quality,omitempty"`
}

// RecognizeVerified recognizes img and feeds the decision into session's window.
// An empty session starts a new one with a random key.
func (e *Engine) RecognizeVerified(ctx context.Context, session string, img image.Image) (*VerifiedRecognition, error) {
	if session == "" {
		session = uuid.NewString()
	}
	rec, err := e.Recognize(ctx, img)
	if err != nil {
		return nil, err
	}

	v := e.verifier.Observe(session, rec.MatchDecision)
	if v.Verified {
		e.logger.Info("identity verified",
			logging.Identity(*v.Identity),
			zap.String("session", session),
			zap.Float64("avg_confidence", v.AvgConfidence),
		)
	}
	return &VerifiedRecognition{Session: session, Verification: v, Quality: rec.Quality}, nil
}

// ResetSession discards the buffered frames of a verification session.
func (e *Engine) ResetSession(session string) {
	e.verifier.Reset(session)
}

// Deactivate soft-deletes every embedding of identity and returns how many changed.
func (e *Engine) Deactivate(ctx context.Context, identity int64) (int, error) {
	exists, err := e.identities.Exists(ctx, identity)
	if err != nil {
		return 0, storeError("identity lookup", err)
	}
	if !exists {
		return 0, reject(CodeUnknownIdentity, "identity %d does not exist", identity)
	}

	n, err := e.store.DeactivateAll(ctx, identity)
	if err != nil {
		e.logger.Error("deactivating identity failed", logging.Identity(identity), zap.Error(err))
		return 0, storeError("deactivate identity", err)
	}
	e.logger.Info("deactivated identity", logging.Identity(identity), zap.Int("embeddings", n))
	return n, nil
}

// DeactivateEmbedding revokes a single embedding. It returns database.ErrNotFound
// when the embedding does not exist and false when it was already inactive.
func (e *Engine) DeactivateEmbedding(ctx context.Context, embeddingID int64) (bool, error) {
	if _, err := e.store.Get(ctx, embeddingID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, err
		}
		return false, storeError("get embedding", err)
	}

	changed, err := e.store.Deactivate(ctx, embeddingID)
	if err != nil {
		return false, storeError("deactivate embedding", err)
	}
	if changed {
		e.logger.Info("revoked embedding", zap.Int64("embedding_id", embeddingID))
	}
	return changed, nil
}

// CountSamples returns the number of active embeddings of identity.
func (e *Engine) CountSamples(ctx context.Context, identity int64) (int, error) {
	n, err := e.store.CountActive(ctx, identity)
	if err != nil {
		return 0, storeError("count embeddings", err)
	}
	return n, nil
}

// IdentityStats is the sample count of one enrolled identity.
type IdentityStats struct {
	Identity int64 `json:"identity"`
	Samples  int   `json:"samples"`
}

// PolicyStats echoes the decision thresholds in effect.
type PolicyStats struct {
	RecognitionThreshold float64 `json:"recognition_threshold"`
	MinConfidence        float64 `json:"min_confidence"`
	MarginThreshold      float64 `json:"margin_threshold"`
	VerifyFrames         int     `json:"verify_frames"`
	EmbeddingDim         int     `json:"embedding_dim"`
}

// Stats summarizes the active corpus.
type Stats struct {
	TotalIdentities int             `json:"total_identities"`
	TotalEmbeddings int             `json:"total_embeddings"`
	AvgPerIdentity  float64         `json:"avg_embeddings_per_identity"`
	Identities      []IdentityStats `json:"identities"`
	Thresholds      PolicyStats     `json:"thresholds"`
}

// Stats counts identities with at least one active embedding.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	corpus, err := e.store.AllActive(ctx)
	if err != nil {
		return nil, storeError("load corpus", err)
	}

	counts := make(map[int64]int)
	for _, s := range corpus {
		counts[s.Identity]++
	}

	per := make([]IdentityStats, 0, len(counts))
	for id, n := range counts {
		per = append(per, IdentityStats{Identity: id, Samples: n})
	}
	sort.Slice(per, func(i, j int) bool { return per[i].Identity < per[j].Identity })

	st := &Stats{
		TotalIdentities: len(counts),
		TotalEmbeddings: len(corpus),
		Identities:      per,
		Thresholds: PolicyStats{
			RecognitionThreshold: e.match.Threshold,
			MinConfidence:        e.match.MinConfidence,
			MarginThreshold:      e.match.Margin,
			VerifyFrames:         e.verifier.Required(),
			EmbeddingDim:         e.policy.Match.EmbeddingDim,
		},
	}
	if len(counts) > 0 {
		st.AvgPerIdentity = math.Round(float64(len(corpus))/float64(len(counts))*100) / 100
	}
	return st, nil
}
