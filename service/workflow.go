package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/higpup01-design/proofok/model"
	"github.com/higpup01-design/proofok/pkg/logger"
)

// tokenAttempts bounds retries when a freshly generated token is already taken
const tokenAttempts = 5

// Workflow ties together records, stored files and notifications
type Workflow struct {
	records  *RecordStore
	files    FileStore
	notifier *Notifier
	baseURL  string
	now      func() time.Time
}

func NewWorkflow(records *RecordStore, files FileStore, notifier *Notifier, baseURL string) *Workflow {
	return &Workflow{
		records:  records,
		files:    files,
		notifier: notifier,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type UploadInput struct {
	Filename     string // name of the uploaded part, checked for .pdf
	OriginalName string // display name, defaults to Filename
	Size         int64
	Body         io.Reader
}

type UploadResult struct {
	Token string
	URL   string
	Proof *model.Proof
}

// DecisionInput is what a viewer submits. Values are normalised by SubmitDecision.
type DecisionInput struct {
	Decision    string
	Comment     string
	ViewerName  string
	ViewerEmail string
	IP          string
}

// DecisionPolicy carries the rules that differ between submission paths
type DecisionPolicy struct {
	RequireCommentOnReject bool
}

type DecisionResult struct {
	Proof    *model.Proof
	Response model.Response
	Warning  string
}

// ProofURL is the shareable link for a token
func (w *Workflow) ProofURL(token string) string {
	return w.baseURL + "/proof/" + token
}

// Upload stores a new proof and returns its token and shareable link
func (w *Workflow) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Body == nil || !IsPDFName(in.Filename) {
		return nil, ErrNotPDF
	}

	originalName := strings.TrimSpace(in.OriginalName)
	if originalName == "" {
		originalName = in.Filename
	}
	storedName := SanitizeName(originalName)

	token, err := w.freshToken(ctx)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithToken(ctx, token)

	if err := w.files.Store(ctx, token, storedName, in.Body, in.Size); err != nil {
		logger.Error(ctx, "failed to store proof file", "error", err)
		return nil, fmt.Errorf("store proof file: %w", err)
	}

	proof := &model.Proof{
		Token:        token,
		OriginalName: originalName,
		StoredName:   storedName,
		CreatedAt:    w.now(),
		Status:       model.StatusPending,
		Responses:    []model.Response{},
	}
	if err := w.records.Save(ctx, token, proof); err != nil {
		logger.Error(ctx, "failed to save proof record", "error", err)
		// A file without a record is unreachable, so drop it
		if derr := w.files.Delete(context.WithoutCancel(ctx), token, storedName); derr != nil {
			logger.Warn(ctx, "failed to remove orphaned proof file", "stored_name", storedName, "error", derr)
		}
		return nil, fmt.Errorf("save proof record: %w", err)
	}

	logger.Info(ctx, "proof uploaded", "name", originalName, "stored_name", storedName)

	return &UploadResult{Token: token, URL: w.ProofURL(token), Proof: proof}, nil
}

func (w *Workflow) freshToken(ctx context.Context) (string, error) {
	for i := 0; i < tokenAttempts; i++ {
		token := NewToken()
		taken, err := w.records.Exists(ctx, token)
		if err != nil {
			return "", err
		}
		if !taken {
			return token, nil
		}
	}
	return "", errors.New("could not allocate an unused token")
}

// GetProof returns the record for token or ErrNotFound
func (w *Workflow) GetProof(ctx context.Context, token string) (*model.Proof, error) {
	return w.records.Load(ctx, token)
}

// OpenFile returns the stored PDF for token, or ErrNotFound
func (w *Workflow) OpenFile(ctx context.Context, token, name string) (io.ReadSeekCloser, time.Time, error) {
	return w.files.Open(ctx, token, name)
}

// SubmitDecision records a viewer decision and notifies the producer.
// The decision is persisted before any notification is attempted, and
// notification trouble only ever shows up as DecisionResult.Warning.
func (w *Workflow) SubmitDecision(ctx context.Context, token string, in DecisionInput, policy DecisionPolicy) (*DecisionResult, error) {
	proof, err := w.records.Load(ctx, token)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithToken(ctx, token)

	decision := strings.ToLower(strings.TrimSpace(in.Decision))
	comment := strings.TrimSpace(in.Comment)

	if !model.IsDecision(decision) {
		return nil, ErrInvalidDecision
	}
	if policy.RequireCommentOnReject && decision == model.StatusRejected && comment == "" {
		return nil, ErrCommentRequired
	}

	resp := model.Response{
		Timestamp:   w.now(),
		Decision:    decision,
		Comment:     comment,
		ViewerName:  strings.TrimSpace(in.ViewerName),
		ViewerEmail: strings.TrimSpace(in.ViewerEmail),
		IP:          in.IP,
	}
	proof.Record(resp)

	if err := w.records.Save(ctx, token, proof); err != nil {
		logger.Error(ctx, "failed to save decision", "decision", decision, "error", err)
		return nil, fmt.Errorf("save decision: %w", err)
	}

	logger.Info(ctx, "decision recorded",
		"decision", decision,
		"ip", resp.IP,
		"mode", w.notifier.Mode(),
	)

	warning := w.notifier.Notify(ctx, DecisionMessage(proof, resp, w.ProofURL(token)))

	return &DecisionResult{Proof: proof, Response: resp, Warning: warning}, nil
}
