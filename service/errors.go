package service

import "errors"

var (
	// ErrNotFound is returned for unknown tokens and missing files
	ErrNotFound = errors.New("not found")
	// ErrNotPDF is returned when an upload is missing or not named *.pdf
	ErrNotPDF = errors.New("please upload a .pdf file")
	// ErrInvalidDecision is returned for decisions other than approved/rejected
	ErrInvalidDecision = errors.New("decision must be 'approved' or 'rejected'")
	// ErrCommentRequired is returned when a rejection without comment is refused
	ErrCommentRequired = errors.New("please include a comment when rejecting")
)

// IsClientError reports whether err was caused by invalid request input
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotPDF) ||
		errors.Is(err, ErrInvalidDecision) ||
		errors.Is(err, ErrCommentRequired)
}
