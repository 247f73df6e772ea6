package handler

import (
	"errors"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/higpup01-design/proofok/model"
	"github.com/higpup01-design/proofok/pkg/logger"
	"github.com/higpup01-design/proofok/service"
)

// Version is reported by the landing page, health check and rendered pages
var Version = "proofok-v1"

type ProofHandler struct {
	workflow  *service.Workflow
	maxUpload int64
}

func NewProofHandler(workflow *service.Workflow, maxUpload int64) *ProofHandler {
	return &ProofHandler{
		workflow:  workflow,
		maxUpload: maxUpload,
	}
}

type respondRequest struct {
	Decision    string `json:"decision" form:"decision"`
	Comment     string `json:"comment" form:"comment"`
	ViewerName  string `json:"viewer_name" form:"viewer_name"`
	ViewerEmail string `json:"viewer_email" form:"viewer_email"`
}

type proofPage struct {
	Token        string
	OriginalName string
	Status       string
	PDFURL       string
	LastResponse *model.Response
	Version      string
}

type resultPage struct {
	OK           bool
	Message      string
	Warning      string
	Token        string
	OriginalName string
	Version      string
}

// Upload handles a producer uploading a new proof
func (h *ProofHandler) Upload(c *gin.Context) {
	if h.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": userMessage(service.ErrNotPDF)})
		return
	}
	defer file.Close()

	res, err := h.workflow.Upload(c.Request.Context(), service.UploadInput{
		Filename:     header.Filename,
		OriginalName: c.PostForm("original_name"),
		Size:         header.Size,
		Body:         file,
	})
	if err != nil {
		h.jsonError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"token": res.Token,
		"url":   res.URL,
	})
}

// ProofPage renders the viewer page for a token
func (h *ProofHandler) ProofPage(c *gin.Context) {
	token := c.Param("token")

	proof, err := h.workflow.GetProof(c.Request.Context(), token)
	if err != nil {
		h.htmlError(c, err, nil)
		return
	}

	c.HTML(http.StatusOK, "proof.html", proofPage{
		Token:        proof.Token,
		OriginalName: proof.OriginalName,
		Status:       proof.Status,
		PDFURL:       fileURL(proof.Token, proof.StoredName),
		LastResponse: proof.LastResponse(),
		Version:      Version,
	})
}

// ServeFile streams a stored PDF for inline display
func (h *ProofHandler) ServeFile(c *gin.Context) {
	token := c.Param("token")
	name := c.Param("filename")

	rc, modTime, err := h.workflow.OpenFile(c.Request.Context(), token, name)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", service.PDFContentType)
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	http.ServeContent(c.Writer, c.Request, name, modTime, rc)
}

// RespondAPI records a decision submitted as JSON or form data.
// A rejection without comment is accepted on this path.
func (h *ProofHandler) RespondAPI(c *gin.Context) {
	token := c.Param("token")

	// Unknown tokens answer 404 whatever the body holds
	if _, err := h.workflow.GetProof(c.Request.Context(), token); err != nil {
		h.jsonError(c, err)
		return
	}

	var req respondRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := h.workflow.SubmitDecision(c.Request.Context(), token, req.input(c),
		service.DecisionPolicy{RequireCommentOnReject: false})
	if err != nil {
		h.jsonError(c, err)
		return
	}

	resp := gin.H{"ok": true}
	if res.Warning != "" {
		resp["warning"] = res.Warning
	}
	c.JSON(http.StatusOK, resp)
}

// RespondForm records a decision from the proof page form and renders the outcome
func (h *ProofHandler) RespondForm(c *gin.Context) {
	token := c.Param("token")
	req := respondRequest{
		Decision:    c.PostForm("decision"),
		Comment:     c.PostForm("comment"),
		ViewerName:  c.PostForm("viewer_name"),
		ViewerEmail: c.PostForm("viewer_email"),
	}

	res, err := h.workflow.SubmitDecision(c.Request.Context(), token, req.input(c),
		service.DecisionPolicy{RequireCommentOnReject: true})
	if err != nil {
		var proof *model.Proof
		if !errors.Is(err, service.ErrNotFound) {
			proof, _ = h.workflow.GetProof(c.Request.Context(), token)
		}
		h.htmlError(c, err, proof)
		return
	}

	c.HTML(http.StatusOK, "result.html", resultPage{
		OK:           true,
		Message:      "Thank you, your decision was recorded.",
		Warning:      res.Warning,
		Token:        token,
		OriginalName: res.Proof.OriginalName,
		Version:      Version,
	})
}

func (r respondRequest) input(c *gin.Context) service.DecisionInput {
	return service.DecisionInput{
		Decision:    r.Decision,
		Comment:     r.Comment,
		ViewerName:  r.ViewerName,
		ViewerEmail: r.ViewerEmail,
		IP:          viewerIP(c),
	}
}

// viewerIP prefers the first X-Forwarded-For hop over the direct peer
func viewerIP(c *gin.Context) string {
	if fwd := c.GetHeader("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.RemoteIP()
}

func fileURL(token, storedName string) string {
	return "/p/" + token + "/" + url.PathEscape(storedName)
}

// statusFor maps workflow errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case service.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the human-readable text shown for err
func userMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return "Not found"
	case errors.Is(err, service.ErrNotPDF):
		return "Please upload a .pdf file"
	case errors.Is(err, service.ErrInvalidDecision):
		return "Decision must be 'approved' or 'rejected'"
	case errors.Is(err, service.ErrCommentRequired):
		return "Please include a comment when rejecting."
	default:
		return "Internal server error"
	}
}

func (h *ProofHandler) jsonError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"error": userMessage(err)})
}

func (h *ProofHandler) htmlError(c *gin.Context, err error, proof *model.Proof) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "error", err)
	}

	page := resultPage{Message: userMessage(err), Version: Version}
	switch {
	case errors.Is(err, service.ErrNotFound):
		page.Message = "This proof link was not found."
	case errors.Is(err, service.ErrInvalidDecision):
		page.Message = "Invalid decision."
	}
	if proof != nil {
		page.Token = proof.Token
		page.OriginalName = proof.OriginalName
	}
	c.HTML(status, "result.html", page)
}
