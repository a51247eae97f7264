// Package httptransport implements the HTTP gateway in front of the
// feedback orchestration engine.
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/tiger/pose-feedback-pipeline/api/feedback"
	"github.com/tiger/pose-feedback-pipeline/internal/runtime/engine"
	"github.com/tiger/pose-feedback-pipeline/internal/stageerr"
)

// maxImageBytes bounds inbound uploads.
const maxImageBytes = 16 << 20

type feedbackRunner interface {
	Run(ctx context.Context, req feedback.Request) (feedback.Result, error)
}

// Handler handles feedback requests.
type Handler struct {
	runner feedbackRunner
}

// New returns a Handler over the given engine. It panics on a nil runner.
func New(runner feedbackRunner) *Handler {
	if runner == nil {
		panic("httptransport.New: nil feedback runner")
	}
	return &Handler{runner: runner}
}

// NewMux routes the gateway endpoints.
func NewMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/feedback", h.HandleFeedback)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

type feedbackBody struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	PoseID      string `json:"pose_id"`
}

// HandleFeedback accepts a pose image as JSON base64 or a multipart file and
// answers with the composite feedback envelope.
func (h *Handler) HandleFeedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	image, mimeType, poseID, err := h.decodeImage(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, feedback.ErrorBody{OK: false, Error: "MISSING_IMAGE", Detail: err.Error()})
		return
	}

	req := feedback.Request{
		RequestID: r.Header.Get("X-Request-Id"),
		Image:     image,
		MimeType:  mimeType,
		PoseID:    r.URL.Query().Get("poseId"),
	}
	if req.PoseID == "" {
		req.PoseID = poseID
	}

	result, err := h.runner.Run(r.Context(), req)
	if err != nil {
		writeJSON(w, stageerr.HTTPStatus(err), engine.ErrorEnvelope(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type decodeError string

func (e decodeError) Error() string { return string(e) }

func (h *Handler) decodeImage(r *http.Request) ([]byte, string, string, error) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			return nil, "", "", decodeError("bad multipart form")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", "", decodeError("missing file part")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil || len(data) == 0 {
			return nil, "", "", decodeError("empty file part")
		}
		return data, pickMIME(header.Header.Get("Content-Type"), "", data), r.FormValue("poseId"), nil
	}

	var body feedbackBody
	dec := json.NewDecoder(io.LimitReader(r.Body, maxImageBytes))
	if err := dec.Decode(&body); err != nil {
		return nil, "", "", decodeError("bad JSON body")
	}
	if strings.TrimSpace(body.ImageBase64) == "" {
		return nil, "", "", decodeError("image_base64 is required")
	}
	data, hint, err := decodeBase64MaybeDataURL(body.ImageBase64)
	if err != nil || len(data) == 0 {
		return nil, "", "", decodeError("image_base64 is not valid base64")
	}
	return data, pickMIME(body.MimeType, hint, data), body.PoseID, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
