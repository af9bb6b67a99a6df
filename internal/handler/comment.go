package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/thoughts/internal/service"
)

// CommentHandler serves the comment endpoints under /posts.
type CommentHandler struct {
	comments *service.CommentService
	logger   *slog.Logger
}

func NewCommentHandler(comments *service.CommentService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{comments: comments, logger: logger}
}

type addCommentRequest struct {
	Comment string `json:"comment"`
}

// HTTP: POST /posts/add-comment/{postId} {"comment": "..."}
func (h *CommentHandler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req addCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	comment, err := h.comments.Add(r.Context(), chi.URLParam(r, "postId"), id, req.Comment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Comment added successfully", comment)
}

// HTTP: GET /posts/get-comment/{postId}
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	comments, err := h.comments.List(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Post comment retrieved successfully", comments)
}

// HTTP: DELETE /posts/delete-comment/{commentId}
func (h *CommentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.comments.Delete(r.Context(), chi.URLParam(r, "commentId"), id); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Comment deleted successfully", nil)
}

// HandleHide lets the post owner remove someone else's comment.
//
// HTTP: DELETE /posts/hide-comment/{commentId}
func (h *CommentHandler) HandleHide(w http.ResponseWriter, r *http.Request) {
	id, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if err := h.comments.Hide(r.Context(), chi.URLParam(r, "commentId"), id); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Comment hide successfully by post owner", nil)
}
