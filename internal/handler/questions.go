package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examprep/internal/importer"
	"github.com/pavelanni/examprep/internal/question"
)

// uploadFieldPrefix names quick-edit image parts: upload_<slot>.
const uploadFieldPrefix = "upload_"

// questionRef reads the exam set id and node path from the URL.
func questionRef(r *http.Request) (int64, question.Path, error) {
	id, err := urlID(r, "id")
	if err != nil {
		return 0, nil, err
	}
	p, err := question.ParsePath(chi.URLParam(r, "path"))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", errInput, err)
	}
	return id, p, nil
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	if _, err := h.store.GetExamSet(id); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	qs, err := h.store.ListQuestions(id)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	if qs == nil {
		qs = []question.Question{}
	}
	writeJSON(w, http.StatusOK, qs)
}

// handleAddQuestions appends questions from a JSON array, or from a multipart
// form when images are attached.
func (h *Handler) handleAddQuestions(w http.ResponseWriter, r *http.Request) {
	h.storeQuestions(w, r, false)
}

// handleReplaceQuestions swaps the whole question forest of an exam set for
// the uploaded one.
func (h *Handler) handleReplaceQuestions(w http.ResponseWriter, r *http.Request) {
	h.storeQuestions(w, r, true)
}

func (h *Handler) storeQuestions(w http.ResponseWriter, r *http.Request, replace bool) {
	id, err := urlID(r, "id")
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	if _, err := h.store.GetExamSet(id); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	data, files, err := readImport(w, r)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	items, err := importer.Parse(data)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	qs, err := h.buildQuestions(items, files)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	status := http.StatusCreated
	if replace {
		status = http.StatusOK
		err = h.store.ReplaceQuestions(id, qs)
	} else {
		err = h.store.AppendQuestions(id, qs)
	}
	if err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	h.invalidate(r.Context())

	all, err := h.store.ListQuestions(id)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	writeJSON(w, status, all)
}

func (h *Handler) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	id, p, err := questionRef(r)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	q, err := h.store.GetQuestion(id, p)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// readQuickEdit decodes a quick edit. A multipart body carries the edit as
// JSON in the "data" field and new images as upload_<slot> parts.
func (h *Handler) readQuickEdit(w http.ResponseWriter, r *http.Request) (question.QuickEdit, map[int]string, error) {
	var edit question.QuickEdit
	if !isMultipart(r) {
		err := h.decode(w, r, &edit)
		return edit, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return edit, nil, fmt.Errorf("%w: parse form: %v", errInput, err)
	}
	if data := r.FormValue("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &edit); err != nil {
			return edit, nil, fmt.Errorf("%w: decode data: %v", errInput, err)
		}
	}

	type slotFile struct {
		slot int
		file importer.Attachment
	}
	var pending []slotFile
	for field, headers := range r.MultipartForm.File {
		s, ok := strings.CutPrefix(field, uploadFieldPrefix)
		if !ok || len(headers) == 0 {
			continue
		}
		slot, err := strconv.Atoi(s)
		if err != nil || slot < 0 {
			return edit, nil, fmt.Errorf("%w: image slot %q", errInput, s)
		}
		fh := headers[0]
		if fh.Size > importer.MaxFileSize {
			return edit, nil, &importer.FileError{Name: fh.Filename, Err: importer.ErrFileTooLarge}
		}
		b, err := readPart(fh)
		if err != nil {
			return edit, nil, err
		}
		pending = append(pending, slotFile{slot, importer.Attachment{Filename: fh.Filename, Data: b}})
	}
	if len(pending) == 0 {
		return edit, nil, nil
	}

	files := make([]importer.Attachment, len(pending))
	for i, p := range pending {
		files[i] = p.file
	}
	if err := importer.CheckLimits(files); err != nil {
		return edit, nil, err
	}
	if h.uploads == nil {
		return edit, nil, fmt.Errorf("%w: image uploads are disabled", errInput)
	}
	uploads := make(map[int]string, len(pending))
	for _, p := range pending {
		url, err := h.uploads.Save(p.file.Filename, p.file.Data)
		if err != nil {
			return edit, nil, fmt.Errorf("save image %s: %w", p.file.Filename, err)
		}
		uploads[p.slot] = url
	}
	return edit, uploads, nil
}

// handleQuickEdit changes the flat fields of one node and rebinds its images
// to the placeholders in its content.
func (h *Handler) handleQuickEdit(w http.ResponseWriter, r *http.Request) {
	id, p, err := questionRef(r)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	edit, uploads, err := h.readQuickEdit(w, r)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	q, err := h.store.UpdateQuestion(id, p, func(q *question.Question) error {
		edit.Apply(q)
		q.Images = question.BindImages(q.Content, q.Images, uploads)
		return nil
	})
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	h.invalidate(r.Context())
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, p, err := questionRef(r)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	if err := h.store.DeleteQuestion(id, p); err != nil {
		h.fail(w, r, "question", err)
		return
	}
	h.invalidate(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetQuestionJSON(w http.ResponseWriter, r *http.Request) {
	id, p, err := questionRef(r)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	q, err := h.store.GetQuestion(id, p)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	data, err := question.MarshalNode(q)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if _, err := w.Write(data); err != nil {
		slog.Error("write response", "error", err)
	}
}

// handleFullEdit replaces a node and its whole subtree with the edited JSON.
func (h *Handler) handleFullEdit(w http.ResponseWriter, r *http.Request) {
	id, p, err := questionRef(r)
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		h.fail(w, r, "question", fmt.Errorf("%w: read body: %v", errInput, err))
		return
	}
	node, err := question.ParseNode(data)
	if err != nil {
		h.fail(w, r, "question", fmt.Errorf("%w: %w", errInput, err))
		return
	}
	q, err := h.store.UpdateQuestion(id, p, func(q *question.Question) error {
		*q = node
		return nil
	})
	if err != nil {
		h.fail(w, r, "question", err)
		return
	}
	h.invalidate(r.Context())
	writeJSON(w, http.StatusOK, q)
}
