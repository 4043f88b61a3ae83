package handler

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/pavelanni/examprep/internal/handler/views"
	appI18n "github.com/pavelanni/examprep/internal/i18n"
	"github.com/pavelanni/examprep/internal/importer"
	"github.com/pavelanni/examprep/internal/question"
)

const (
	// imageFieldPrefix names multipart image parts: image_<question id>.
	imageFieldPrefix = "image_"
	maxImportBody    = (importer.MaxFiles+1)*importer.MaxFileSize + maxJSONBody
)

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readImport extracts the raw questions JSON and any attached images. A
// multipart body carries the JSON in the "questions" field (text or file) and
// images as image_<question id> parts; anything else is read as plain JSON.
func readImport(w http.ResponseWriter, r *http.Request) ([]byte, []importer.Attachment, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBody)
	if !isMultipart(r) {
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: read body: %v", errInput, err)
		}
		return data, nil, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, fmt.Errorf("%w: parse form: %v", errInput, err)
	}
	data := []byte(r.FormValue("questions"))
	if len(data) == 0 {
		if f, _, err := r.FormFile("questions"); err == nil {
			data, err = io.ReadAll(f)
			f.Close()
			if err != nil {
				return nil, nil, fmt.Errorf("%w: read questions file: %v", errInput, err)
			}
		}
	}

	var files []importer.Attachment
	for field, headers := range r.MultipartForm.File {
		clientID, ok := strings.CutPrefix(field, imageFieldPrefix)
		if !ok {
			continue
		}
		for _, fh := range headers {
			if fh.Size > importer.MaxFileSize {
				return nil, nil, &importer.FileError{Name: fh.Filename, Err: importer.ErrFileTooLarge}
			}
			b, err := readPart(fh)
			if err != nil {
				return nil, nil, err
			}
			files = append(files, importer.Attachment{ClientID: clientID, Filename: fh.Filename, Data: b})
		}
	}
	slices.SortFunc(files, func(a, b importer.Attachment) int {
		return strings.Compare(a.ClientID+"/"+a.Filename, b.ClientID+"/"+b.Filename)
	})
	return data, files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return b, nil
}

// dataURLSaver inlines images so a preview needs nothing on disk.
type dataURLSaver struct{}

func (dataURLSaver) Save(_ string, data []byte) (string, error) {
	return "data:" + http.DetectContentType(data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (h *Handler) handleImportPreview(w http.ResponseWriter, r *http.Request) {
	data, files, err := readImport(w, r)
	if err != nil {
		h.fail(w, r, "import", err)
		return
	}
	items, err := importer.Parse(data)
	if err != nil {
		h.fail(w, r, "import", err)
		return
	}
	qs, err := importer.Build(items, files, dataURLSaver{})
	if err != nil {
		h.fail(w, r, "import", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ImportPreview(qs).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

type importResponse struct {
	Message   string `json:"message"`
	Count     int    `json:"count"`
	Duplicate bool   `json:"duplicate"`
}

// handleImport appends imported questions to an exam set. Re-sending the same
// payload for the same exam set is detected by hash and skipped.
func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
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
		h.fail(w, r, "import", err)
		return
	}

	sum := sha256.New()
	sum.Write(data)
	for _, f := range files {
		sum.Write([]byte(f.ClientID))
		sum.Write(f.Data)
	}
	hash := hex.EncodeToString(sum.Sum(nil))
	key := "examset/" + strconv.FormatInt(id, 10)

	stored, err := h.store.GetImportedFileHash(key)
	if err != nil {
		h.fail(w, r, "import", err)
		return
	}
	if stored == hash {
		writeJSON(w, http.StatusOK, importResponse{Message: appI18n.T(r.Context(), "ImportDuplicate"), Duplicate: true})
		return
	}

	items, err := importer.Parse(data)
	if err != nil {
		h.fail(w, r, "import", err)
		return
	}
	qs, err := h.buildQuestions(items, files)
	if err != nil {
		h.fail(w, r, "import", err)
		return
	}
	if err := h.store.AppendQuestions(id, qs); err != nil {
		h.fail(w, r, "exam set", err)
		return
	}
	if err := h.store.SetImportedFileHash(key, hash); err != nil {
		slog.Error("failed to record import", "exam_set_id", id, "error", err)
	}
	h.invalidate(r.Context())

	n := question.Count(qs)
	slog.Info("imported questions", "exam_set_id", id, "top_level", len(qs), "nodes", n, "images", len(files))
	writeJSON(w, http.StatusCreated, importResponse{
		Message: appI18n.Tp(r.Context(), "ImportSuccess", len(qs)),
		Count:   len(qs),
	})
}

// buildQuestions saves attachments to the upload dir when there are any.
func (h *Handler) buildQuestions(items []importer.Item, files []importer.Attachment) ([]question.Question, error) {
	if len(files) == 0 {
		return importer.Questions(items), nil
	}
	if h.uploads == nil {
		return nil, fmt.Errorf("%w: image uploads are disabled", errInput)
	}
	return importer.Build(items, files, h.uploads)
}
